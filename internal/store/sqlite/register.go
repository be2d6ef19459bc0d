// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package sqlite

import (
	"io"
	"path/filepath"

	"github.com/engram-dev/engram/internal/store"
)

const (
	RecordsFile = "engram.db"
	VectorsFile = "vectors.db"
)

func init() {
	store.RegisterBackend("sqlite", openRecords)
	store.RegisterVectorBackend("sqlite", openVectors)
}

func openRecords(root string, cfg *store.StorageConfig) (store.RecordStore, store.TextIndex, store.EmbeddingQueue, []io.Closer, error) {
	records, err := NewRecordStore(filepath.Join(root, RecordsFile), cfg.BusyTimeout)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return records, NewTextIndex(records.DB()), NewEmbeddingQueue(records.DB()), nil, nil
}

func openVectors(root string, cfg *store.StorageConfig) (store.VectorIndex, error) {
	return NewVectorIndex(filepath.Join(root, VectorsFile), cfg.VectorDimensions, cfg.BusyTimeout)
}
