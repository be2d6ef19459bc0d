// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package store

import (
	"errors"
	"io"
	"sync"
	"time"

	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const (
	// DefaultVectorDimensions matches bge-m3, the default local embedding model.
	DefaultVectorDimensions = 1024
	DefaultBusyTimeout      = 5 * time.Second
)

// RecordFactory opens the record store, text index and embedding queue of a
// storage root. The three usually share one database; closers lists the
// resources to release after them.
type RecordFactory func(root string, cfg *StorageConfig) (RecordStore, TextIndex, EmbeddingQueue, []io.Closer, error)

// VectorFactory opens the vector index of a storage root.
type VectorFactory func(root string, cfg *StorageConfig) (VectorIndex, error)

var (
	recordFactories = map[string]RecordFactory{}
	vectorFactories = map[string]VectorFactory{}
	factoriesMu     sync.RWMutex
)

// RegisterBackend registers the record factory of a named backend. Backend
// packages call this from init().
func RegisterBackend(name string, f RecordFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	recordFactories[name] = f
}

// RegisterVectorBackend registers the vector factory of a named backend.
func RegisterVectorBackend(name string, f VectorFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	vectorFactories[name] = f
}

// Stores bundles everything opened for one storage root.
type Stores struct {
	Records RecordStore
	Text    TextIndex
	Vectors VectorIndex
	Queue   EmbeddingQueue

	closers []io.Closer
}

// withDefaults fills zero fields of cfg.
func withDefaults(cfg *StorageConfig) StorageConfig {
	out := StorageConfig{}
	if cfg != nil {
		out = *cfg
	}
	if out.Backend == "" {
		out.Backend = "sqlite"
	}
	if out.VectorBackend == "" {
		out.VectorBackend = "sqlite"
	}
	if out.VectorDimensions <= 0 {
		out.VectorDimensions = DefaultVectorDimensions
	}
	if out.BusyTimeout <= 0 {
		out.BusyTimeout = DefaultBusyTimeout
	}
	return out
}

// Open opens every store under root using the backends named in cfg.
func Open(cfg *StorageConfig, root string) (*Stores, error) {
	c := withDefaults(cfg)

	factoriesMu.RLock()
	rf, rok := recordFactories[c.Backend]
	vf, vok := vectorFactories[c.VectorBackend]
	factoriesMu.RUnlock()
	if !rok {
		return nil, engramerr.Errorf(engramerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", c.Backend)
	}
	if !vok {
		return nil, engramerr.Errorf(engramerr.CodeStoreBackendUnsupported, "unsupported vector backend: %q", c.VectorBackend)
	}

	records, text, queue, closers, err := rf(root, &c)
	if err != nil {
		return nil, err
	}

	vectors, err := vf(root, &c)
	if err != nil {
		_ = records.Close()
		for _, cl := range closers {
			_ = cl.Close()
		}
		return nil, err
	}

	return &Stores{
		Records: records,
		Text:    text,
		Vectors: vectors,
		Queue:   queue,
		closers: closers,
	}, nil
}

// Close releases every store, joining their errors.
func (s *Stores) Close() error {
	var errs []error
	if s.Vectors != nil {
		if err := s.Vectors.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Records != nil {
		if err := s.Records.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, cl := range s.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
