// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package chromem provides a pure-Go vector index on chromem-go, for builds
// or platforms where the sqlite-vec extension is unavailable.
package chromem

import (
	"context"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const (
	// Dir is the directory under the storage root holding the collection.
	Dir            = "chroma"
	collectionName = "observations"
	timeLayout     = "2006-01-02T15:04:05.000000000Z"
)

func init() {
	store.RegisterVectorBackend("chromem", func(root string, cfg *store.StorageConfig) (store.VectorIndex, error) {
		return NewVectorIndex(filepath.Join(root, Dir), cfg.VectorDimensions)
	})
}

var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex on a persistent chromem-go
// collection. Similarity is cosine; hits report 1 - similarity as distance.
type VectorIndex struct {
	db         *chromem.DB
	col        *chromem.Collection
	dimensions int
}

// NewVectorIndex opens (or creates) the collection persisted under dir.
func NewVectorIndex(dir string, dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, engramerr.Errorf(engramerr.CodeStoreVectorDimensionInvalid, "vector dimensions must be positive, got %d", dimensions)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreDatabaseUnavailable, "opening chromem db %s", dir)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "opening chromem collection")
	}
	if err := checkDimensions(col, dimensions); err != nil {
		return nil, err
	}

	return &VectorIndex{db: db, col: col, dimensions: dimensions}, nil
}

// checkDimensions compares the stored embeddings against the configured size.
func checkDimensions(col *chromem.Collection, dimensions int) error {
	if col.Count() == 0 {
		return nil
	}
	probe := make([]float32, dimensions)
	probe[0] = 1
	results, err := col.QueryEmbedding(context.Background(), probe, 1, nil, nil)
	if err == nil && len(results) == 1 && len(results[0].Embedding) == dimensions {
		return nil
	}
	return engramerr.Wrapf(store.ErrDimensionMismatch, engramerr.CodeStoreVectorDimensionInvalid,
		"vector collection does not hold %d-dimension embeddings", dimensions)
}

func (v *VectorIndex) Dimensions() int { return v.dimensions }

func (v *VectorIndex) Upsert(ctx context.Context, id int64, vector []float32, meta store.Metadata) error {
	if len(vector) != v.dimensions {
		return engramerr.Wrapf(store.ErrDimensionMismatch, engramerr.CodeStoreVectorDimensionInvalid,
			"vector for observation %d has %d dimensions, index has %d", id, len(vector), v.dimensions)
	}

	doc := chromem.Document{
		ID:        docID(id),
		Metadata:  encodeMetadata(meta),
		Embedding: slices.Clone(vector),
	}
	if err := v.col.AddDocument(ctx, doc); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "adding vector %d", id)
	}
	return nil
}

// Query pushes equality filters into the chromem where clause and evaluates
// the rest on the results, widening the search when filters reject hits.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, filters store.Filters, limit int) ([]store.VectorHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(vector) != v.dimensions {
		return nil, engramerr.Wrapf(store.ErrDimensionMismatch, engramerr.CodeStoreVectorDimensionInvalid,
			"query vector has %d dimensions, index has %d", len(vector), v.dimensions)
	}

	total := v.col.Count()
	if total == 0 {
		return nil, nil
	}

	where := whereClause(filters)
	n := min(limit, total)
	for {
		results, err := v.col.QueryEmbedding(ctx, vector, n, where, nil)
		if err != nil {
			return nil, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "querying chromem")
		}

		var hits []store.VectorHit
		for _, r := range results {
			if !filters.Matches(decodeMetadata(r.Metadata)) {
				continue
			}
			id, err := parseDocID(r.ID)
			if err != nil {
				continue
			}
			hits = append(hits, store.VectorHit{ID: id, Distance: float64(1 - r.Similarity)})
			if len(hits) == limit {
				break
			}
		}
		// chromem returns fewer than n results once the where clause
		// exhausts the matching documents.
		if len(hits) >= limit || len(results) < n || n >= total {
			return hits, nil
		}
		n = min(n*4, total)
	}
}

// SetStatus re-adds each existing document with its status replaced; chromem
// has no in-place metadata update.
func (v *VectorIndex) SetStatus(ctx context.Context, ids []int64, status store.Status) error {
	for _, id := range ids {
		doc, err := v.col.GetByID(ctx, docID(id))
		if err != nil {
			continue
		}
		meta := make(map[string]string, len(doc.Metadata))
		for k, val := range doc.Metadata {
			meta[k] = val
		}
		meta["status"] = string(status)
		doc.Metadata = meta
		if err := v.col.AddDocument(ctx, doc); err != nil {
			return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "updating status of vector %d", id)
		}
	}
	return nil
}

func (v *VectorIndex) Remove(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = docID(id)
	}
	if err := v.col.Delete(ctx, nil, nil, docIDs...); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "deleting vectors")
	}
	return nil
}

// IDs lists every document by querying the whole collection.
func (v *VectorIndex) IDs(ctx context.Context) ([]int64, error) {
	total := v.col.Count()
	if total == 0 {
		return nil, nil
	}

	probe := make([]float32, v.dimensions)
	probe[0] = 1
	results, err := v.col.QueryEmbedding(ctx, probe, total, nil, nil)
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeStoreVectorIndexFailure, "listing chromem documents")
	}

	ids := make([]int64, 0, len(results))
	for _, r := range results {
		if id, err := parseDocID(r.ID); err == nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (v *VectorIndex) Count(context.Context) (int, error) {
	return v.col.Count(), nil
}

// Close is a no-op; the persistent DB writes through on every change.
func (v *VectorIndex) Close() error { return nil }

func docID(id int64) string { return strconv.FormatInt(id, 10) }

func parseDocID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func encodeMetadata(m store.Metadata) map[string]string {
	status := m.Status
	if status == "" {
		status = store.StatusActive
	}
	return map[string]string{
		"type":       string(m.Type),
		"session_id": m.SessionID,
		"project":    m.Project,
		"created_at": m.CreatedAt.UTC().Format(timeLayout),
		"status":     string(status),
	}
}

func decodeMetadata(raw map[string]string) store.Metadata {
	created, _ := time.Parse(timeLayout, raw["created_at"])
	status := store.Status(raw["status"])
	if status == "" {
		status = store.StatusActive
	}
	return store.Metadata{
		Type:      store.ObservationType(raw["type"]),
		SessionID: raw["session_id"],
		Project:   raw["project"],
		CreatedAt: created,
		Status:    status,
	}
}

// whereClause keeps the equality filters chromem can evaluate itself.
func whereClause(f store.Filters) map[string]string {
	where := map[string]string{}
	if f.SessionID != "" {
		where["session_id"] = f.SessionID
	}
	if f.Project != "" {
		where["project"] = f.Project
	}
	if len(f.Types) == 1 {
		where["type"] = string(f.Types[0])
	}
	if !f.IncludeSuperseded {
		where["status"] = string(store.StatusActive)
	}
	if len(where) == 0 {
		return nil
	}
	return where
}
