// Package store is the typed wrapper around the document/vector store (C1):
// ensure_index, mget_missing, search/scroll, bulk_upsert, get/update,
// delete_by_query. The document half is backed by Postgres JSONB tables; the
// vector half, for indices that carry an embedding, is backed by Qdrant
// collections keyed by the same document id.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound names the absent-document condition. Get does not return it:
// an absent id is reported as found=false with a nil error.
var ErrNotFound = errors.New("store: document not found")

// Document is one row of an index: an id, an arbitrary JSON-shaped body, and
// an optional embedding present only for indices with a VectorMapping.
type Document struct {
	ID     string
	Body   map[string]any
	Vector []float32
}

// VectorMapping describes the KNN field of an index (§6: knn_vector dim=768,
// hnsw, cosine, ef_construction=40, m=8 — the engine-specific HNSW
// parameters are Qdrant's own collection defaults; only dimension and metric
// are caller-configurable here).
type VectorMapping struct {
	Dimension int
	Metric    string // "cosine" | "l2" | "ip"
}

// Mapping is the idempotent schema declaration passed to EnsureIndex.
// Every table gets a generated tsvector column over the row's search_text,
// filled from the body's "_search_text" field; SearchText, when true, adds a
// GIN index over that column (the caller is responsible for populating that field
// with whatever text should be full-text searchable — title+abstract for
// articles, chunk text for chunks, label+description for clusters).
type Mapping struct {
	SearchText bool
	Vector     *VectorMapping
}

// RangeFilter restricts a body field, read as a string, to [Gte, Lte]
// (either bound may be empty to mean unbounded). Values are compared
// lexicographically, which is sufficient for the ISO date strings this store
// sorts and filters on.
type RangeFilter struct {
	Field string
	Gte   string
	Lte   string
}

// Query is the store's small filter DSL: an implicit AND of Filters and
// Ranges, plus an OR'd MatchPhrase against the named field (used for the
// cluster-label lookup in §4.11: "match_phrase on label, OR over labels,
// minimum_should_match=1").
type Query struct {
	Filters      map[string]string
	Ranges       []RangeFilter
	MatchPhrase  string
	PhraseValues []string
}

// SortField orders a search/scroll by a body field, descending when Desc.
type SortField struct {
	Field string
	Desc  bool
}

// Page is one window of results plus a cursor to continue scrolling, per
// the "caller must clear on completion or abandonment" scroll contract.
type Page struct {
	Items        []Document
	ScrollCursor string
}

// ItemResult is the per-item outcome of a BulkUpsert call; bulk never raises
// on a per-item failure, it reports failures here instead.
type ItemResult struct {
	ID    string
	Error error
}

// Client is the C1 Store Client contract.
type Client interface {
	EnsureIndex(ctx context.Context, index string, mapping Mapping) error
	MGetMissing(ctx context.Context, index string, ids []string) ([]string, error)
	Search(ctx context.Context, index string, q Query, size int, sort []SortField) (Page, error)
	Scroll(ctx context.Context, cursor string, keepAlive int) (Page, error)
	ClearScroll(ctx context.Context, cursor string) error
	BulkUpsert(ctx context.Context, index string, items []Document) ([]ItemResult, error)
	Get(ctx context.Context, index, id string) (Document, bool, error)
	Update(ctx context.Context, index, id string, partial map[string]any) error
	DeleteByQuery(ctx context.Context, index string, q Query) error
	SimilaritySearch(ctx context.Context, index string, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
	Close()
}

func tableName(index string) string {
	return fmt.Sprintf("idx_%s", index)
}
