package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
)

const bulkSubBatchSize = 50

// pgClient is the Client implementation: document bodies live in Postgres
// JSONB tables (one per index), embeddings live in a Qdrant collection per
// vector-bearing index, both keyed by the same document id.
type pgClient struct {
	pool      *pgxpool.Pool
	qdrant    *qdrant.Client
	qdrantDSN string
	cursors   *cursorTable

	mu      sync.Mutex
	vectors map[string]*vectorCollection
}

// Open connects to the Postgres document store and, lazily, the Qdrant
// vector engine (dialed on first EnsureIndex call that declares a vector
// mapping, so a deployment with no KNN indices never needs Qdrant reachable).
func Open(ctx context.Context, dsn string, qdrantDSN string) (Client, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse store dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	c := &pgClient{
		pool:      pool,
		cursors:   newCursorTable(),
		vectors:   make(map[string]*vectorCollection),
		qdrantDSN: qdrantDSN,
	}
	return c, nil
}

func (c *pgClient) Close() {
	c.pool.Close()
	if c.qdrant != nil {
		c.qdrant.Close()
	}
}

func (c *pgClient) EnsureIndex(ctx context.Context, index string, mapping Mapping) error {
	table := tableName(index)
	_, err := c.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  body JSONB NOT NULL DEFAULT '{}'::jsonb,
  search_text TEXT,
  ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(search_text,''))) STORED
)`, table))
	if err != nil {
		return fmt.Errorf("ensure table %s: %w", table, err)
	}
	if mapping.SearchText {
		if _, err := c.pool.Exec(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_ts_idx ON %s USING GIN (ts)`, table, table)); err != nil {
			return fmt.Errorf("ensure ts index on %s: %w", table, err)
		}
	}

	if mapping.Vector == nil {
		return nil
	}
	if err := c.ensureQdrant(); err != nil {
		return err
	}
	vc, err := newVectorCollection(ctx, c.qdrant, index, *mapping.Vector)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.vectors[index] = vc
	c.mu.Unlock()
	return nil
}

func (c *pgClient) ensureQdrant() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qdrant != nil {
		return nil
	}
	client, err := dialQdrant(c.qdrantDSN)
	if err != nil {
		return fmt.Errorf("dial qdrant: %w", err)
	}
	c.qdrant = client
	return nil
}

func (c *pgClient) vectorFor(index string) (*vectorCollection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vc, ok := c.vectors[index]
	return vc, ok
}

func (c *pgClient) MGetMissing(ctx context.Context, index string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table := tableName(index)
	rows, err := c.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, table), ids)
	if err != nil {
		return nil, fmt.Errorf("mget_missing %s: %w", index, err)
	}
	defer rows.Close()

	present := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		present[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (c *pgClient) BulkUpsert(ctx context.Context, index string, items []Document) ([]ItemResult, error) {
	table := tableName(index)
	vc, hasVector := c.vectorFor(index)

	results := make([]ItemResult, 0, len(items))
	for start := 0; start < len(items); start += bulkSubBatchSize {
		end := start + bulkSubBatchSize
		if end > len(items) {
			end = len(items)
		}
		sub := items[start:end]

		batch := &pgx.Batch{}
		for _, item := range sub {
			searchText, _ := item.Body["_search_text"].(string)
			batch.Queue(fmt.Sprintf(`
INSERT INTO %s (id, body, search_text) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, search_text = EXCLUDED.search_text
`, table), item.ID, item.Body, searchText)
		}

		br := c.pool.SendBatch(ctx, batch)
		for _, item := range sub {
			_, execErr := br.Exec()
			results = append(results, ItemResult{ID: item.ID, Error: execErr})
		}
		if err := br.Close(); err != nil {
			return results, fmt.Errorf("bulk_upsert %s: connection failure: %w", index, err)
		}

		if hasVector {
			for _, item := range sub {
				if item.Vector == nil {
					continue
				}
				if err := vc.upsert(ctx, item.ID, item.Vector, item.Body); err != nil {
					for i := range results {
						if results[i].ID == item.ID && results[i].Error == nil {
							results[i].Error = fmt.Errorf("vector upsert: %w", err)
						}
					}
				}
			}
		}
	}
	return results, nil
}

func (c *pgClient) Get(ctx context.Context, index, id string) (Document, bool, error) {
	table := tableName(index)
	var body map[string]any
	err := c.pool.QueryRow(ctx, fmt.Sprintf(`SELECT body FROM %s WHERE id = $1`, table), id).Scan(&body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Document{}, false, nil
		}
		return Document{}, false, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	return Document{ID: id, Body: body}, true, nil
}

func (c *pgClient) Update(ctx context.Context, index, id string, partial map[string]any) error {
	table := tableName(index)
	searchText, hasSearchText := partial["_search_text"].(string)
	var err error
	if hasSearchText {
		_, err = c.pool.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET body = body || $2::jsonb, search_text = $3 WHERE id = $1`, table),
			id, partial, searchText)
	} else {
		_, err = c.pool.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET body = body || $2::jsonb WHERE id = $1`, table), id, partial)
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", index, id, err)
	}
	return nil
}

func (c *pgClient) Search(ctx context.Context, index string, q Query, size int, sort []SortField) (Page, error) {
	if size <= 0 {
		size = 100
	}
	table := tableName(index)
	where, args := buildWhere(q, nil)
	order := buildOrderBy(sort)

	stmt := fmt.Sprintf(`SELECT id, body FROM %s WHERE %s ORDER BY %s LIMIT $%d`,
		table, where, order, len(args)+1)
	args = append(args, size+1)

	rows, err := c.pool.Query(ctx, stmt, args...)
	if err != nil {
		return Page{}, fmt.Errorf("search %s: %w", index, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var body map[string]any
		if err := rows.Scan(&id, &body); err != nil {
			return Page{}, err
		}
		docs = append(docs, Document{ID: id, Body: body})
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	hasMore := len(docs) > size
	if hasMore {
		docs = docs[:size]
	}
	page := Page{Items: docs}
	if hasMore && len(docs) > 0 {
		page.ScrollCursor = c.cursors.open(index, q, docs[len(docs)-1].ID, size, minScrollKeepAlive)
	}
	return page, nil
}

func (c *pgClient) Scroll(ctx context.Context, cursor string, keepAlive int) (Page, error) {
	st, ok := c.cursors.get(cursor)
	if !ok {
		return Page{}, fmt.Errorf("scroll: unknown or expired cursor")
	}
	table := tableName(st.index)
	where, args := buildWhere(st.query, &st.lastID)
	stmt := fmt.Sprintf(`SELECT id, body FROM %s WHERE %s ORDER BY id ASC LIMIT $%d`,
		table, where, len(args)+1)
	args = append(args, st.pageSize+1)

	rows, err := c.pool.Query(ctx, stmt, args...)
	if err != nil {
		return Page{}, fmt.Errorf("scroll %s: %w", st.index, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var body map[string]any
		if err := rows.Scan(&id, &body); err != nil {
			return Page{}, err
		}
		docs = append(docs, Document{ID: id, Body: body})
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	hasMore := len(docs) > st.pageSize
	if hasMore {
		docs = docs[:st.pageSize]
	}
	page := Page{Items: docs}
	if hasMore && len(docs) > 0 {
		if _, ok := c.cursors.advance(cursor, docs[len(docs)-1].ID, time.Duration(keepAlive)*time.Second); ok {
			page.ScrollCursor = cursor
		}
	} else {
		c.cursors.clear(cursor)
	}
	return page, nil
}

func (c *pgClient) ClearScroll(ctx context.Context, cursor string) error {
	c.cursors.clear(cursor)
	return nil
}

func (c *pgClient) DeleteByQuery(ctx context.Context, index string, q Query) error {
	table := tableName(index)
	where, args := buildWhere(q, nil)

	vc, hasVector := c.vectorFor(index)
	if hasVector {
		rows, err := c.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE %s`, table, where), args...)
		if err != nil {
			return fmt.Errorf("delete_by_query %s: select ids: %w", index, err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			_ = vc.delete(ctx, id)
		}
	}

	_, err := c.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, table, where), args...)
	if err != nil {
		return fmt.Errorf("delete_by_query %s: %w", index, err)
	}
	return nil
}

// SimilaritySearch is the vector-side counterpart to Search, used directly
// by the RAG service and the document indexer's nearest-topic lookup; it has
// no analogue in the original eight C1 operations because those predate the
// vector store being split out of the document store.
func (c *pgClient) SimilaritySearch(ctx context.Context, index string, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	vc, ok := c.vectorFor(index)
	if !ok {
		return nil, fmt.Errorf("index %s has no vector mapping", index)
	}
	return vc.similaritySearch(ctx, vector, k, filter)
}

func buildOrderBy(sort []SortField) string {
	if len(sort) == 0 {
		return "id ASC"
	}
	parts := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("body->>'%s' %s", s.Field, dir))
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", ")
}

// buildWhere renders q as a SQL WHERE clause against the body JSONB column,
// optionally anchored past afterID for keyset scroll continuation.
func buildWhere(q Query, afterID *string) (string, []any) {
	var clauses []string
	var args []any

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for field, val := range q.Filters {
		clauses = append(clauses, fmt.Sprintf("body->>'%s' = %s", field, next(val)))
	}
	for _, r := range q.Ranges {
		if r.Gte != "" {
			clauses = append(clauses, fmt.Sprintf("body->>'%s' >= %s", r.Field, next(r.Gte)))
		}
		if r.Lte != "" {
			clauses = append(clauses, fmt.Sprintf("body->>'%s' <= %s", r.Field, next(r.Lte)))
		}
	}
	if q.MatchPhrase != "" && len(q.PhraseValues) > 0 {
		lowered := make([]string, len(q.PhraseValues))
		for i, v := range q.PhraseValues {
			lowered[i] = strings.ToLower(v)
		}
		clauses = append(clauses, fmt.Sprintf("lower(body->>'%s') = ANY(%s::text[])", q.MatchPhrase, next(lowered)))
	}
	if afterID != nil {
		clauses = append(clauses, fmt.Sprintf("id > %s", next(*afterID)))
	}

	if len(clauses) == 0 {
		return "TRUE", args
	}
	return strings.Join(clauses, " AND "), args
}
