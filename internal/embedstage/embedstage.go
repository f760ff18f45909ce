// Package embedstage is the Embedding Orchestrator (C6, Stage E): scrolls
// the article index descending by date, chunks each usable abstract,
// embeds every chunk, and bulk-upserts the result into a chunk index.
package embedstage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/chunk"
	"github.com/achouhan93/clusterchat-go/internal/docmap"
	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/pipeline"
	"github.com/achouhan93/clusterchat-go/internal/store"
)

const (
	scrollSize        = 500
	scrollKeepAlive   = 600 // seconds, §4.6
	bulkBatchSize     = 1000
	defaultMaxTokens  = 256
	articleDateField  = "articleDate"
)

// Embedder embeds a batch of texts into equal-length vectors. Satisfied by
// embedding.EmbedText bound to a config.EmbeddingConfig.
type Embedder func(ctx context.Context, texts []string) ([][]float32, error)

// Orchestrator drives Stage E.
type Orchestrator struct {
	Store          store.Client
	Embed          Embedder
	ArticleIndex   string
	ChunkIndex     string
	MaxInputTokens int
}

// New builds an Orchestrator targeting chunkIndex (the caller selects
// complete vs. sentence index per the --chunking flag).
func New(s store.Client, embed Embedder, articleIndex, chunkIndex string, maxInputTokens int) *Orchestrator {
	if maxInputTokens <= 0 {
		maxInputTokens = defaultMaxTokens
	}
	return &Orchestrator{Store: s, Embed: embed, ArticleIndex: articleIndex, ChunkIndex: chunkIndex, MaxInputTokens: maxInputTokens}
}

// Result summarizes a run.
type Result struct {
	DaysProcessed int
	ChunksWritten int
	FailedBatches int
}

// Run steps the date window from end back to start, one day at a time
// (§4.6, §5). An empty window logs once and returns a zero Result (§8 B1).
func (o *Orchestrator) Run(ctx context.Context, strategy chunk.Strategy, start, end time.Time) (Result, error) {
	if end.Before(start) {
		log.Info().Msg("embedstage: empty date window, no writes")
		return Result{}, nil
	}

	var result Result
	for d := end; !d.Before(start); d = d.AddDate(0, 0, -1) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, failed, err := o.processDay(ctx, strategy, d)
		if err != nil {
			return result, fmt.Errorf("embedstage: day %s: %w", d.Format("2006-01-02"), err)
		}
		result.DaysProcessed++
		result.ChunksWritten += n
		result.FailedBatches += failed
	}
	return result, nil
}

func (o *Orchestrator) processDay(ctx context.Context, strategy chunk.Strategy, d time.Time) (written, failedBatches int, err error) {
	dateStr := d.Format("2006-01-02")
	query := store.Query{
		Ranges: []store.RangeFilter{{Field: articleDateField, Gte: dateStr, Lte: dateStr}},
	}
	sort := []store.SortField{{Field: articleDateField, Desc: true}}

	page, err := o.Store.Search(ctx, o.ArticleIndex, query, scrollSize, sort)
	if err != nil {
		return 0, 0, fmt.Errorf("search: %w", err)
	}

	var pending []model.Chunk
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		ok := o.bulkUpsertChunks(ctx, pending)
		if !ok {
			failedBatches++
		} else {
			written += len(pending)
		}
		pending = nil
		return nil
	}

	for {
		for _, doc := range page.Items {
			abstract, _ := doc.Body["abstract"].(string)
			if !model.HasUsableAbstract(abstract) {
				continue
			}
			for _, c := range chunksForArticle(doc, strategy, o.MaxInputTokens) {
				pending = append(pending, c)
				if len(pending) >= bulkBatchSize {
					if err := flush(); err != nil {
						return written, failedBatches, err
					}
				}
			}
		}

		if page.ScrollCursor == "" {
			break
		}
		page, err = o.Store.Scroll(ctx, page.ScrollCursor, scrollKeepAlive)
		if err != nil {
			return written, failedBatches, fmt.Errorf("scroll: %w", err)
		}
		if len(page.Items) == 0 {
			_ = o.Store.ClearScroll(ctx, page.ScrollCursor)
			break
		}
	}
	if err := flush(); err != nil {
		return written, failedBatches, err
	}
	return written, failedBatches, nil
}

// RunIDs embeds a fixed list of article ids instead of a date window (§6's
// --json_file mode). Ids absent from the article index or lacking a usable
// abstract are skipped, matching processDay's per-article filtering.
func (o *Orchestrator) RunIDs(ctx context.Context, strategy chunk.Strategy, ids []string) (Result, error) {
	if len(ids) == 0 {
		log.Info().Msg("embedstage: empty id list, no writes")
		return Result{}, nil
	}

	var result Result
	var pending []model.Chunk
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if o.bulkUpsertChunks(ctx, pending) {
			result.ChunksWritten += len(pending)
		} else {
			result.FailedBatches++
		}
		pending = nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		doc, ok, err := o.Store.Get(ctx, o.ArticleIndex, id)
		if err != nil {
			return result, fmt.Errorf("embedstage: get %s: %w", id, err)
		}
		if !ok {
			log.Warn().Str("id", id).Msg("embedstage: id not found, skipping")
			continue
		}
		abstract, _ := doc.Body["abstract"].(string)
		if !model.HasUsableAbstract(abstract) {
			continue
		}
		for _, c := range chunksForArticle(doc, strategy, o.MaxInputTokens) {
			pending = append(pending, c)
			if len(pending) >= bulkBatchSize {
				flush()
			}
		}
	}
	flush()
	result.DaysProcessed = 0
	return result, nil
}

// chunksForArticle denormalizes the article's nested metadata (§4.6) and
// splits its abstract per strategy, returning one model.Chunk per piece.
func chunksForArticle(doc store.Document, strategy chunk.Strategy, maxTokens int) []model.Chunk {
	abstract, _ := doc.Body["abstract"].(string)
	title, _ := doc.Body["title"].(string)
	pieces := chunk.Split(strategy, abstract, maxTokens)
	if len(pieces) == 0 {
		return nil
	}

	journalTitle := ""
	if j, ok := doc.Body["journal"].(map[string]any); ok {
		journalTitle, _ = j["title"].(string)
	}

	meshNames := denormalizeMesh(doc.Body["meshTerms"], "name")
	meshIDs := denormalizeMesh(doc.Body["meshTerms"], "id")
	chemicals := denormalizeList(doc.Body["chemicals"], "name")
	keywords := denormalizeList(doc.Body["keywords"], "name")
	authorNames, authorAffiliations := denormalizeAuthors(doc.Body["authors"])
	articleDate := docmap.ArticleDateFromBody(doc.Body)

	out := make([]model.Chunk, len(pieces))
	for j, text := range pieces {
		out[j] = model.Chunk{
			ArticleID:          doc.ID,
			Index:              j,
			Text:               text,
			ArticleDate:        articleDate,
			Title:              title,
			Journal:            journalTitle,
			MeshNames:          meshNames,
			MeshIDs:            meshIDs,
			Chemicals:          chemicals,
			Keywords:           keywords,
			AuthorNames:        authorNames,
			AuthorAffiliations: authorAffiliations,
			SourceIndex:        string(strategy),
		}
	}
	return out
}

// asObjectList normalizes a JSONB-decoded nested array field to
// []map[string]any, accepting both the []any-of-map (the shape pgx's jsonb
// codec produces after a round trip through Postgres) and the
// []map[string]any shape a caller may build directly in-process (as tests
// and docmap.ArticleToBody callers do before ever hitting the store).
func asObjectList(raw any) []map[string]any {
	switch v := raw.(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func denormalizeList(raw any, field string) []string {
	items := asObjectList(raw)
	if len(items) == 0 {
		return []string{model.NoneSentinel}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if v, ok := it[field].(string); ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{model.NoneSentinel}
	}
	return out
}

func denormalizeMesh(raw any, field string) []string {
	return denormalizeList(raw, field)
}

func denormalizeAuthors(raw any) (names, affiliations []string) {
	items := asObjectList(raw)
	if len(items) == 0 {
		return []string{model.NoneSentinel}, []string{model.NoneSentinel}
	}
	for _, a := range items {
		first, _ := a["first"].(string)
		last, _ := a["last"].(string)
		names = append(names, strings.TrimSpace(last+" "+first))
		switch affs := a["affiliations"].(type) {
		case []string:
			affiliations = append(affiliations, affs...)
		case []any:
			for _, e := range affs {
				if s, ok := e.(string); ok {
					affiliations = append(affiliations, s)
				}
			}
		}
	}
	if len(names) == 0 {
		names = []string{model.NoneSentinel}
	}
	if len(affiliations) == 0 {
		affiliations = []string{model.NoneSentinel}
	}
	return names, affiliations
}

// bulkUpsertChunks embeds and writes one batch. On any error it logs and
// returns false (§4.6: "on bulk exception: log and set a failure flag;
// continue with the next batch").
func (o *Orchestrator) bulkUpsertChunks(ctx context.Context, chunks []model.Chunk) bool {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := o.Embed(ctx, texts)
	if err != nil {
		log.Error().Err(err).Int("count", len(chunks)).Msg("embedstage: embedding batch failed")
		return false
	}
	if len(vectors) != len(chunks) {
		log.Error().Int("want", len(chunks)).Int("got", len(vectors)).Msg("embedstage: embedding count mismatch")
		return false
	}

	docs := make([]store.Document, len(chunks))
	for i, c := range chunks {
		c.Embedding = vectors[i]
		docs[i] = store.Document{ID: c.ID(), Body: docmap.ChunkToBody(c), Vector: vectors[i]}
	}

	results, err := o.Store.BulkUpsert(ctx, o.ChunkIndex, docs)
	if err != nil {
		log.Error().Err(err).Msg("embedstage: bulk upsert failed")
		return false
	}
	ok := true
	for _, r := range results {
		if r.Error != nil {
			ok = false
			log.Error().Err(r.Error).Str("id", r.ID).Msg("embedstage: bulk upsert item failed")
		}
	}
	return ok
}
