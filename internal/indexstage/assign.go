package indexstage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/docmap"
	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/store"
	"github.com/achouhan93/clusterchat-go/internal/topicmodel"
	"github.com/achouhan93/clusterchat-go/internal/vecmath"
)

const dateLayout = "2006-01-02"

// assignDocuments scrolls the chunk index over [start, end], assigns each
// chunk to its nearest leaf (topic-level) cluster by cosine-similarity
// argmax, 2D-projects its embedding in sub-batches of 500, and bulk upserts
// the result into the document-projection index in batches of 1000 (§4.10
// "Document assignment").
func (o *Orchestrator) assignDocuments(ctx context.Context, clusters map[string]model.Cluster, start, end time.Time) (written, failedBatches int, err error) {
	topicIDs, topicCentroids := leafCentroids(clusters)
	if len(topicIDs) == 0 {
		log.Info().Str("stage", "index").Msg("no leaf clusters, skipping document assignment")
		return 0, 0, nil
	}

	chunks, err := o.scrollChunks(ctx, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return 0, 0, err
	}
	if len(chunks) == 0 {
		return 0, 0, nil
	}

	assignments := make([]model.DocumentAssignment, len(chunks))
	for i, c := range chunks {
		assignments[i] = model.DocumentAssignment{
			DocumentID: c.ID(),
			ClusterID:  argmaxCluster(c.Embedding, topicIDs, topicCentroids),
		}
	}

	for start := 0; start < len(chunks); start += projectionSubBatch {
		end := start + projectionSubBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		sub := make([][]float32, end-start)
		for i := range sub {
			sub[i] = chunks[start+i].Embedding
		}
		xs, ys := projectSubBatch(sub)
		for i := range sub {
			assignments[start+i].X = xs[i]
			assignments[start+i].Y = ys[i]
		}
	}

	for batchStart := 0; batchStart < len(chunks); batchStart += docBulkBatchSize {
		batchEnd := batchStart + docBulkBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		ok, n := o.upsertDocBatch(ctx, chunks[batchStart:batchEnd], assignments[batchStart:batchEnd])
		written += n
		if !ok {
			failedBatches++
		}
	}

	return written, failedBatches, nil
}

func (o *Orchestrator) upsertDocBatch(ctx context.Context, chunks []model.Chunk, assignments []model.DocumentAssignment) (bool, int) {
	docs := make([]store.Document, len(chunks))
	for i, c := range chunks {
		body := docmap.DocumentAssignmentToBody(assignments[i], map[string]any{
			"title":     c.Title,
			"abstract":  c.Text,
			"date":      c.ArticleDate.Format(dateLayout),
			"authors":   c.AuthorNames,
			"keywords":  c.Keywords,
			"mesh":      c.MeshNames,
			"chemicals": c.Chemicals,
			"journal":   c.Journal,
		})
		docs[i] = store.Document{ID: c.ID(), Body: body, Vector: c.Embedding}
	}

	results, err := o.Store.BulkUpsert(ctx, o.DocProjectionIndex, docs)
	if err != nil {
		log.Error().Err(err).Msg("indexstage: document-projection bulk upsert failed")
		return false, 0
	}
	n := 0
	ok := true
	for _, r := range results {
		if r.Error != nil {
			log.Error().Err(r.Error).Str("document_id", r.ID).Msg("indexstage: document upsert failed, continuing")
			ok = false
			continue
		}
		n++
	}
	return ok, n
}

func (o *Orchestrator) scrollChunks(ctx context.Context, gte, lte string) ([]model.Chunk, error) {
	q := store.Query{Ranges: []store.RangeFilter{{Field: articleDateField, Gte: gte, Lte: lte}}}

	page, err := o.Store.Search(ctx, o.ChunkIndex, q, scrollSize, nil)
	if err != nil {
		return nil, fmt.Errorf("indexstage: search %s: %w", o.ChunkIndex, err)
	}

	var chunks []model.Chunk
	for {
		for _, doc := range page.Items {
			chunks = append(chunks, docmap.ChunkFromBody(doc.Body, doc.Vector))
		}
		if page.ScrollCursor == "" {
			break
		}
		page, err = o.Store.Scroll(ctx, page.ScrollCursor, scrollKeepAlive)
		if err != nil {
			return nil, fmt.Errorf("indexstage: scroll %s: %w", o.ChunkIndex, err)
		}
		if len(page.Items) == 0 {
			break
		}
	}
	return chunks, nil
}

func leafCentroids(clusters map[string]model.Cluster) ([]string, [][]float32) {
	ids := make([]string, 0, len(clusters))
	for id, c := range clusters {
		if c.IsLeaf {
			ids = append(ids, id)
		}
	}
	centroids := make([][]float32, len(ids))
	for i, id := range ids {
		centroids[i] = clusters[id].Centroid
	}
	return ids, centroids
}

func argmaxCluster(embedding []float32, ids []string, centroids [][]float32) string {
	best := -1
	bestSim := -2.0 // cosine similarity is always >= -1
	for i, c := range centroids {
		sim := vecmath.CosineSimilarity(embedding, c)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	if best == -1 {
		return ""
	}
	return ids[best]
}

// projectSubBatch 2D-projects a sub-batch of embeddings via the same
// no-library random-projection substitute C7/C9 use, recovering to an
// all-(0,0) fallback per item on an unexpected panic so one bad sub-batch
// never aborts the whole assignment run (§4.10: "on sub-batch failure,
// substitute (0,0) and log").
func projectSubBatch(embeddings [][]float32) (xs, ys []float64) {
	xs = make([]float64, len(embeddings))
	ys = make([]float64, len(embeddings))

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("indexstage: 2D projection sub-batch failed, substituting (0,0)")
			for i := range xs {
				xs[i], ys[i] = 0, 0
			}
		}
	}()

	projected := topicmodel.ReduceDims(embeddings, projectionDim, projectionSeed)
	for i := range embeddings {
		if i < len(projected) && len(projected[i]) >= 2 {
			xs[i], ys[i] = projected[i][0], projected[i][1]
		}
	}
	return xs, ys
}
