// Package topicstage drives the Slice Topic Modeler (C7, Stage T): for each
// date window it scrolls the chunk index, fits a topic model with
// internal/topicmodel, and persists one TopicSlice artifact per window.
package topicstage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/docmap"
	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/store"
	"github.com/achouhan93/clusterchat-go/internal/topicmodel"
)

const (
	dateLayout = "2006-01-02"

	defaultStrideDays     = 15
	defaultTargetDim      = 50
	defaultMinClusterSize = 15
	defaultTopNWords      = 10
	defaultDiversity      = 0.3
	defaultSeed           = 42

	scrollSize      = 500
	scrollKeepAlive = 600

	trackerFile = "topics/slices.txt"
)

// Orchestrator is the C7 Slice Topic Modeler.
type Orchestrator struct {
	Store      store.Client
	Artifacts  artifact.Store
	ChunkIndex string

	StrideDays     int
	TargetDim      int
	MinClusterSize int
	TopNWords      int
	Diversity      float64
	Seed           int64
}

// New builds an Orchestrator with §4.7's defaults (15-day stride, UMAP to
// 50 dims, HDBSCAN min_cluster_size=15, MMR diversity=0.3).
func New(s store.Client, a artifact.Store, chunkIndex string) *Orchestrator {
	return &Orchestrator{
		Store:          s,
		Artifacts:      a,
		ChunkIndex:     chunkIndex,
		StrideDays:     defaultStrideDays,
		TargetDim:      defaultTargetDim,
		MinClusterSize: defaultMinClusterSize,
		TopNWords:      defaultTopNWords,
		Diversity:      defaultDiversity,
		Seed:           defaultSeed,
	}
}

// Result summarizes one orchestrator run.
type Result struct {
	WindowsProcessed int
	WindowsSkipped   int
	ArtifactPaths    []string
}

// Run fits and persists one TopicSlice per stride-day window spanning
// [start, end], processed in ascending order (§5 ordering requirement).
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time) (Result, error) {
	if end.Before(start) {
		log.Info().Str("stage", "topic").Msg("empty window, no artifacts written")
		return Result{}, nil
	}

	var result Result
	stride := o.StrideDays
	if stride <= 0 {
		stride = defaultStrideDays
	}

	for wStart := start; !wStart.After(end); wStart = wStart.AddDate(0, 0, stride) {
		wEnd := wStart.AddDate(0, 0, stride-1)
		if wEnd.After(end) {
			wEnd = end
		}

		path, written, err := o.processWindow(ctx, wStart, wEnd)
		if err != nil {
			return result, err
		}
		if !written {
			result.WindowsSkipped++
			continue
		}
		result.WindowsProcessed++
		result.ArtifactPaths = append(result.ArtifactPaths, path)
	}
	return result, nil
}

func (o *Orchestrator) processWindow(ctx context.Context, wStart, wEnd time.Time) (path string, written bool, err error) {
	startStr, endStr := wStart.Format(dateLayout), wEnd.Format(dateLayout)
	log := log.With().Str("stage", "topic").Str("window_start", startStr).Str("window_end", endStr).Logger()

	chunks, err := o.scrollWindow(ctx, startStr, endStr)
	if err != nil {
		return "", false, err
	}
	if len(chunks) == 0 {
		log.Info().Msg("no chunks in window, skipping")
		return "", false, nil
	}

	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vectors[i] = c.Embedding
	}

	reduced := topicmodel.ReduceDims(vectors, o.TargetDim, o.Seed)
	labels := topicmodel.ClusterDensity(reduced, o.MinClusterSize)

	docsByCluster := make(map[int][]string)
	for i, c := range chunks {
		if labels[i] == topicmodel.Outlier {
			continue
		}
		docsByCluster[labels[i]] = append(docsByCluster[labels[i]], c.Text)
	}

	candidatePool := o.TopNWords * 3
	if candidatePool < o.TopNWords {
		candidatePool = o.TopNWords
	}
	rawScores := topicmodel.ClassTFIDF(docsByCluster, candidatePool)

	topicWords := make(map[int][]model.WordScore, len(rawScores))
	for cluster, scores := range rawScores {
		ranked := topicmodel.MMRDiversify(scores, o.Diversity, o.TopNWords)
		words := make([]model.WordScore, len(ranked))
		for i, s := range ranked {
			words[i] = model.WordScore{Word: s.Word, Score: s.Score}
		}
		topicWords[cluster] = words
	}

	centroids := centroidsByCluster(chunks, labels)

	documents := make([]model.SliceDocument, len(chunks))
	for i, c := range chunks {
		documents[i] = model.SliceDocument{
			DocumentID:   c.ID(),
			Text:         c.Text,
			Embedding:    c.Embedding,
			ArticleDate:  c.ArticleDate.Format(dateLayout),
			Title:        c.Title,
			Journal:      c.Journal,
			MeshTerms:    c.MeshNames,
			Chemicals:    c.Chemicals,
			Authors:      c.AuthorNames,
			LocalTopicID: labels[i],
		}
	}

	slice := model.TopicSlice{
		WindowStart: startStr,
		WindowEnd:   endStr,
		TopicWords:  topicWords,
		Centroids:   centroids,
		Documents:   documents,
	}

	blob, err := json.Marshal(slice)
	if err != nil {
		return "", false, fmt.Errorf("topicstage: marshal slice %s..%s: %w", startStr, endStr, err)
	}

	name := fmt.Sprintf("topics/slice_%s_%s.json", startStr, endStr)
	if err := o.Artifacts.Save(ctx, name, blob); err != nil {
		return "", false, fmt.Errorf("topicstage: save artifact %s: %w", name, err)
	}
	if err := o.Artifacts.AppendLine(ctx, trackerFile, name); err != nil {
		return "", false, fmt.Errorf("topicstage: append tracker %s: %w", name, err)
	}

	log.Info().Int("chunks", len(chunks)).Int("topics", len(topicWords)).Msg("topic slice persisted")

	// Release memory before the next window (§4.7: "memory is explicitly
	// released between windows").
	chunks = nil
	vectors = nil
	reduced = nil
	labels = nil

	return name, true, nil
}

// scrollWindow collects every chunk in [gte, lte] (§4.7); topic modeling
// fits over the whole window's chunk set regardless of delivery order, so
// the scroll runs id-ordered like indexstage's scrollChunks — the only
// order Scroll's cursor continuation can correctly guarantee across pages.
func (o *Orchestrator) scrollWindow(ctx context.Context, gte, lte string) ([]model.Chunk, error) {
	q := store.Query{Ranges: []store.RangeFilter{{Field: "articleDate", Gte: gte, Lte: lte}}}

	page, err := o.Store.Search(ctx, o.ChunkIndex, q, scrollSize, nil)
	if err != nil {
		return nil, fmt.Errorf("topicstage: search %s: %w", o.ChunkIndex, err)
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
			return nil, fmt.Errorf("topicstage: scroll %s: %w", o.ChunkIndex, err)
		}
		if len(page.Items) == 0 {
			break
		}
	}
	return chunks, nil
}

func centroidsByCluster(chunks []model.Chunk, labels []int) map[int][]float32 {
	sums := make(map[int][]float32)
	counts := make(map[int]int)
	for i, c := range chunks {
		cluster := labels[i]
		if cluster == topicmodel.Outlier {
			continue
		}
		sum, ok := sums[cluster]
		if !ok {
			sum = make([]float32, len(c.Embedding))
			sums[cluster] = sum
		}
		for j, v := range c.Embedding {
			sum[j] += v
		}
		counts[cluster]++
	}

	centroids := make(map[int][]float32, len(sums))
	for cluster, sum := range sums {
		n := float32(counts[cluster])
		mean := make([]float32, len(sum))
		for j, v := range sum {
			mean[j] = v / n
		}
		centroids[cluster] = mean
	}
	return centroids
}
