// Package consolidate implements the Topic Consolidator (C8, Stage H1):
// reads the topic-slice artifact list C7 produced, assigns each slice's
// non-outlier topics a monotone global id, synthesizes a label/description
// via the LLM gateway, and deduplicates near-identical topics produced by
// overlapping windows.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/llmgateway"
	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/pipeline"
	"github.com/achouhan93/clusterchat-go/internal/textsim"
	"github.com/achouhan93/clusterchat-go/internal/topicmodel"
	"github.com/achouhan93/clusterchat-go/internal/vecmath"
)

const (
	trackerFile     = "topics/slices.txt"
	checkpointName  = "consolidate/checkpoint.json"
	cosineDupThresh = 0.9
	labelDupThresh  = 0.9
)

// FinalTopicsArtifact is the compacted, deduplicated topic set this
// package persists on a successful Run; C9 loads it as its hierarchy
// builder's input.
const FinalTopicsArtifact = "consolidate/topics.json"

// Checkpoint is the resumable state of a consolidation run: every global
// topic assigned so far, the next id to hand out, and which artifacts have
// already been folded in (§4.8).
type Checkpoint struct {
	Topics             map[string]model.Topic `json:"topics"`
	NextID             int                    `json:"next_id"`
	ProcessedArtifacts []string               `json:"processed_artifacts"`
}

// Orchestrator is the C8 Topic Consolidator.
type Orchestrator struct {
	Artifacts artifact.Store
	Gateway   *llmgateway.Gateway
}

// New builds an Orchestrator.
func New(a artifact.Store, g *llmgateway.Gateway) *Orchestrator {
	return &Orchestrator{Artifacts: a, Gateway: g}
}

// Result summarizes a consolidation run.
type Result struct {
	ArtifactsProcessed int
	TopicsBeforeDedupe  int
	TopicsAfterDedupe   int
	Merged              int
}

// Run loads the tracker file of slice-artifact paths, folds any paths not
// yet processed into the checkpoint, then runs the dedupe pass and persists
// the final compacted topic set.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	paths, err := o.readTracker(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(paths) == 0 {
		log.Info().Str("stage", "consolidate").Msg("no topic-slice artifacts, nothing to consolidate")
		return Result{}, nil
	}

	checkpoint, found, err := pipeline.LoadCheckpoint[Checkpoint](ctx, o.Artifacts, checkpointName)
	if err != nil {
		return Result{}, fmt.Errorf("consolidate: load checkpoint: %w", err)
	}
	if !found {
		checkpoint = Checkpoint{Topics: map[string]model.Topic{}}
	}
	if checkpoint.Topics == nil {
		checkpoint.Topics = map[string]model.Topic{}
	}

	done := make(map[string]bool, len(checkpoint.ProcessedArtifacts))
	for _, p := range checkpoint.ProcessedArtifacts {
		done[p] = true
	}

	err = pipeline.ForEachResumable(ctx, paths, func(p string) bool { return done[p] }, func(ctx context.Context, idx int, p string) error {
		if stepErr := o.foldArtifact(ctx, &checkpoint, p); stepErr != nil {
			if saveErr := pipeline.SaveCheckpoint(ctx, o.Artifacts, checkpointName, checkpoint); saveErr != nil {
				log.Error().Err(saveErr).Msg("consolidate: failed to persist checkpoint after error")
			}
			return fmt.Errorf("consolidate: artifact %s: %w", p, stepErr)
		}
		checkpoint.ProcessedArtifacts = append(checkpoint.ProcessedArtifacts, p)
		if err := pipeline.SaveCheckpoint(ctx, o.Artifacts, checkpointName, checkpoint); err != nil {
			return fmt.Errorf("consolidate: save checkpoint: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	before := len(checkpoint.Topics)
	deduped, merged := dedupe(checkpoint.Topics)
	after := len(deduped)

	blob, err := json.Marshal(deduped)
	if err != nil {
		return Result{}, fmt.Errorf("consolidate: marshal final topics: %w", err)
	}
	if err := o.Artifacts.Save(ctx, FinalTopicsArtifact, blob); err != nil {
		return Result{}, fmt.Errorf("consolidate: save final topics: %w", err)
	}

	return Result{
		ArtifactsProcessed: len(paths),
		TopicsBeforeDedupe: before,
		TopicsAfterDedupe:  after,
		Merged:             merged,
	}, nil
}

func (o *Orchestrator) readTracker(ctx context.Context) ([]string, error) {
	blob, err := o.Artifacts.Load(ctx, trackerFile)
	if err != nil {
		if err == artifact.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("consolidate: read tracker: %w", err)
	}
	var paths []string
	for _, line := range strings.Split(string(blob), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// foldArtifact loads one TopicSlice artifact and assigns its non-outlier
// topics fresh global ids (§4.8).
func (o *Orchestrator) foldArtifact(ctx context.Context, checkpoint *Checkpoint, path string) error {
	blob, err := o.Artifacts.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	var slice model.TopicSlice
	if err := json.Unmarshal(blob, &slice); err != nil {
		return fmt.Errorf("unmarshal artifact: %w", err)
	}

	localIDs := make([]int, 0, len(slice.TopicWords))
	for id := range slice.TopicWords {
		if id == topicmodel.Outlier {
			continue
		}
		localIDs = append(localIDs, id)
	}
	sort.Ints(localIDs)

	for _, localID := range localIDs {
		words := slice.TopicWords[localID]
		wordStrings := make([]string, len(words))
		wordSet := make(map[string]struct{}, len(words))
		for i, w := range words {
			wordStrings[i] = w.Word
			wordSet[w.Word] = struct{}{}
		}

		meta := o.Gateway.TopicMetadataPrompt(ctx, wordStrings)
		label, description := "", ""
		if meta.Label != nil {
			label = *meta.Label
		}
		if meta.Description != nil {
			description = *meta.Description
		}

		globalID := strconv.Itoa(checkpoint.NextID)
		checkpoint.NextID++
		checkpoint.Topics[globalID] = model.Topic{
			ID:          globalID,
			Words:       words,
			Label:       label,
			Description: description,
			Centroid:    slice.Centroids[localID],
			WordSet:     wordSet,
		}
	}
	return nil
}

// dedupe implements §4.8's dedupe pass: two topics i<j are duplicates iff
// their labels fuzzy-match (case-insensitive, trimmed, equal or ratio>=0.9)
// AND their centroids' cosine similarity is >=0.9. The canonical id is
// always the smaller of the two (by numeric value, since ids are a
// monotone counter rendered as strings); after one sweep, ids are
// reassigned compactly to "0".."N-1".
func dedupe(topics map[string]model.Topic) (map[string]model.Topic, int) {
	ids := make([]string, 0, len(topics))
	for id := range topics {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		na, _ := strconv.Atoi(ids[a])
		nb, _ := strconv.Atoi(ids[b])
		return na < nb
	})

	canonical := make(map[string]string, len(ids)) // discarded id -> canonical id
	merged := 0
	for i := 0; i < len(ids); i++ {
		idI := ids[i]
		if _, discarded := canonical[idI]; discarded {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			idJ := ids[j]
			if _, discarded := canonical[idJ]; discarded {
				continue
			}
			if isDuplicate(topics[idI], topics[idJ]) {
				canonical[idJ] = idI
				merged++
			}
		}
	}

	var kept []string
	for _, id := range ids {
		if _, discarded := canonical[id]; !discarded {
			kept = append(kept, id)
		}
	}

	out := make(map[string]model.Topic, len(kept))
	for newID, oldID := range kept {
		out[strconv.Itoa(newID)] = remapID(topics[oldID], strconv.Itoa(newID))
	}
	return out, merged
}

func remapID(t model.Topic, newID string) model.Topic {
	t.ID = newID
	return t
}

func isDuplicate(a, b model.Topic) bool {
	labelA := strings.ToLower(strings.TrimSpace(a.Label))
	labelB := strings.ToLower(strings.TrimSpace(b.Label))
	labelMatch := labelA == labelB || textsim.Ratio(labelA, labelB) >= labelDupThresh
	if !labelMatch {
		return false
	}
	return vecmath.CosineSimilarity(a.Centroid, b.Centroid) >= cosineDupThresh
}
