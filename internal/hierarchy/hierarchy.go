// Package hierarchy implements the Hierarchy Builder (C9, Stage H2):
// initializes one leaf cluster per consolidated topic, runs average-linkage
// agglomerative clustering over their centroids, and replays the resulting
// merge list to build a binary hierarchy with LLM-synthesized parent
// labels, checkpointing after every merge so a restart resumes exactly
// where it left off (§4.9).
package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/consolidate"
	"github.com/achouhan93/clusterchat-go/internal/llmgateway"
	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/pipeline"
	"github.com/achouhan93/clusterchat-go/internal/topicmodel"
	"github.com/achouhan93/clusterchat-go/internal/vecmath"
)

const (
	checkpointName = "hierarchy/checkpoint.json"
	projectionDim  = 2
	projectionSeed = int64(17)
)

// FinalClustersArtifact is the complete cluster set (leaves and internals,
// with pairwise similarity filled in) this package persists on a successful
// Run; C10 loads it as the input to cluster indexing and path repair.
const FinalClustersArtifact = "hierarchy/clusters.json"

// Checkpoint is the resumable state §4.9 step 4 requires: every cluster
// built so far, the centroid of each, the full linkage plan, and the index
// of the last merge step fully applied (-1 before any merge has run).
type Checkpoint struct {
	Clusters    map[string]model.Cluster `json:"clusters"`
	Centroids   map[string][]float32     `json:"centroids"`
	Linkage     []topicmodel.Merge       `json:"linkage"`
	LeafOrder   []string                 `json:"leaf_order"`
	LastMergeID int                      `json:"last_merge_id"`
}

// Orchestrator is the C9 Hierarchy Builder.
type Orchestrator struct {
	Artifacts artifact.Store
	Gateway   *llmgateway.Gateway
}

// New builds an Orchestrator.
func New(a artifact.Store, g *llmgateway.Gateway) *Orchestrator {
	return &Orchestrator{Artifacts: a, Gateway: g}
}

// Result summarizes a hierarchy-build run.
type Result struct {
	Leaves     int
	MergesDone int
	TotalNodes int
}

// Run loads C8's consolidated topics, builds (or resumes) the merge
// checkpoint, replays any unapplied merges, and on completion computes and
// stores the full pairwise similarity map before persisting the final
// cluster set.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	topicsBlob, err := o.Artifacts.Load(ctx, consolidate.FinalTopicsArtifact)
	if err != nil {
		if err == artifact.ErrNotFound {
			log.Info().Str("stage", "hierarchy").Msg("no consolidated topics, nothing to build")
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("hierarchy: load consolidated topics: %w", err)
	}
	var topics map[string]model.Topic
	if err := json.Unmarshal(topicsBlob, &topics); err != nil {
		return Result{}, fmt.Errorf("hierarchy: unmarshal topics: %w", err)
	}
	if len(topics) < 2 {
		return Result{}, fmt.Errorf("hierarchy: need at least 2 topics to build a hierarchy, got %d", len(topics))
	}

	checkpoint, found, err := pipeline.LoadCheckpoint[Checkpoint](ctx, o.Artifacts, checkpointName)
	if err != nil {
		return Result{}, fmt.Errorf("hierarchy: load checkpoint: %w", err)
	}
	if !found {
		checkpoint, err = o.initCheckpoint(ctx, topics)
		if err != nil {
			return Result{}, fmt.Errorf("hierarchy: init checkpoint: %w", err)
		}
		if err := pipeline.SaveCheckpoint(ctx, o.Artifacts, checkpointName, checkpoint); err != nil {
			return Result{}, fmt.Errorf("hierarchy: save initial checkpoint: %w", err)
		}
	}

	n := len(checkpoint.LeafOrder)
	mergesApplied := 0
	for step := checkpoint.LastMergeID + 1; step < len(checkpoint.Linkage); step++ {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		merge := checkpoint.Linkage[step]
		if err := o.applyMerge(ctx, &checkpoint, n, step, merge); err != nil {
			return Result{}, fmt.Errorf("hierarchy: merge step %d: %w", step, err)
		}
		checkpoint.LastMergeID = step
		if err := pipeline.SaveCheckpoint(ctx, o.Artifacts, checkpointName, checkpoint); err != nil {
			return Result{}, fmt.Errorf("hierarchy: save checkpoint after merge %d: %w", step, err)
		}
		mergesApplied++
	}

	computePairwiseSimilarity(checkpoint.Clusters)

	blob, err := json.Marshal(checkpoint.Clusters)
	if err != nil {
		return Result{}, fmt.Errorf("hierarchy: marshal final clusters: %w", err)
	}
	if err := o.Artifacts.Save(ctx, FinalClustersArtifact, blob); err != nil {
		return Result{}, fmt.Errorf("hierarchy: save final clusters: %w", err)
	}

	return Result{
		Leaves:     n,
		MergesDone: mergesApplied,
		TotalNodes: len(checkpoint.Clusters),
	}, nil
}

// initCheckpoint builds the leaf clusters (step 1), runs the agglomerative
// merge to get the linkage plan (step 2), and returns the initial
// checkpoint with LastMergeID=-1 (no merge applied yet).
func (o *Orchestrator) initCheckpoint(ctx context.Context, topics map[string]model.Topic) (Checkpoint, error) {
	ids := make([]string, 0, len(topics))
	for id := range topics {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		na, _ := strconv.Atoi(ids[a])
		nb, _ := strconv.Atoi(ids[b])
		return na < nb
	})

	centroidMatrix := make([][]float32, len(ids))
	clusters := make(map[string]model.Cluster, len(ids))
	centroids := make(map[string][]float32, len(ids))
	for i, id := range ids {
		t := topics[id]
		centroidMatrix[i] = t.Centroid
		centroids[id] = t.Centroid
	}

	projected := topicmodel.ReduceDims(centroidMatrix, projectionDim, projectionSeed)
	for i, id := range ids {
		t := topics[id]
		x, y := 0.0, 0.0
		if len(projected[i]) >= 2 {
			x, y = projected[i][0], projected[i][1]
		}
		clusters[id] = model.Cluster{
			ID:          id,
			Label:       t.Label,
			Description: t.Description,
			TopicWords:  t.WordSet,
			IsLeaf:      true,
			Depth:       0,
			Path:        id,
			X:           x,
			Y:           y,
			Children:    nil,
			Size:        1,
			Centroid:    t.Centroid,
		}
	}

	linkage := topicmodel.AgglomerativeMerge(centroidMatrix)

	return Checkpoint{
		Clusters:    clusters,
		Centroids:   centroids,
		Linkage:     linkage,
		LeafOrder:   ids,
		LastMergeID: -1,
	}, nil
}

// applyMerge resolves a single linkage step's child cluster ids, computes
// the parent's attributes, invokes C12 for its label/description, and
// records the new cluster (§4.9 step 3).
func (o *Orchestrator) applyMerge(ctx context.Context, cp *Checkpoint, n, step int, merge topicmodel.Merge) error {
	newID := fmt.Sprintf("cluster_%d", step)

	leftID := resolveClusterID(cp.LeafOrder, n, merge.Left, step)
	rightID := resolveClusterID(cp.LeafOrder, n, merge.Right, step)

	left, ok := cp.Clusters[leftID]
	if !ok {
		return fmt.Errorf("unresolved left child %s for merge %d", leftID, step)
	}
	right, ok := cp.Clusters[rightID]
	if !ok {
		return fmt.Errorf("unresolved right child %s for merge %d", rightID, step)
	}

	depth := left.Depth
	if right.Depth > depth {
		depth = right.Depth
	}
	depth++

	size := left.Size + right.Size

	xy := vecmath.WeightedMean(
		[][]float64{{left.X, left.Y}, {right.X, right.Y}},
		[]float64{float64(left.Size), float64(right.Size)},
	)
	var x, y float64
	if len(xy) >= 2 {
		x, y = xy[0], xy[1]
	}

	centroid := vecmath.Mean([][]float32{left.Centroid, right.Centroid})

	topicWords := make(map[string]struct{}, len(left.TopicWords)+len(right.TopicWords))
	for w := range left.TopicWords {
		topicWords[w] = struct{}{}
	}
	for w := range right.TopicWords {
		topicWords[w] = struct{}{}
	}

	path := model.TruncatePath(newID + "/" + left.Path + "/" + right.Path)

	meta := o.Gateway.ParentClusterPrompt(ctx, left.Label, left.Description, right.Label, right.Description)
	label, description := "", ""
	if meta.Label != nil {
		label = *meta.Label
	} else {
		log.Warn().Str("cluster", newID).Str("error", meta.Error).Msg("hierarchy: parent label synthesis failed, storing null")
	}
	if meta.Description != nil {
		description = *meta.Description
	}

	cp.Clusters[newID] = model.Cluster{
		ID:          newID,
		Label:       label,
		Description: description,
		TopicWords:  topicWords,
		IsLeaf:      false,
		Depth:       depth,
		Path:        path,
		X:           x,
		Y:           y,
		Children:    []string{leftID, rightID},
		Size:        size,
		Centroid:    centroid,
	}
	cp.Centroids[newID] = centroid
	return nil
}

// resolveClusterID maps a linkage index to a cluster id: indices < n are
// original leaf indices (resolved through leafOrder); indices >= n refer to
// the cluster produced by an earlier merge step (§4.9 step 3: "leaf id for
// original indices, cluster_{k} for synthetic ones"). currentStep is not
// used by the mapping.
func resolveClusterID(leafOrder []string, n, idx, currentStep int) string {
	if idx < n {
		return leafOrder[idx]
	}
	return fmt.Sprintf("cluster_%d", idx-n)
}

// computePairwiseSimilarity fills in every cluster's PairwiseSimilarity map
// with its cosine similarity to every other cluster's centroid (§4.9 step 5).
func computePairwiseSimilarity(clusters map[string]model.Cluster) {
	ids := make([]string, 0, len(clusters))
	for id := range clusters {
		ids = append(ids, id)
	}
	for _, id := range ids {
		c := clusters[id]
		c.PairwiseSimilarity = make(map[string]float64, len(ids)-1)
		for _, other := range ids {
			if other == id {
				continue
			}
			c.PairwiseSimilarity[other] = vecmath.CosineSimilarity(c.Centroid, clusters[other].Centroid)
		}
		clusters[id] = c
	}
}

// Root returns the id of the cluster with no parent, i.e. the id never
// listed in any other cluster's Children (§4.9 invariant: "exactly one
// cluster has no parent").
func Root(clusters map[string]model.Cluster) (string, error) {
	hasParent := make(map[string]bool, len(clusters))
	for _, c := range clusters {
		for _, child := range c.Children {
			hasParent[child] = true
		}
	}
	var roots []string
	for id := range clusters {
		if !hasParent[id] {
			roots = append(roots, id)
		}
	}
	if len(roots) != 1 {
		return "", fmt.Errorf("hierarchy: expected exactly one parentless cluster, found %d: %s", len(roots), strings.Join(roots, ","))
	}
	return roots[0], nil
}
