// Package indexstage is the Cluster+Document Indexer (C10, Stage X): ensures
// the cluster and document-projection indices exist, idempotently bulk-loads
// C9's hierarchy into the cluster index, repairs every cluster's path into a
// true root-to-node ancestor chain, and assigns every chunk in a date range
// to its nearest topic cluster for the document-projection index (§4.10).
package indexstage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/docmap"
	"github.com/achouhan93/clusterchat-go/internal/hierarchy"
	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/store"
)

const (
	clusterBulkBatchSize = 50
	docBulkBatchSize     = 1000
	projectionSubBatch   = 500
	projectionDim        = 2
	projectionSeed       = int64(29)

	scrollSize      = 500
	scrollKeepAlive = 600
	articleDateField = "articleDate"
)

// Orchestrator is the C10 Cluster+Document Indexer.
type Orchestrator struct {
	Store              store.Client
	Artifacts          artifact.Store
	ClusterIndex       string
	ChunkIndex         string
	DocProjectionIndex string
}

// New builds an Orchestrator.
func New(s store.Client, a artifact.Store, clusterIndex, chunkIndex, docProjectionIndex string) *Orchestrator {
	return &Orchestrator{
		Store:              s,
		Artifacts:          a,
		ClusterIndex:       clusterIndex,
		ChunkIndex:         chunkIndex,
		DocProjectionIndex: docProjectionIndex,
	}
}

// Result summarizes one Run: cluster indexing, path repair, and document
// assignment.
type Result struct {
	ClustersIndexed  int
	ClustersSkipped  int
	PathsRepaired    int
	DocumentsWritten int
	FailedBatches    int
}

// Run performs the full §4.10 sequence: ensure both indices exist, load C9's
// clusters, idempotently index them, repair their paths, then assign every
// chunk in [start, end] to its nearest cluster.
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time) (Result, error) {
	var result Result

	if err := o.Store.EnsureIndex(ctx, o.ClusterIndex, store.Mapping{
		SearchText: true,
		Vector:     &store.VectorMapping{Dimension: model.ChunkDimension, Metric: "cosine"},
	}); err != nil {
		return result, fmt.Errorf("indexstage: ensure cluster index: %w", err)
	}
	if err := o.Store.EnsureIndex(ctx, o.DocProjectionIndex, store.Mapping{
		Vector: &store.VectorMapping{Dimension: model.ChunkDimension, Metric: "cosine"},
	}); err != nil {
		return result, fmt.Errorf("indexstage: ensure doc projection index: %w", err)
	}

	clustersBlob, err := o.Artifacts.Load(ctx, hierarchy.FinalClustersArtifact)
	if err != nil {
		if err == artifact.ErrNotFound {
			log.Info().Str("stage", "index").Msg("no hierarchy clusters artifact, nothing to index")
			return result, nil
		}
		return result, fmt.Errorf("indexstage: load hierarchy clusters: %w", err)
	}
	var clusters map[string]model.Cluster
	if err := json.Unmarshal(clustersBlob, &clusters); err != nil {
		return result, fmt.Errorf("indexstage: unmarshal hierarchy clusters: %w", err)
	}

	indexed, skipped, err := o.indexClusters(ctx, clusters)
	if err != nil {
		return result, err
	}
	result.ClustersIndexed = indexed
	result.ClustersSkipped = skipped

	repaired, err := o.repairPaths(ctx, clusters)
	if err != nil {
		return result, err
	}
	result.PathsRepaired = repaired

	written, failed, err := o.assignDocuments(ctx, clusters, start, end)
	if err != nil {
		return result, err
	}
	result.DocumentsWritten = written
	result.FailedBatches = failed

	return result, nil
}

// indexClusters writes each cluster not already present in the index
// (idempotent: Get-then-skip), in bulk batches of 50 (§4.10).
func (o *Orchestrator) indexClusters(ctx context.Context, clusters map[string]model.Cluster) (indexed, skipped int, err error) {
	ids := sortedIDs(clusters)

	var pending []store.Document
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		results, err := o.Store.BulkUpsert(ctx, o.ClusterIndex, pending)
		if err != nil {
			return fmt.Errorf("bulk upsert clusters: %w", err)
		}
		for _, r := range results {
			if r.Error != nil {
				log.Error().Err(r.Error).Str("cluster_id", r.ID).Msg("indexstage: cluster upsert failed, continuing")
				continue
			}
			indexed++
		}
		pending = pending[:0]
		return nil
	}

	for _, id := range ids {
		_, found, err := o.Store.Get(ctx, o.ClusterIndex, id)
		if err != nil {
			return indexed, skipped, fmt.Errorf("get cluster %s: %w", id, err)
		}
		if found {
			skipped++
			continue
		}
		c := clusters[id]
		pending = append(pending, store.Document{
			ID:     id,
			Body:   docmap.ClusterToBody(c),
			Vector: c.Centroid,
		})
		if len(pending) >= clusterBulkBatchSize {
			if err := flush(); err != nil {
				return indexed, skipped, err
			}
		}
	}
	if err := flush(); err != nil {
		return indexed, skipped, err
	}
	return indexed, skipped, nil
}

// repairPaths rebuilds every cluster's path as a true root-to-node ancestor
// chain, falling back to depth-ordered inference if the children relation
// is empty (§4.10 "Path repair").
func (o *Orchestrator) repairPaths(ctx context.Context, clusters map[string]model.Cluster) (int, error) {
	parent := childToParent(clusters)
	if len(parent) == 0 {
		parent = inferParentsByDepth(clusters)
	}

	roots := findRoots(clusters, parent)
	paths := make(map[string]string, len(clusters))
	for id := range clusters {
		paths[id] = ancestorPath(id, parent)
	}

	repaired := 0
	ids := sortedIDs(clusters)
	var pending []store.Document
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		results, err := o.Store.BulkUpsert(ctx, o.ClusterIndex, pending)
		if err != nil {
			return fmt.Errorf("bulk update paths: %w", err)
		}
		for _, r := range results {
			if r.Error != nil {
				log.Error().Err(r.Error).Str("cluster_id", r.ID).Msg("indexstage: path update failed, continuing")
				continue
			}
			repaired++
		}
		pending = pending[:0]
		return nil
	}

	for _, id := range ids {
		c := clusters[id]
		c.Path = model.TruncatePath(paths[id])
		clusters[id] = c
		pending = append(pending, store.Document{ID: id, Body: docmap.ClusterToBody(c), Vector: c.Centroid})
		if len(pending) >= clusterBulkBatchSize {
			if err := flush(); err != nil {
				return repaired, err
			}
		}
	}
	if err := flush(); err != nil {
		return repaired, err
	}

	log.Info().Strs("roots", roots).Msg("indexstage: path repair complete")
	return repaired, nil
}

func childToParent(clusters map[string]model.Cluster) map[string]string {
	out := make(map[string]string)
	for id, c := range clusters {
		for _, child := range c.Children {
			out[child] = id
		}
	}
	return out
}

// inferParentsByDepth is the §4.10 fallback when the children relation is
// empty: sort depths descending and assume depth d+1's items are children
// of depth d. It pairs items arbitrarily within a depth level (the children
// relation is the authoritative source; this only covers a corrupted or
// partial hierarchy artifact missing it).
func inferParentsByDepth(clusters map[string]model.Cluster) map[string]string {
	byDepth := make(map[int][]string)
	for id, c := range clusters {
		byDepth[c.Depth] = append(byDepth[c.Depth], id)
	}
	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(depths)))

	parent := make(map[string]string)
	for i := 0; i < len(depths)-1; i++ {
		children := byDepth[depths[i]]
		parents := byDepth[depths[i+1]]
		if len(parents) == 0 {
			continue
		}
		for j, child := range children {
			parent[child] = parents[j%len(parents)]
		}
	}
	return parent
}

func findRoots(clusters map[string]model.Cluster, parent map[string]string) []string {
	var roots []string
	for id := range clusters {
		if _, ok := parent[id]; !ok {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// ancestorPath walks id to its root via parent, returning the slash-joined
// chain root/.../id.
func ancestorPath(id string, parent map[string]string) string {
	chain := []string{id}
	cur := id
	seen := map[string]bool{id: true}
	for {
		p, ok := parent[cur]
		if !ok || seen[p] {
			break
		}
		chain = append(chain, p)
		seen[p] = true
		cur = p
	}
	out := ""
	for i := len(chain) - 1; i >= 0; i-- {
		if out != "" {
			out += "/"
		}
		out += chain[i]
	}
	return out
}

func sortedIDs(clusters map[string]model.Cluster) []string {
	ids := make([]string, 0, len(clusters))
	for id := range clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
