package hierarchy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/config"
	"github.com/achouhan93/clusterchat-go/internal/consolidate"
	"github.com/achouhan93/clusterchat-go/internal/llmgateway"
	"github.com/achouhan93/clusterchat-go/internal/model"
)

type fakeArtifacts struct {
	saved map[string][]byte
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{saved: make(map[string][]byte)}
}

func (f *fakeArtifacts) Save(ctx context.Context, name string, data []byte) error {
	f.saved[name] = data
	return nil
}
func (f *fakeArtifacts) Load(ctx context.Context, name string) ([]byte, error) {
	blob, ok := f.saved[name]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return blob, nil
}
func (f *fakeArtifacts) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := f.saved[name]
	return ok, nil
}
func (f *fakeArtifacts) AppendLine(ctx context.Context, name string, line string) error {
	f.saved[name] = append(f.saved[name], []byte(line+"\n")...)
	return nil
}

func stubGateway() *llmgateway.Gateway {
	fc := llmgateway.FuncCompleter(func(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
		return `{"label": "Parent Topic", "description": "A merged topic"}`, nil
	})
	return llmgateway.NewWithCompleter("test", config.LLMProfile{Temperature: 0.1, MaxTokens: 256}, fc)
}

func saveTopics(t *testing.T, fa *fakeArtifacts, topics map[string]model.Topic) {
	t.Helper()
	blob, err := json.Marshal(topics)
	require.NoError(t, err)
	fa.saved[consolidate.FinalTopicsArtifact] = blob
}

func fourTopics() map[string]model.Topic {
	return map[string]model.Topic{
		"0": {ID: "0", Label: "Cardiac Care", Description: "Heart disease", Centroid: []float32{1, 0, 0, 0}, WordSet: map[string]struct{}{"cardiac": {}}},
		"1": {ID: "1", Label: "Heart Surgery", Description: "Surgical cardiac procedures", Centroid: []float32{0.95, 0.05, 0, 0}, WordSet: map[string]struct{}{"surgery": {}}},
		"2": {ID: "2", Label: "Oncology", Description: "Cancer research", Centroid: []float32{0, 0, 1, 0}, WordSet: map[string]struct{}{"oncology": {}}},
		"3": {ID: "3", Label: "Tumor Genetics", Description: "Genetic markers of tumors", Centroid: []float32{0, 0, 0.95, 0.05}, WordSet: map[string]struct{}{"genetics": {}}},
	}
}

func TestRun_NoTopicsArtifactIsEmptyResult(t *testing.T) {
	fa := newFakeArtifacts()
	o := New(fa, stubGateway())
	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{}, result)
}

func TestRun_BuildsCompleteHierarchyWithOneRoot(t *testing.T) {
	fa := newFakeArtifacts()
	saveTopics(t, fa, fourTopics())
	o := New(fa, stubGateway())

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, result.Leaves)
	require.Equal(t, 3, result.MergesDone)
	require.Equal(t, 7, result.TotalNodes)

	var final map[string]model.Cluster
	require.NoError(t, json.Unmarshal(fa.saved[FinalClustersArtifact], &final))
	require.Len(t, final, 7)

	root, err := Root(final)
	require.NoError(t, err)
	require.True(t, !final[root].IsLeaf || len(final) == 1)

	for id, c := range final {
		if c.IsLeaf {
			require.Empty(t, c.Children)
			continue
		}
		require.Len(t, c.Children, 2, "non-leaf %s must have exactly two children", id)
		for _, child := range c.Children {
			_, ok := final[child]
			require.True(t, ok, "child %s of %s must be present in the map", child, id)
		}
	}
}

func TestRun_NonLeafPathIsPrefixedByItsOwnID(t *testing.T) {
	// §4.9 step 3 defines a non-leaf's path as its own id followed by its
	// two children's paths; the indexer's path-repair pass (C10) later
	// rewrites every cluster's path into a true root-to-node ancestor
	// chain, so this checks only what C9 itself guarantees.
	fa := newFakeArtifacts()
	saveTopics(t, fa, fourTopics())
	o := New(fa, stubGateway())
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	var final map[string]model.Cluster
	require.NoError(t, json.Unmarshal(fa.saved[FinalClustersArtifact], &final))
	for id, c := range final {
		if c.IsLeaf {
			require.Equal(t, id, c.Path)
			continue
		}
		require.True(t, len(c.Path) >= len(id) && c.Path[:len(id)] == id)
	}
}

func TestRun_PairwiseSimilarityCoversEveryOtherCluster(t *testing.T) {
	fa := newFakeArtifacts()
	saveTopics(t, fa, fourTopics())
	o := New(fa, stubGateway())
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	var final map[string]model.Cluster
	require.NoError(t, json.Unmarshal(fa.saved[FinalClustersArtifact], &final))
	for id, c := range final {
		require.Len(t, c.PairwiseSimilarity, len(final)-1)
		for other := range final {
			if other == id {
				continue
			}
			_, ok := c.PairwiseSimilarity[other]
			require.True(t, ok)
		}
	}
}

func TestRun_FewerThanTwoTopicsIsError(t *testing.T) {
	fa := newFakeArtifacts()
	saveTopics(t, fa, map[string]model.Topic{
		"0": {ID: "0", Label: "Only One", Centroid: []float32{1, 0}},
	})
	o := New(fa, stubGateway())
	_, err := o.Run(context.Background())
	require.Error(t, err)
}

func TestRun_ResumesFromCheckpointWithoutRedoingCompletedMerges(t *testing.T) {
	fa := newFakeArtifacts()
	saveTopics(t, fa, fourTopics())
	o := New(fa, stubGateway())

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	var checkpointBefore Checkpoint
	require.NoError(t, json.Unmarshal(fa.saved[checkpointName], &checkpointBefore))

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.MergesDone, "a second run with a fully-applied checkpoint should replay zero merges")
}

func TestRoot_NoParentlessClusterIsError(t *testing.T) {
	clusters := map[string]model.Cluster{
		"0": {ID: "0", Children: []string{"1"}},
		"1": {ID: "1", Children: []string{"0"}},
	}
	_, err := Root(clusters)
	require.Error(t, err)
}
