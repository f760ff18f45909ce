package consolidate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
	"github.com/achouhan93/clusterchat-go/internal/config"
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

func stubGateway(label, description string) *llmgateway.Gateway {
	fc := llmgateway.FuncCompleter(func(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
		return `{"label": "` + label + `", "description": "` + description + `"}`, nil
	})
	return llmgateway.NewWithCompleter("test", config.LLMProfile{Temperature: 0.1, MaxTokens: 256}, fc)
}

func saveSlice(t *testing.T, fa *fakeArtifacts, path string, slice model.TopicSlice) {
	t.Helper()
	blob, err := json.Marshal(slice)
	require.NoError(t, err)
	fa.saved[path] = blob
}

func TestRun_NoTrackerFileIsEmptyResult(t *testing.T) {
	fa := newFakeArtifacts()
	o := New(fa, stubGateway("X", "Y"))
	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{}, result)
}

func TestRun_AssignsGlobalIdsAndSkipsOutlier(t *testing.T) {
	fa := newFakeArtifacts()
	slice := model.TopicSlice{
		WindowStart: "2024-01-01",
		WindowEnd:   "2024-01-15",
		TopicWords: map[int][]model.WordScore{
			-1: {{Word: "noise", Score: 0.1}},
			0:  {{Word: "cardiac", Score: 5}},
			1:  {{Word: "oncology", Score: 4}},
		},
		Centroids: map[int][]float32{
			0: {1, 0, 0},
			1: {0, 1, 0},
		},
	}
	saveSlice(t, fa, "topics/slice_a.json", slice)
	fa.saved["topics/slices.txt"] = []byte("topics/slice_a.json\n")

	o := New(fa, stubGateway("Cardiac Care", "Heart disease studies"))
	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ArtifactsProcessed)
	require.Equal(t, 2, result.TopicsBeforeDedupe)
	require.Equal(t, 2, result.TopicsAfterDedupe)

	var final map[string]model.Topic
	require.NoError(t, json.Unmarshal(fa.saved[FinalTopicsArtifact], &final))
	require.Len(t, final, 2)
	require.Equal(t, "Cardiac Care", final["0"].Label)
}

func TestDedupe_MergesMatchingLabelAndCentroid(t *testing.T) {
	topics := map[string]model.Topic{
		"0": {ID: "0", Label: "Cardiac Care", Centroid: []float32{1, 0, 0}},
		"1": {ID: "1", Label: "cardiac care ", Centroid: []float32{0.999, 0.01, 0}},
		"2": {ID: "2", Label: "Oncology", Centroid: []float32{0, 1, 0}},
	}
	out, merged := dedupe(topics)
	require.Equal(t, 1, merged)
	require.Len(t, out, 2)
}

func TestDedupe_DoesNotMergeDissimilarCentroidsDespiteLabelMatch(t *testing.T) {
	topics := map[string]model.Topic{
		"0": {ID: "0", Label: "Cardiac Care", Centroid: []float32{1, 0, 0}},
		"1": {ID: "1", Label: "Cardiac Care", Centroid: []float32{0, 0, 1}},
	}
	out, merged := dedupe(topics)
	require.Equal(t, 0, merged)
	require.Len(t, out, 2)
}

func TestDedupe_NeverIncreasesTopicCount(t *testing.T) {
	topics := map[string]model.Topic{
		"0": {ID: "0", Label: "A", Centroid: []float32{1, 0}},
		"1": {ID: "1", Label: "B", Centroid: []float32{0, 1}},
	}
	out, _ := dedupe(topics)
	require.LessOrEqual(t, len(out), len(topics))
}

func TestDedupe_CanonicalIsSmallerID(t *testing.T) {
	topics := map[string]model.Topic{
		"3": {ID: "3", Label: "Cardiac Care", Description: "from 3", Centroid: []float32{1, 0}},
		"7": {ID: "7", Label: "Cardiac Care", Description: "from 7", Centroid: []float32{1, 0}},
	}
	out, merged := dedupe(topics)
	require.Equal(t, 1, merged)
	require.Len(t, out, 1)
	for _, topic := range out {
		require.Equal(t, "from 3", topic.Description)
	}
}
