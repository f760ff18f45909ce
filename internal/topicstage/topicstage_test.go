package topicstage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/achouhan93/clusterchat-go/internal/model"
	"github.com/achouhan93/clusterchat-go/internal/store"
)

type fakeStore struct {
	page store.Page
}

func (f *fakeStore) EnsureIndex(ctx context.Context, index string, mapping store.Mapping) error {
	return nil
}
func (f *fakeStore) MGetMissing(ctx context.Context, index string, ids []string) ([]string, error) {
	return ids, nil
}
func (f *fakeStore) Search(ctx context.Context, index string, q store.Query, size int, sort []store.SortField) (store.Page, error) {
	return f.page, nil
}
func (f *fakeStore) Scroll(ctx context.Context, cursor string, keepAlive int) (store.Page, error) {
	return store.Page{}, nil
}
func (f *fakeStore) ClearScroll(ctx context.Context, cursor string) error { return nil }
func (f *fakeStore) BulkUpsert(ctx context.Context, index string, items []store.Document) ([]store.ItemResult, error) {
	return nil, nil
}
func (f *fakeStore) Get(ctx context.Context, index, id string) (store.Document, bool, error) {
	return store.Document{}, false, nil
}
func (f *fakeStore) Update(ctx context.Context, index, id string, partial map[string]any) error {
	return nil
}
func (f *fakeStore) DeleteByQuery(ctx context.Context, index string, q store.Query) error { return nil }
func (f *fakeStore) SimilaritySearch(ctx context.Context, index string, vector []float32, k int, filter map[string]string) ([]store.VectorResult, error) {
	return nil, nil
}
func (f *fakeStore) Close() {}

type fakeArtifacts struct {
	saved   map[string][]byte
	tracker []string
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{saved: make(map[string][]byte)}
}

func (f *fakeArtifacts) Save(ctx context.Context, name string, data []byte) error {
	f.saved[name] = data
	return nil
}
func (f *fakeArtifacts) Load(ctx context.Context, name string) ([]byte, error) {
	return f.saved[name], nil
}
func (f *fakeArtifacts) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := f.saved[name]
	return ok, nil
}
func (f *fakeArtifacts) AppendLine(ctx context.Context, name string, line string) error {
	f.tracker = append(f.tracker, line)
	return nil
}

func chunkBody(cluster string, text string) map[string]any {
	return map[string]any{
		"text":        text,
		"articleDate": "2024-01-05",
		"title":       "T-" + cluster,
		"journal":     "J",
	}
}

func TestRun_EmptyWindowNoArtifacts(t *testing.T) {
	fs := &fakeStore{}
	fa := newFakeArtifacts()
	o := New(fs, fa, "chunks_sentence")

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := o.Run(context.Background(), start, end)
	require.NoError(t, err)
	require.Equal(t, Result{}, result)
}

func TestRun_NoChunksInWindowIsSkippedNotFailed(t *testing.T) {
	fs := &fakeStore{page: store.Page{}}
	fa := newFakeArtifacts()
	o := New(fs, fa, "chunks_sentence")

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := o.Run(context.Background(), day, day)
	require.NoError(t, err)
	require.Equal(t, 0, result.WindowsProcessed)
	require.Equal(t, 1, result.WindowsSkipped)
	require.Empty(t, fa.tracker)
}

func TestRun_SingleWindowPersistsArtifactAndAppendsTracker(t *testing.T) {
	var items []store.Document
	for i := 0; i < 5; i++ {
		items = append(items, store.Document{
			ID:     "doc-a_" + itoa(i),
			Body:   chunkBody("a", "cardiac arrhythmia treatment outcomes in patients"),
			Vector: []float32{1, 0, 0, 0},
		})
	}
	fs := &fakeStore{page: store.Page{Items: items}}
	fa := newFakeArtifacts()
	o := New(fs, fa, "chunks_sentence")
	o.MinClusterSize = 3

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := o.Run(context.Background(), day, day)
	require.NoError(t, err)
	require.Equal(t, 1, result.WindowsProcessed)
	require.Len(t, result.ArtifactPaths, 1)
	require.Len(t, fa.tracker, 1)
	require.Equal(t, result.ArtifactPaths[0], fa.tracker[0])

	blob := fa.saved[result.ArtifactPaths[0]]
	var slice model.TopicSlice
	require.NoError(t, json.Unmarshal(blob, &slice))
	require.Equal(t, "2024-01-01", slice.WindowStart)
	require.Len(t, slice.Documents, 5)
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var out []byte
	for i > 0 {
		out = append([]byte{digits[i%10]}, out...)
		i /= 10
	}
	return string(out)
}
