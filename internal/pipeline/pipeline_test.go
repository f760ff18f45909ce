package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/achouhan93/clusterchat-go/internal/artifact"
)

func TestBatches_SplitsIntoFixedSizeGroups(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	got := Batches(items, 3)
	require.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, got)
}

func TestBatches_EmptyInputReturnsNil(t *testing.T) {
	require.Nil(t, Batches([]int{}, 10))
}

func TestRetryLinear_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := RetryLinear(context.Background(), 3, time.Millisecond, "test-op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryLinear_ReturnsLastErrorAfterExhaustingAttempts(t *testing.T) {
	calls := 0
	err := RetryLinear(context.Background(), 3, time.Millisecond, "test-op", func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

type checkpointState struct {
	LastIndex int      `json:"last_index"`
	Done      []string `json:"done"`
}

func TestSaveLoadCheckpoint_RoundTrip(t *testing.T) {
	store, err := artifact.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := LoadCheckpoint[checkpointState](ctx, store, "state.json")
	require.NoError(t, err)
	require.False(t, found)

	want := checkpointState{LastIndex: 2, Done: []string{"a", "b"}}
	require.NoError(t, SaveCheckpoint(ctx, store, "state.json", want))

	got, found, err := LoadCheckpoint[checkpointState](ctx, store, "state.json")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)
}

func TestForEachResumable_SkipsCompletedItems(t *testing.T) {
	items := []string{"a", "b", "c"}
	done := map[string]bool{"a": true}
	var processed []string

	err := ForEachResumable(context.Background(), items, func(s string) bool {
		return done[s]
	}, func(ctx context.Context, idx int, item string) error {
		processed = append(processed, item)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, processed)
}

func TestForEachResumable_StopsOnFirstError(t *testing.T) {
	items := []string{"a", "b", "c"}
	var processed []string
	boom := errors.New("boom")

	err := ForEachResumable(context.Background(), items, func(string) bool { return false },
		func(ctx context.Context, idx int, item string) error {
			processed = append(processed, item)
			if item == "b" {
				return boom
			}
			return nil
		})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"a", "b"}, processed)
}
