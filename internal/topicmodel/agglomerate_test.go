package topicmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgglomerativeMerge_ProducesNMinusOneMerges(t *testing.T) {
	centroids := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
		{0, 0.9, 0.1},
	}
	merges := AgglomerativeMerge(centroids)
	require.Len(t, merges, 3)
}

func TestAgglomerativeMerge_MergesClosestPairFirst(t *testing.T) {
	centroids := [][]float32{
		{1, 0},
		{0.999, 0.001},
		{0, 1},
	}
	merges := AgglomerativeMerge(centroids)
	require.NotEmpty(t, merges)
	first := merges[0]
	require.ElementsMatch(t, []int{0, 1}, []int{first.Left, first.Right})
}

func TestAgglomerativeMerge_SyntheticIndicesReferenceEarlierMerges(t *testing.T) {
	centroids := [][]float32{
		{1, 0, 0},
		{0.95, 0.05, 0},
		{0, 1, 0},
	}
	merges := AgglomerativeMerge(centroids)
	require.Len(t, merges, 2)
	// the second merge must reference the synthetic cluster id (3) produced
	// by the first merge, since only one leaf remains unmerged afterwards.
	require.True(t, merges[1].Left == 3 || merges[1].Right == 3)
}

func TestAgglomerativeMerge_TrivialInputs(t *testing.T) {
	require.Nil(t, AgglomerativeMerge(nil))
	require.Nil(t, AgglomerativeMerge([][]float32{{1, 0}}))
}
