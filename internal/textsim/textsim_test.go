package textsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRatio_IdenticalStringsIsOne(t *testing.T) {
	require.Equal(t, 1.0, Ratio("cardiac care", "cardiac care"))
}

func TestRatio_CompletelyDifferentStringsIsLow(t *testing.T) {
	require.Less(t, Ratio("abc", "xyz"), 0.3)
}

func TestRatio_NearDuplicateLabelsScoreHigh(t *testing.T) {
	// matching blocks "Cardiac " (8) and "are" (3) over 25 runes: 2*11/25
	r := Ratio("Cardiac Care", "Cardiac care ")
	require.InDelta(t, 0.88, r, 1e-9)
}

func TestRatio_BothEmptyIsOne(t *testing.T) {
	require.Equal(t, 1.0, Ratio("", ""))
}

func TestRatio_OneEmptyIsZero(t *testing.T) {
	require.Equal(t, 0.0, Ratio("", "abc"))
}

func TestRatio_IsSymmetric(t *testing.T) {
	require.InDelta(t, Ratio("oncology trials", "trials oncology"), Ratio("trials oncology", "oncology trials"), 1e-9)
}
