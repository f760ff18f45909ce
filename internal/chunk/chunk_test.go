package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_Sentence_TwoSentencesProduceTwoChunks(t *testing.T) {
	text := "This drug reduces inflammation. It was tested in a cohort of 200 patients."
	chunks := Split(Sentence, text, 0)
	require.Len(t, chunks, 2)
	require.Equal(t, "This drug reduces inflammation.", chunks[0])
	require.Equal(t, "It was tested in a cohort of 200 patients.", chunks[1])
}

func TestSplit_Sentence_HoldsBackOnAbbreviations(t *testing.T) {
	text := "The effect was studied in mice, e.g. C57BL/6 strains. Results were consistent."
	chunks := Split(Sentence, text, 0)
	require.Len(t, chunks, 2)
	require.Contains(t, chunks[0], "e.g.")
}

func TestSplit_Sentence_EmptyTextReturnsNoChunks(t *testing.T) {
	require.Empty(t, Split(Sentence, "", 0))
	require.Empty(t, Split(Sentence, "   ", 0))
}

func TestSplit_Complete_WindowsLongTextWithOverlap(t *testing.T) {
	words := make([]string, 500)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := Split(Complete, text, 100)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, len(strings.Fields(c)), 100)
	}
}

func TestSplit_Complete_ShortTextIsSingleChunk(t *testing.T) {
	chunks := Split(Complete, "a short abstract", 256)
	require.Equal(t, []string{"a short abstract"}, chunks)
}
