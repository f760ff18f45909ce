// Package chunk implements the two abstract-chunking strategies Stage E
// selects between (§4.6, §6 `--chunking complete|sentence`): a token-aware
// sliding window sized to the embedding model's max input, and a sentence
// segmenter.
package chunk

import (
	"regexp"
	"strings"

	"github.com/achouhan93/clusterchat-go/internal/util"
)

// Strategy names the chunking method, matching the CLI flag values.
type Strategy string

const (
	Complete Strategy = "complete"
	Sentence Strategy = "sentence"
)

// defaultWindowOverlap keeps ~20% of a window's tokens in the next window
// so no sentence boundary is lost mid-window; mirrors the original's
// SentenceTransformersTokenTextSplitter, which applies the same kind of
// fixed overlap fraction under the hood.
const defaultWindowOverlap = 0.2

// Split splits text into chunks per strategy. maxTokens sizes the
// "complete" windows to the embedding model's max input; it is ignored by
// "sentence".
func Split(strategy Strategy, text string, maxTokens int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	switch strategy {
	case Sentence:
		return splitSentences(text)
	default:
		return splitWindowed(text, maxTokens)
	}
}

// splitWindowed tokenizes on whitespace and slides a window of maxTokens
// words, overlapping by defaultWindowOverlap of the window size, per the
// "token-aware splitter ... with windowing" wording of §4.6. Token count is
// estimated per word via util.CountTokens since there is no tokenizer for
// the embedding model's exact vocabulary in this pipeline.
func splitWindowed(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	stride := maxTokens - int(float64(maxTokens)*defaultWindowOverlap)
	if stride < 1 {
		stride = maxTokens
	}

	var chunks []string
	for start := 0; start < len(words); start += stride {
		end := start
		tokenCount := 0
		for end < len(words) && tokenCount < maxTokens {
			tokenCount += util.CountTokens(words[end])
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}
	}
	return chunks
}

// sentenceBoundary matches a sentence-ending punctuation mark followed by
// whitespace and an uppercase letter or digit, while holding back on common
// abbreviations that would otherwise produce a spurious split — a pragmatic
// stand-in for a biomedical sentence segmenter (no such library exists in
// the example pack; see DESIGN.md).
var sentenceBoundary = regexp.MustCompile(`(?:[.!?])\s+(?:[A-Z0-9])`)

var abbreviations = []string{
	"e.g.", "i.e.", "et al.", "vs.", "Fig.", "fig.", "No.", "approx.",
	"Dr.", "Mr.", "Mrs.", "Jr.", "Sr.", "etc.",
}

func splitSentences(text string) []string {
	protected := text
	placeholders := make(map[string]string, len(abbreviations))
	for i, abbr := range abbreviations {
		ph := placeholderFor(i)
		placeholders[ph] = abbr
		protected = strings.ReplaceAll(protected, abbr, ph)
	}

	var sentences []string
	last := 0
	locs := sentenceBoundary.FindAllStringIndex(protected, -1)
	for _, loc := range locs {
		splitAt := loc[0] + 1 // keep the punctuation with the preceding sentence
		sentences = append(sentences, protected[last:splitAt])
		last = splitAt
	}
	sentences = append(sentences, protected[last:])

	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		for ph, abbr := range placeholders {
			s = strings.ReplaceAll(s, ph, abbr)
		}
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func placeholderFor(i int) string {
	return "\x00ABBR" + string(rune('A'+i)) + "\x00"
}
