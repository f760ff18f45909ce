// Package textsim approximates Python's difflib.SequenceMatcher.ratio(),
// which the original pipeline uses for fuzzy label matching during topic
// dedupe (original_source's process_bertopic.py: "SequenceMatcher(None, a,
// b).ratio() >= label_threshold"). No fuzzy string-matching library exists
// anywhere in the retrieved example pack, so the Ratcliff/Obershelp
// algorithm behind SequenceMatcher is reimplemented directly here.
package textsim

// Ratio returns 2*M/T where M is the total length of the longest matching
// blocks found by recursively splitting on the best single match (the
// Ratcliff/Obershelp algorithm) and T is len(a)+len(b). Ratio is in [0,1];
// identical non-empty strings score 1.
func Ratio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	matches := matchLength([]rune(a), []rune(b))
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 1
	}
	return 2 * float64(matches) / float64(total)
}

func matchLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, length := longestMatch(a, b)
	if length == 0 {
		return 0
	}
	return length + matchLength(a[:ai], b[:bi]) + matchLength(a[ai+length:], b[bi+length:])
}

// longestMatch finds the longest contiguous common substring of a and b via
// simple dynamic programming, returning its start indices and length.
func longestMatch(a, b []rune) (aStart, bStart, length int) {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best := 0
	bestA, bestB := 0, 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
					bestA = i - best
					bestB = j - best
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return bestA, bestB, best
}
