package topicmodel

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// englishStopwords is a compact list covering the most common function
// words, standing in for the vectorizer's English-stopword filter (§4.7).
var englishStopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(
		`a an the of and or to in on for with by from at as is are was were ` +
			`be been being this that these those it its their our we they he ` +
			`she you your not no can may might will would should could study ` +
			`studies results result using used use between among during into`) {
		englishStopwords[w] = true
	}
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z\-]{2,}`)

func tokenize(text string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(matches))
	for _, w := range matches {
		if !englishStopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

// bm25K1 and bm25B are the standard Okapi BM25 saturation/length-norm
// constants, applied to each class's (cluster's) pooled term frequency
// against the other classes' document frequency — the "BM25-weighted"
// variant of class-based tf-idf named in §4.7 (BERTopic's c-TF-IDF with a
// BM25 weighting scheme, reimplemented directly since no tf-idf/BM25
// vectorizer exists in the example pack; see DESIGN.md).
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// WordScore mirrors model.WordScore without importing internal/model, so
// this package stays a pure, dependency-free scoring library; callers
// convert via topicstage.
type WordScore struct {
	Word  string
	Score float64
}

// ClassTFIDF scores each cluster's vocabulary against the rest, returning
// the topN highest-scoring words per cluster. docsByCluster maps local
// cluster id -> the raw chunk texts assigned to it.
func ClassTFIDF(docsByCluster map[int][]string, topN int) map[int][]WordScore {
	classTermFreq := make(map[int]map[string]int)
	classLength := make(map[int]int)
	docFreq := make(map[string]int)

	for cluster, docs := range docsByCluster {
		tf := make(map[string]int)
		seen := make(map[string]bool)
		for _, doc := range docs {
			for _, w := range tokenize(doc) {
				tf[w]++
				seen[w] = true
			}
		}
		classTermFreq[cluster] = tf
		for w := range tf {
			classLength[cluster] += tf[w]
		}
		for w := range seen {
			docFreq[w]++
		}
	}

	numClasses := float64(len(docsByCluster))
	avgLen := 0.0
	for _, l := range classLength {
		avgLen += float64(l)
	}
	if numClasses > 0 {
		avgLen /= numClasses
	}

	out := make(map[int][]WordScore, len(docsByCluster))
	for cluster, tf := range classTermFreq {
		length := float64(classLength[cluster])
		var scores []WordScore
		for w, freq := range tf {
			idf := math.Log(1 + (numClasses-float64(docFreq[w])+0.5)/(float64(docFreq[w])+0.5))
			f := float64(freq)
			norm := 1 - bm25B + bm25B*length/maxFloat(avgLen, 1)
			tfWeight := (f * (bm25K1 + 1)) / (f + bm25K1*norm)
			scores = append(scores, WordScore{Word: w, Score: idf * tfWeight})
		}
		sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
		if len(scores) > topN {
			scores = scores[:topN]
		}
		out[cluster] = scores
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// MMRDiversify re-ranks candidates by maximal marginal relevance, balancing
// each word's ClassTFIDF score against lexical overlap with words already
// selected (diversity in [0,1]; 0 = pure relevance, 1 = pure diversity).
// There is no per-word embedding in this pipeline (only document/chunk
// embeddings), so similarity between two candidate words is approximated
// with character-trigram Jaccard overlap rather than cosine similarity of
// word vectors — a textual stand-in, documented in DESIGN.md, for the
// semantic MMR the spec describes.
func MMRDiversify(candidates []WordScore, diversity float64, topN int) []WordScore {
	if len(candidates) == 0 {
		return nil
	}
	maxScore := candidates[0].Score
	for _, c := range candidates {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	if maxScore == 0 {
		maxScore = 1
	}

	remaining := append([]WordScore(nil), candidates...)
	var selected []WordScore

	for len(selected) < topN && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := math.Inf(-1)
		for i, cand := range remaining {
			relevance := cand.Score / maxScore
			maxSim := 0.0
			for _, s := range selected {
				if sim := trigramJaccard(cand.Word, s.Word); sim > maxSim {
					maxSim = sim
				}
			}
			mmr := (1-diversity)*relevance - diversity*maxSim
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func trigramJaccard(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func trigrams(s string) map[string]bool {
	out := make(map[string]bool)
	if len(s) < 3 {
		out[s] = true
		return out
	}
	for i := 0; i+3 <= len(s); i++ {
		out[s[i:i+3]] = true
	}
	return out
}
