package docmap

import (
	"sort"

	"github.com/achouhan93/clusterchat-go/internal/model"
)

// ClusterToBody renders a Cluster as the JSONB body stored under the
// cluster index (§6): path/children/depth/pairwise_similarity/
// topic_information/is_leaf/x,y, plus label/description for the
// match_phrase lookup C11 uses. The centroid embedding travels separately
// as store.Document.Vector, not in the body.
func ClusterToBody(c model.Cluster) map[string]any {
	words := make([]string, 0, len(c.TopicWords))
	for w := range c.TopicWords {
		words = append(words, w)
	}
	sort.Strings(words)

	return map[string]any{
		"id":                  c.ID,
		"label":               c.Label,
		"description":         c.Description,
		"topic_information":   words,
		"is_leaf":             c.IsLeaf,
		"depth":               c.Depth,
		"path":                model.TruncatePath(c.Path),
		"children":            c.Children,
		"size":                c.Size,
		"x":                   c.X,
		"y":                   c.Y,
		"pairwise_similarity": c.PairwiseSimilarity,
		"_search_text":        c.Label + " " + c.Description,
	}
}

// ClusterFromBody reconstructs a Cluster from a stored body and its
// companion vector, used by the indexer's path-repair and document
// assignment passes, which both need the full in-memory cluster set.
func ClusterFromBody(body map[string]any, vector []float32) model.Cluster {
	pairwise := make(map[string]float64)
	if raw, ok := body["pairwise_similarity"].(map[string]any); ok {
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				pairwise[k] = f
			}
		}
	}
	return model.Cluster{
		ID:                 str(body["id"]),
		Label:              str(body["label"]),
		Description:        str(body["description"]),
		TopicWords:         wordSet(body["topic_information"]),
		IsLeaf:             boolOf(body["is_leaf"]),
		Depth:              intOf(body["depth"]),
		Path:               str(body["path"]),
		Children:           strSlice(body["children"]),
		Size:               intOf(body["size"]),
		X:                  floatOf(body["x"]),
		Y:                  floatOf(body["y"]),
		Centroid:           vector,
		PairwiseSimilarity: pairwise,
	}
}

// DocumentAssignmentToBody renders a DocumentAssignment as the JSONB body
// stored under the document-projection index (§4.10, §6). The caller joins
// in the denormalized article/chunk fields (title, abstract text, authors,
// keywords, mesh, chemicals, journal) from the source chunk before calling.
func DocumentAssignmentToBody(a model.DocumentAssignment, extra map[string]any) map[string]any {
	body := map[string]any{
		"document_id": a.DocumentID,
		"cluster_id":  a.ClusterID,
		"x":           a.X,
		"y":           a.Y,
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func wordSet(v any) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strSlice(v) {
		out[w] = struct{}{}
	}
	return out
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

func floatOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		return 0
	}
}
