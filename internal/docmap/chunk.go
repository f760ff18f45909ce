package docmap

import (
	"github.com/achouhan93/clusterchat-go/internal/model"
)

// ChunkToBody renders a Chunk as the JSONB body stored under a chunk index
// (complete or sentence), matching the §6 chunk mapping: pubmed_bert_vector
// carried separately on store.Document.Vector, everything else here.
func ChunkToBody(c model.Chunk) map[string]any {
	return map[string]any{
		"id":                 c.ID(),
		"articleId":          c.ArticleID,
		"chunkIndex":         c.Index,
		"text":               c.Text,
		"articleDate":        c.ArticleDate.Format(dateLayout),
		"title":              c.Title,
		"journal":            c.Journal,
		"meshNames":          c.MeshNames,
		"meshIds":            c.MeshIDs,
		"chemicals":          c.Chemicals,
		"keywords":           c.Keywords,
		"authorNames":        c.AuthorNames,
		"authorAffiliations": c.AuthorAffiliations,
		"sourceIndex":        c.SourceIndex,
		"_search_text":       c.Text,
	}
}

// ChunkFromBody reconstructs the fields of Chunk needed downstream (text,
// embedding carried alongside, denormalized metadata) from a stored body.
func ChunkFromBody(body map[string]any, vector []float32) model.Chunk {
	return model.Chunk{
		ArticleID:          str(body["articleId"]),
		Index:              intOf(body["chunkIndex"]),
		Text:               str(body["text"]),
		Embedding:          vector,
		ArticleDate:        ArticleDateFromBody(body),
		Title:              str(body["title"]),
		Journal:            str(body["journal"]),
		MeshNames:          strSlice(body["meshNames"]),
		MeshIDs:            strSlice(body["meshIds"]),
		Chemicals:          strSlice(body["chemicals"]),
		Keywords:           strSlice(body["keywords"]),
		AuthorNames:        strSlice(body["authorNames"]),
		AuthorAffiliations: strSlice(body["authorAffiliations"]),
		SourceIndex:        str(body["sourceIndex"]),
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func strSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, len(s))
		for i, e := range s {
			out[i], _ = e.(string)
		}
		return out
	default:
		return nil
	}
}
