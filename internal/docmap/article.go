// Package docmap converts between the domain types in internal/model and
// the flat map[string]any document bodies the store client (C1) persists,
// per the index mappings in §6. Kept separate from both internal/model
// (pure domain values) and internal/store (storage mechanics) so neither
// package needs to import the other.
package docmap

import (
	"time"

	"github.com/achouhan93/clusterchat-go/internal/model"
)

const dateLayout = "2006-01-02"

// ArticleToBody renders an Article as the JSONB body stored under the
// article index, matching the §6 mapping: nested objects for
// authors/affiliations, grants, chemicals, keywords, mesh terms,
// publication types, journal information; a "1900-01-01" null-value date.
func ArticleToBody(a model.Article) map[string]any {
	date := "1900-01-01"
	if !a.ArticleDate.IsZero() {
		date = a.ArticleDate.Format(dateLayout)
	}

	authors := make([]map[string]any, len(a.Authors))
	for i, au := range a.Authors {
		authors[i] = map[string]any{
			"first":        au.First,
			"last":         au.Last,
			"affiliations": au.Affiliations,
		}
	}
	grants := make([]map[string]any, len(a.Grants))
	for i, g := range a.Grants {
		grants[i] = map[string]any{"id": g.ID, "agency": g.Agency, "country": g.Country}
	}
	chemicals := make([]map[string]any, len(a.Chemicals))
	for i, c := range a.Chemicals {
		chemicals[i] = map[string]any{"registryNumber": c.RegistryNumber, "name": c.Name}
	}
	keywords := make([]map[string]any, len(a.Keywords))
	for i, k := range a.Keywords {
		keywords[i] = map[string]any{"name": k.Name, "major": k.Major}
	}
	mesh := make([]map[string]any, len(a.MeshTerms))
	for i, m := range a.MeshTerms {
		mesh[i] = map[string]any{"id": m.ID, "name": m.Name, "major": m.Major}
	}
	history := make([]map[string]any, len(a.History))
	for i, h := range a.History {
		history[i] = map[string]any{"date": h.Date.Format(dateLayout), "type": h.Type}
	}

	return map[string]any{
		"id":               a.ID,
		"status":           a.Status,
		"title":            a.Title,
		"vernacularTitle":  a.VernacularTitle,
		"abstract":         a.Abstract,
		"otherAbstract":    a.OtherAbstract,
		"language":         a.Language,
		"articleDate":      date,
		"history":          history,
		"authors":          authors,
		"grants":           grants,
		"chemicals":        chemicals,
		"keywords":         keywords,
		"meshTerms":        mesh,
		"publicationTypes": a.PublicationTypes,
		"journal": map[string]any{
			"title":        a.Journal.Title,
			"abbreviation": a.Journal.Abbreviation,
			"issue": map[string]any{
				"medium": a.Journal.Issue.Medium,
				"volume": a.Journal.Issue.Volume,
				"number": a.Journal.Issue.Number,
				"year":   a.Journal.Issue.Year,
				"month":  a.Journal.Issue.Month,
				"day":    a.Journal.Issue.Day,
			},
		},
		"fullTextUrl":      a.FullTextURL,
		"vectorisedFlag":   a.VectorisedFlag,
		"nlpProcessedFlag": a.NLPProcessedFlag,
		"fullText":         a.FullText,
		"_search_text":     a.Title + " " + a.Abstract,
	}
}

// ArticleDateFromBody reads back the "articleDate" field of a body map
// produced by ArticleToBody, used by stages that scroll the article index.
func ArticleDateFromBody(body map[string]any) time.Time {
	s, _ := body["articleDate"].(string)
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
