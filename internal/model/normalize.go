package model

import "strings"

// NoneSentinel is substituted by the flattening helpers below for a missing
// nested list (mesh terms, chemicals, keywords, authors, affiliations) so
// store mappings stay null-value-friendly; grants get no sentinel
// (SPEC_FULL.md §10, grounded in achouhan93/ClusterChat's database_mapping.py).
const NoneSentinel = "NONE"

// NoAbstractMarkers identifies abstracts that PubMed ships as placeholder
// text rather than real content; such documents are skipped by Stage E (§4.6, §8 B3).
var NoAbstractMarkers = []string{
	"no abstract available on pubmed",
	"ABSTRACT TRUNCATED AT",
}

// HasUsableAbstract reports whether abs contains real text, i.e. is
// non-empty and does not match one of NoAbstractMarkers.
func HasUsableAbstract(abs string) bool {
	trimmed := strings.TrimSpace(abs)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range NoAbstractMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return false
		}
	}
	return true
}

// MeshNames extracts a flattened name list, substituting NoneSentinel when empty.
func MeshNames(terms []MeshTerm) []string {
	if len(terms) == 0 {
		return []string{NoneSentinel}
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Name
	}
	return out
}

// MeshIDs extracts a flattened id list, substituting NoneSentinel when empty.
func MeshIDs(terms []MeshTerm) []string {
	if len(terms) == 0 {
		return []string{NoneSentinel}
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.ID
	}
	return out
}

// ChemicalNames extracts a flattened chemical name list, or NoneSentinel when empty.
func ChemicalNames(chems []Chemical) []string {
	if len(chems) == 0 {
		return []string{NoneSentinel}
	}
	out := make([]string, len(chems))
	for i, c := range chems {
		out[i] = c.Name
	}
	return out
}

// KeywordNames extracts a flattened keyword list, or NoneSentinel when empty.
func KeywordNames(kws []Keyword) []string {
	if len(kws) == 0 {
		return []string{NoneSentinel}
	}
	out := make([]string, len(kws))
	for i, k := range kws {
		out[i] = k.Name
	}
	return out
}

// AuthorNames renders "Last First" for each author, or NoneSentinel when empty.
func AuthorNames(authors []Author) []string {
	if len(authors) == 0 {
		return []string{NoneSentinel}
	}
	out := make([]string, len(authors))
	for i, a := range authors {
		out[i] = strings.TrimSpace(a.Last + " " + a.First)
	}
	return out
}

// AuthorAffiliations flattens every author's affiliations, or NoneSentinel when none exist.
func AuthorAffiliations(authors []Author) []string {
	var out []string
	for _, a := range authors {
		out = append(out, a.Affiliations...)
	}
	if len(out) == 0 {
		return []string{NoneSentinel}
	}
	return out
}
