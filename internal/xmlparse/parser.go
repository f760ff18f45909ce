// Package xmlparse turns a raw PubMed efetch XML batch into normalized
// model.Article values (§4.4 C4 XML Record Parser).
package xmlparse

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/achouhan93/clusterchat-go/internal/model"
)

// Parse decodes one efetch response body (a <PubmedArticleSet> containing
// zero or more <PubmedArticle> elements) into normalized articles.
//
// Elements other than PubmedArticle (e.g. PubmedBookArticle) are skipped with
// a debug log rather than failing the batch. A malformed PubmedArticle,
// however, is fatal for the whole batch: the id is reported and the error is
// returned so the caller can exit non-zero (§4.4, §8 B1).
func Parse(data []byte) ([]model.Article, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var articles []model.Article
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmlparse: read token: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "PubmedArticleSet" {
			// descend into the wrapper so its PubmedArticle children are read
			continue
		}
		if start.Name.Local != "PubmedArticle" {
			log.Debug().Str("element", start.Name.Local).Msg("skipping non-PubmedArticle element")
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("xmlparse: skip %s: %w", start.Name.Local, err)
			}
			continue
		}

		var raw xmlPubmedArticle
		if err := dec.DecodeElement(&raw, &start); err != nil {
			return nil, fmt.Errorf("xmlparse: decode PubmedArticle: %w", err)
		}

		article, err := transform(raw)
		if err != nil {
			return nil, fmt.Errorf("xmlparse: article %s: %w", raw.MedlineCitation.PMID, err)
		}
		articles = append(articles, article)
	}
	return articles, nil
}

func transform(raw xmlPubmedArticle) (model.Article, error) {
	id := strings.TrimSpace(raw.MedlineCitation.PMID)
	if id == "" {
		return model.Article{}, fmt.Errorf("missing PMID")
	}

	a := model.NewArticle(id)
	mc := raw.MedlineCitation
	art := mc.Article

	a.Status = mc.Status
	a.Title = flattenMixedContent(art.ArticleTitle.Inner)
	a.VernacularTitle = flattenMixedContent(art.VernacularTitle.Inner)
	a.Abstract = joinAbstractSections(art.Abstract.AbstractText)
	a.OtherAbstract = joinAbstractSections(art.OtherAbstract.AbstractText)
	a.Language = strings.TrimSpace(art.Language)

	a.Journal = model.JournalInformation{
		Title:        strings.TrimSpace(art.Journal.Title),
		Abbreviation: strings.TrimSpace(art.Journal.ISOAbbreviation),
		Issue: model.JournalIssue{
			Medium: strings.TrimSpace(art.Journal.JournalIssue.CitedMedium),
			Volume: strings.TrimSpace(art.Journal.JournalIssue.Volume),
			Number: strings.TrimSpace(art.Journal.JournalIssue.Issue),
		},
	}
	if d := art.Journal.JournalIssue.PubDate; d.Year != "" {
		if t, ok := safeParseDate(d.Year, orFirst(d.Month, "1"), orFirst(d.Day, "1"), id, "JournalIssue.PubDate"); ok {
			a.Journal.Issue.Year = t.Year()
			a.Journal.Issue.Month = int(t.Month())
			a.Journal.Issue.Day = t.Day()
		}
	}

	for _, h := range raw.PubmedData.History.PubMedPubDate {
		t, ok := safeParseDate(h.Year, h.Month, h.Day, id, "History."+h.PubStatus)
		if !ok {
			continue
		}
		a.History = append(a.History, model.HistoryEntry{Date: t, Type: strings.ToLower(h.PubStatus)})
	}

	for _, au := range art.AuthorList.Author {
		author := model.Author{
			First: strings.TrimSpace(au.ForeName),
			Last:  strings.TrimSpace(au.LastName),
		}
		for _, aff := range au.AffiliationInfo {
			if s := strings.TrimSpace(aff.Affiliation); s != "" {
				author.Affiliations = append(author.Affiliations, s)
			}
		}
		a.Authors = append(a.Authors, author)
	}

	for _, g := range art.GrantList.Grant {
		a.Grants = append(a.Grants, model.Grant{
			ID:      strings.TrimSpace(g.GrantID),
			Agency:  strings.TrimSpace(g.Agency),
			Country: strings.TrimSpace(g.Country),
		})
	}

	for _, c := range mc.ChemicalList.Chemical {
		a.Chemicals = append(a.Chemicals, model.Chemical{
			RegistryNumber: strings.TrimSpace(c.RegistryNumber),
			Name:           strings.TrimSpace(c.NameOfSubstance.Text),
		})
	}

	for _, k := range mc.KeywordList {
		name := strings.TrimSpace(k.Text)
		if name == "" {
			continue
		}
		a.Keywords = append(a.Keywords, model.Keyword{Name: name, Major: yesNo(k.Major)})
	}

	for _, m := range mc.MeshHeadingList.MeshHeading {
		name := strings.TrimSpace(m.DescriptorName.Text)
		if name == "" {
			continue
		}
		a.MeshTerms = append(a.MeshTerms, model.MeshTerm{
			ID:    strings.TrimSpace(m.DescriptorName.UI),
			Name:  name,
			Major: yesNo(m.DescriptorName.MajorTopicYN),
		})
	}

	for _, pt := range art.PublicationTypeList.PublicationType {
		if s := strings.TrimSpace(pt); s != "" {
			a.PublicationTypes = append(a.PublicationTypes, s)
		}
	}

	a.ArticleDate = deriveArticleDate(id, art.ArticleDate, art.Journal.JournalIssue.PubDate, a.History)

	return a, nil
}

// deriveArticleDate implements the fallback chain: ArticleDate element ->
// JournalIssue PubDate -> first "entrez" history entry -> first history
// entry (§3, original's transformer.py _parse_article).
func deriveArticleDate(id string, articleDate *xmlDate, pubDate xmlDate, history []model.HistoryEntry) time.Time {
	if articleDate != nil {
		if t, ok := safeParseDate(articleDate.Year, articleDate.Month, articleDate.Day, id, "ArticleDate"); ok {
			return t
		}
	}
	if pubDate.Year != "" {
		if t, ok := safeParseDate(pubDate.Year, orFirst(pubDate.Month, "1"), orFirst(pubDate.Day, "1"), id, "PubDate"); ok {
			return t
		}
	}
	for _, h := range history {
		if h.Type == "entrez" {
			return h.Date
		}
	}
	if len(history) > 0 {
		return history[0].Date
	}
	return time.Time{}
}

func orFirst(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func yesNo(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "Y")
}

func joinAbstractSections(sections []rawInner) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if t := strings.TrimSpace(flattenMixedContent(s.Inner)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// flattenMixedContent concatenates every character-data token inside raw,
// mirroring the original's join(el.itertext()) on mixed-content elements
// like <ArticleTitle>free <i>text</i></ArticleTitle>.
func flattenMixedContent(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			sb.Write(cd)
		}
	}
	return sb.String()
}
