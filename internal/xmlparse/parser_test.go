package xmlparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleBatch = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation Status="MEDLINE">
      <PMID>12345678</PMID>
      <Article>
        <Journal>
          <Title>Journal of Examples</Title>
          <ISOAbbreviation>J Examp</ISOAbbreviation>
          <JournalIssue CitedMedium="Internet">
            <Volume>12</Volume>
            <Issue>3</Issue>
            <PubDate><Year>2021</Year><Month>Feb</Month><Day>30</Day></PubDate>
          </JournalIssue>
        </Journal>
        <ArticleTitle>A study of <i>things</i> and stuff</ArticleTitle>
        <Abstract>
          <AbstractText>Background text.</AbstractText>
          <AbstractText>Conclusion text.</AbstractText>
        </Abstract>
        <Language>eng</Language>
        <ArticleDate><Year>2021</Year><Month>03</Month><Day>01</Day></ArticleDate>
        <AuthorList>
          <Author>
            <LastName>Doe</LastName>
            <ForeName>Jane</ForeName>
            <AffiliationInfo><Affiliation>Example University</Affiliation></AffiliationInfo>
          </Author>
        </AuthorList>
        <GrantList>
          <Grant><GrantID>R01-123</GrantID><Agency>NIH</Agency><Country>United States</Country></Grant>
        </GrantList>
        <PublicationTypeList>
          <PublicationType>Journal Article</PublicationType>
        </PublicationTypeList>
      </Article>
      <MeshHeadingList>
        <MeshHeading><DescriptorName UI="D006801" MajorTopicYN="Y">Humans</DescriptorName></MeshHeading>
      </MeshHeadingList>
      <ChemicalList>
        <Chemical><RegistryNumber>0</RegistryNumber><NameOfSubstance UI="D000001">Water</NameOfSubstance></Chemical>
      </ChemicalList>
      <KeywordList>
        <Keyword MajorTopicYN="N">example keyword</Keyword>
      </KeywordList>
    </MedlineCitation>
    <PubmedData>
      <History>
        <PubMedPubDate PubStatus="received"><Year>2020</Year><Month>11</Month><Day>1</Day></PubMedPubDate>
        <PubMedPubDate PubStatus="entrez"><Year>2021</Year><Month>3</Month><Day>2</Day></PubMedPubDate>
      </History>
    </PubmedData>
  </PubmedArticle>
  <PubmedBookArticle>
    <BookDocument><PMID>99999999</PMID></BookDocument>
  </PubmedBookArticle>
</PubmedArticleSet>`

func TestParse_FullArticle(t *testing.T) {
	articles, err := Parse([]byte(sampleBatch))
	require.NoError(t, err)
	require.Len(t, articles, 1, "the PubmedBookArticle element must be skipped, not parsed")

	a := articles[0]
	require.Equal(t, "12345678", a.ID)
	require.Equal(t, "MEDLINE", a.Status)
	require.Equal(t, "A study of things and stuff", a.Title)
	require.Equal(t, "Background text. Conclusion text.", a.Abstract)
	require.Equal(t, "eng", a.Language)
	require.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), a.ArticleDate)

	require.Equal(t, "Journal of Examples", a.Journal.Title)
	require.Equal(t, "Internet", a.Journal.Issue.Medium)
	require.Equal(t, 2021, a.Journal.Issue.Year)
	require.Equal(t, 28, a.Journal.Issue.Day, "Feb 30 must clamp to the last valid day (28 in a non-leap year)")

	require.Len(t, a.Authors, 1)
	require.Equal(t, "Jane", a.Authors[0].First)
	require.Equal(t, []string{"Example University"}, a.Authors[0].Affiliations)

	require.Len(t, a.Grants, 1)
	require.Equal(t, "R01-123", a.Grants[0].ID)

	require.Len(t, a.Chemicals, 1)
	require.Equal(t, "Water", a.Chemicals[0].Name)

	require.Len(t, a.Keywords, 1)
	require.False(t, a.Keywords[0].Major)

	require.Len(t, a.MeshTerms, 1)
	require.True(t, a.MeshTerms[0].Major)
	require.Equal(t, "D006801", a.MeshTerms[0].ID)

	require.Equal(t, []string{"Journal Article"}, a.PublicationTypes)

	require.Len(t, a.History, 2)
	require.Equal(t, "entrez", a.History[1].Type)

	require.Equal(t, "NA", a.FullTextURL)
	require.False(t, a.VectorisedFlag)
}

func TestParse_ArticleDateFallsBackToEntrezHistory(t *testing.T) {
	const batch = `<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation Status="MEDLINE">
      <PMID>1</PMID>
      <Article>
        <Journal><JournalIssue><PubDate></PubDate></JournalIssue></Journal>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <History>
        <PubMedPubDate PubStatus="received"><Year>2019</Year><Month>1</Month><Day>1</Day></PubMedPubDate>
        <PubMedPubDate PubStatus="entrez"><Year>2019</Year><Month>2</Month><Day>5</Day></PubMedPubDate>
      </History>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

	articles, err := Parse([]byte(batch))
	require.NoError(t, err)
	require.Len(t, articles, 1)
	require.Equal(t, time.Date(2019, 2, 5, 0, 0, 0, 0, time.UTC), articles[0].ArticleDate)
}

func TestParse_MissingPMIDIsFatal(t *testing.T) {
	const batch = `<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation Status="MEDLINE"><Article></Article></MedlineCitation>
    <PubmedData><History></History></PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

	_, err := Parse([]byte(batch))
	require.Error(t, err)
}

func TestSafeParseDate_ClampsInvalidDay(t *testing.T) {
	tm, ok := safeParseDate("2023", "4", "31", "pmid1", "test")
	require.True(t, ok)
	require.Equal(t, time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC), tm)
}

func TestFlattenMixedContent(t *testing.T) {
	require.Equal(t, "hello world", flattenMixedContent([]byte("hello <b>world</b>")))
	require.Equal(t, "", flattenMixedContent(nil))
}
