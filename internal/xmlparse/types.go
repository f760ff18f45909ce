package xmlparse

// Hand-written mirrors of the NCBI PubMed XML DTD elements this parser
// touches. Titles and abstracts carry mixed content (inline <i>, <sub>, ...)
// so they're captured as raw inner XML and flattened with flattenMixedContent,
// matching the original's itertext()-based concatenation.

type rawInner struct {
	Inner []byte `xml:",innerxml"`
}

type xmlPubmedArticle struct {
	MedlineCitation xmlMedlineCitation `xml:"MedlineCitation"`
	PubmedData      xmlPubmedData      `xml:"PubmedData"`
}

type xmlMedlineCitation struct {
	Status          string             `xml:"Status,attr"`
	PMID            string             `xml:"PMID"`
	Article         xmlArticle         `xml:"Article"`
	MeshHeadingList xmlMeshHeadingList `xml:"MeshHeadingList"`
	ChemicalList    xmlChemicalList    `xml:"ChemicalList"`
	KeywordList     []xmlKeyword       `xml:"KeywordList>Keyword"`
}

type xmlKeyword struct {
	Major string `xml:"MajorTopicYN,attr"`
	Text  string `xml:",chardata"`
}

type xmlArticle struct {
	ArticleTitle    rawInner `xml:"ArticleTitle"`
	VernacularTitle rawInner `xml:"VernacularTitle"`
	Abstract        struct {
		AbstractText []rawInner `xml:"AbstractText"`
	} `xml:"Abstract"`
	OtherAbstract struct {
		AbstractText []rawInner `xml:"AbstractText"`
	} `xml:"OtherAbstract"`
	Language    string    `xml:"Language"`
	ArticleDate *xmlDate  `xml:"ArticleDate"`
	Journal     xmlJournal `xml:"Journal"`
	AuthorList  struct {
		Author []xmlAuthor `xml:"Author"`
	} `xml:"AuthorList"`
	GrantList struct {
		Grant []xmlGrant `xml:"Grant"`
	} `xml:"GrantList"`
	PublicationTypeList struct {
		PublicationType []string `xml:"PublicationType"`
	} `xml:"PublicationTypeList"`
}

type xmlDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

type xmlJournal struct {
	Title           string `xml:"Title"`
	ISOAbbreviation string `xml:"ISOAbbreviation"`
	JournalIssue    struct {
		CitedMedium string  `xml:"CitedMedium,attr"`
		Volume      string  `xml:"Volume"`
		Issue       string  `xml:"Issue"`
		PubDate     xmlDate `xml:"PubDate"`
	} `xml:"JournalIssue"`
}

type xmlAuthor struct {
	ForeName        string `xml:"ForeName"`
	LastName        string `xml:"LastName"`
	AffiliationInfo []struct {
		Affiliation string `xml:"Affiliation"`
	} `xml:"AffiliationInfo"`
}

type xmlGrant struct {
	GrantID string `xml:"GrantID"`
	Agency  string `xml:"Agency"`
	Country string `xml:"Country"`
}

type xmlMeshHeadingList struct {
	MeshHeading []xmlMeshHeading `xml:"MeshHeading"`
}

type xmlMeshHeading struct {
	DescriptorName struct {
		UI           string `xml:"UI,attr"`
		MajorTopicYN string `xml:"MajorTopicYN,attr"`
		Text         string `xml:",chardata"`
	} `xml:"DescriptorName"`
}

type xmlChemicalList struct {
	Chemical []xmlChemical `xml:"Chemical"`
}

type xmlChemical struct {
	RegistryNumber  string `xml:"RegistryNumber"`
	NameOfSubstance struct {
		UI   string `xml:"UI,attr"`
		Text string `xml:",chardata"`
	} `xml:"NameOfSubstance"`
}

type xmlPubmedData struct {
	History xmlHistory `xml:"History"`
}

type xmlHistory struct {
	PubMedPubDate []struct {
		PubStatus string `xml:"PubStatus,attr"`
		Year      string `xml:"Year"`
		Month     string `xml:"Month"`
		Day       string `xml:"Day"`
	} `xml:"PubMedPubDate"`
}
