package pubmed

import (
	"bufio"
	"strings"
)

// Article is one harvested PubMed record
type Article struct {
	PMID     string
	Title    string
	Authors  []string
	Journal  string
	PubDate  string
	DOI      string
	Abstract string
	CitedBy  int
	PMCID    string

	// MatchedKeyword is the first configured keyword present in Title or Abstract
	MatchedKeyword string
}

// URL returns the PubMed landing page
func (a Article) URL() string {
	return "https://pubmed.ncbi.nlm.nih.gov/" + a.PMID + "/"
}

// ParseMedline splits Medline text into articles.
// Records are separated by blank lines; a line indented six spaces continues the previous field.
func ParseMedline(text string) []Article {
	var (
		articles []Article
		fields   = map[string][]string{}
		lastTag  string
	)
	flush := func() {
		if len(fields) > 0 {
			articles = append(articles, articleFromFields(fields))
		}
		fields = map[string][]string{}
		lastTag = ""
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case strings.HasPrefix(line, "      "):
			if lastTag == "" {
				continue
			}
			vals := fields[lastTag]
			vals[len(vals)-1] += " " + strings.TrimSpace(line)
		case len(line) >= 6 && line[4] == '-':
			tag := strings.TrimSpace(line[:4])
			fields[tag] = append(fields[tag], strings.TrimSpace(line[5:]))
			lastTag = tag
		}
	}
	flush()
	return articles
}

func articleFromFields(fields map[string][]string) Article {
	first := func(tag string) string {
		if v := fields[tag]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return Article{
		PMID:     first("PMID"),
		Title:    first("TI"),
		Authors:  fields["AU"],
		Journal:  first("JT"),
		PubDate:  first("DP"),
		DOI:      taggedDOI(fields["LID"], fields["AID"]),
		Abstract: first("AB"),
	}
}

// taggedDOI returns the first "... [doi]" value
func taggedDOI(lists ...[]string) string {
	for _, list := range lists {
		for _, v := range list {
			if id, ok := strings.CutSuffix(v, "[doi]"); ok {
				return strings.TrimSpace(id)
			}
		}
	}
	return ""
}
