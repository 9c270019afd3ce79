package search

import (
	"strings"

	"golang.org/x/net/html"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultArticle ResultType = "article"
	ResultCase    ResultType = "case"
)

// ParseResultType accepts "article", "case" or empty (all types).
func ParseResultType(value string) (ResultType, bool) {
	switch ResultType(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return "", true
	case ResultArticle:
		return ResultArticle, true
	case ResultCase:
		return ResultCase, true
	default:
		return "", false
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ArticleID string     `json:"articleId"`
	EditionID string     `json:"editionId"`
	Lang      string     `json:"lang"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterEditionID string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ArticleRecord is the data we index for an article. Body is plain text.
type ArticleRecord struct {
	ID              string `json:"id"`
	Heading         string `json:"heading"`
	Body            string `json:"body"`
	EditionID       string `json:"editionId"`
	Lang            string `json:"lang"`
	PublicationDate string `json:"publicationDate"`
	FullyAnnotated  bool   `json:"fullyAnnotated"`
}

// CaseRecord is the data we index for a metaphor case.
type CaseRecord struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Comment   string `json:"comment"`
	ModelName string `json:"modelName"`
	ArticleID string `json:"articleId"`
	EditionID string `json:"editionId"`
	Lang      string `json:"lang"`
}

// PlainText drops markup from an article body, keeping text nodes separated
// by single spaces.
func PlainText(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(tokenizer.Text())
		default:
			b.WriteByte(' ')
		}
	}
}
