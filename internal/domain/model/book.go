package model

import (
	"errors"
	"strings"
)

// BookSummary is the trimmed view of an OpenLibrary search document.
type BookSummary struct {
	Title            string   `json:"title"`
	Authors          []string `json:"authors"`
	FirstPublishYear *int     `json:"first_publish_year,omitempty"`
	ISBN             *string  `json:"isbn,omitempty"`
	Subjects         []string `json:"subjects"`
	Publishers       []string `json:"publishers"`
	Language         []string `json:"language"`
	NumberOfPages    *int     `json:"number_of_pages,omitempty"`
	OpenLibraryKey   string   `json:"openlibrary_key,omitempty"`
	CoverID          *int     `json:"cover_id,omitempty"`
	HasFulltext      bool     `json:"has_fulltext"`
}

// BookSearchParams filters a book search. Language is folded into the query as
// "language:<code>"; the other filters are sent as separate parameters.
type BookSearchParams struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
	Author   string `json:"author,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Place    string `json:"place,omitempty"`
	Person   string `json:"person,omitempty"`
	Language string `json:"language,omitempty"`
}

const (
	defaultBookLimit = 10
	maxBookLimit     = 100
)

// Normalize trims fields and bounds Limit and Offset.
func (p *BookSearchParams) Normalize() {
	p.Query = strings.TrimSpace(p.Query)
	p.Author = strings.TrimSpace(p.Author)
	p.Subject = strings.TrimSpace(p.Subject)
	p.Place = strings.TrimSpace(p.Place)
	p.Person = strings.TrimSpace(p.Person)
	p.Language = strings.TrimSpace(p.Language)
	p.Limit = ClampBookLimit(p.Limit)
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// Validate requires a query.
func (p BookSearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("query is required")
	}
	return nil
}

// ClampBookLimit applies the default and upper bound to a result limit.
func ClampBookLimit(limit int) int {
	if limit <= 0 {
		return defaultBookLimit
	}
	if limit > maxBookLimit {
		return maxBookLimit
	}
	return limit
}

// BookSearchResult is a page of search results.
type BookSearchResult struct {
	Query    string        `json:"query"`
	NumFound int           `json:"num_found"`
	Results  []BookSummary `json:"results"`
}

// BookRecommendation is the result of recommending books for a passage.
type BookRecommendation struct {
	TextLength      int           `json:"text_length"`
	Keywords        []string      `json:"keywords"`
	NumFound        int           `json:"num_found"`
	Recommendations []BookSummary `json:"recommendations"`
	Message         string        `json:"message,omitempty"`
}

// TextResearch is a translation paired with further reading.
type TextResearch struct {
	OriginalText        string        `json:"original_text"`
	TranslatedText      string        `json:"translated_text"`
	Keywords            []string      `json:"keywords"`
	BookRecommendations []BookSummary `json:"book_recommendations"`
	NumBooksFound       int           `json:"num_books_found"`
}
