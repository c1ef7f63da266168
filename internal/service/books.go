package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jmespath-community/go-jmespath"
	"golang.org/x/text/unicode/norm"

	"github.com/yuedu-lab/yuedu/internal/core"
	"github.com/yuedu-lab/yuedu/internal/domain/model"
	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
	"github.com/yuedu-lab/yuedu/internal/ports"
)

const (
	maxKeywords         = 5
	recommendQueryTerms = 3
	defaultRecommend    = 5
	maxRecommend        = 20
	maxSubjects         = 10
	maxPublishers       = 5

	noKeywordsMessage = "Could not extract meaningful keywords from text"
)

// summaryExpr projects a search document onto the BookSummary field names.
const summaryExpr = `{
	title: title || 'Unknown Title',
	authors: author_name || ['Unknown Author'],
	first_publish_year: first_publish_year,
	isbn: isbn[0],
	subjects: subject[:10],
	publishers: publisher[:5],
	language: language,
	number_of_pages: number_of_pages_median,
	openlibrary_key: key,
	cover_id: cover_i,
	has_fulltext: has_fulltext
}`

var keywordPattern = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)

var stopWords = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "have": {}, "been": {},
	"were": {}, "will": {}, "would": {}, "could": {}, "should": {}, "about": {},
	"which": {}, "their": {}, "there": {}, "where": {}, "these": {}, "those": {},
	"when": {}, "what": {}, "some": {}, "such": {}, "into": {}, "than": {},
	"then": {}, "them": {}, "they": {}, "your": {},
}

// Translator produces the English text used by Research.
type Translator interface {
	Translate(ctx context.Context, text, schemaName string) (*model.TranslationResult, error)
}

// BookServiceOptions bundles dependencies for NewBookService.
type BookServiceOptions struct {
	Catalog    ports.BookCatalog // Required
	Cache      *core.JSONCache   // Optional: nil disables caching
	Translator Translator        // Optional: Research requires a translation when nil
	Logger     *slog.Logger      // Optional
}

// BookService searches OpenLibrary and recommends further reading.
type BookService struct {
	catalog    ports.BookCatalog
	cache      *core.JSONCache
	translator Translator
	logger     *slog.Logger
}

// NewBookService constructs a BookService.
func NewBookService(opts BookServiceOptions) (*BookService, error) {
	if opts.Catalog == nil {
		return nil, errors.New("book catalog is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BookService{
		catalog:    opts.Catalog,
		cache:      opts.Cache,
		translator: opts.Translator,
		logger:     logger.With("component", "book_service"),
	}, nil
}

// Search runs a filtered search. Language is folded into the query string.
func (s *BookService) Search(ctx context.Context, params model.BookSearchParams) (*model.BookSearchResult, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, apperrors.ValidationField("query", err.Error())
	}

	q := params.Query
	if params.Language != "" {
		q += " language:" + params.Language
	}
	query := ports.BookQuery{
		Q:      q,
		Limit:  params.Limit,
		Offset: params.Offset,
		Filters: map[string]string{
			"author":  params.Author,
			"subject": params.Subject,
			"place":   params.Place,
			"person":  params.Person,
		},
	}

	total, books, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}
	return &model.BookSearchResult{Query: params.Query, NumFound: total, Results: books}, nil
}

// BySubject lists books tagged with subject.
func (s *BookService) BySubject(ctx context.Context, subject string, limit int) (*model.BookSearchResult, error) {
	return s.byField(ctx, "subject", subject, limit)
}

// ByAuthor lists books by author name.
func (s *BookService) ByAuthor(ctx context.Context, author string, limit int) (*model.BookSearchResult, error) {
	return s.byField(ctx, "author", author, limit)
}

func (s *BookService) byField(ctx context.Context, field, value string, limit int) (*model.BookSearchResult, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, apperrors.ValidationField(field, field+" is required")
	}
	total, books, err := s.search(ctx, ports.BookQuery{
		Q:     field + ":" + value,
		Limit: model.ClampBookLimit(limit),
	})
	if err != nil {
		return nil, err
	}
	return &model.BookSearchResult{Query: value, NumFound: total, Results: books}, nil
}

// Work returns the raw OpenLibrary work record.
func (s *BookService) Work(ctx context.Context, id string) (json.RawMessage, error) {
	return s.record(ctx, "work", id, s.catalog.Work)
}

// Author returns the raw OpenLibrary author record.
func (s *BookService) Author(ctx context.Context, id string) (json.RawMessage, error) {
	return s.record(ctx, "author", id, s.catalog.Author)
}

func (s *BookService) record(
	ctx context.Context,
	kind, id string,
	fetch func(context.Context, string) (json.RawMessage, error),
) (json.RawMessage, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.ValidationField("id", kind+" id is required")
	}
	key := s.cache.Key(kind, id)
	var cached json.RawMessage
	if s.cache.Load(ctx, key, &cached) {
		return cached, nil
	}
	rec, err := fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Store(ctx, key, rec)
	return rec, nil
}

// RecommendRequest asks for books related to a passage of English text.
type RecommendRequest struct {
	Text     string `json:"text"`
	Limit    int    `json:"limit,omitempty"`
	Language string `json:"language,omitempty"`
}

// Recommend extracts keywords from the text and searches on the strongest
// three. Three times the limit is fetched so distinct authors can be preferred.
func (s *BookService) Recommend(ctx context.Context, req RecommendRequest) (*model.BookRecommendation, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.ValidationField("text", "text is required")
	}
	limit := clampRecommendLimit(req.Limit)
	keywords := ExtractKeywords(req.Text, maxKeywords)
	out := &model.BookRecommendation{
		TextLength:      len([]rune(req.Text)),
		Keywords:        keywords,
		Recommendations: []model.BookSummary{},
	}
	if len(keywords) == 0 {
		out.Message = noKeywordsMessage
		return out, nil
	}

	q := strings.Join(keywords[:min(recommendQueryTerms, len(keywords))], " ")
	if lang := strings.TrimSpace(req.Language); lang != "" {
		q += " language:" + lang
	}
	total, books, err := s.search(ctx, ports.BookQuery{Q: q, Limit: limit * 3})
	if err != nil {
		return nil, err
	}
	out.NumFound = total
	out.Recommendations = diverseAuthors(books, limit)
	return out, nil
}

// ResearchRequest pairs a Chinese passage with optional existing translation.
type ResearchRequest struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Language       string `json:"language,omitempty"`
}

// Research translates the passage unless a translation is supplied, then
// recommends books for the English text.
func (s *BookService) Research(ctx context.Context, req ResearchRequest) (*model.TextResearch, error) {
	if strings.TrimSpace(req.OriginalText) == "" {
		return nil, apperrors.ValidationField("original_text", "original_text is required")
	}

	translated := strings.TrimSpace(req.TranslatedText)
	if translated == "" {
		if s.translator == nil {
			return nil, apperrors.ValidationField("translated_text", "translated_text is required")
		}
		res, err := s.translator.Translate(ctx, req.OriginalText, "translate")
		if err != nil {
			return nil, err
		}
		translated = res.TranslatedText
	}

	rec, err := s.Recommend(ctx, RecommendRequest{Text: translated, Limit: req.Limit, Language: req.Language})
	if err != nil {
		return nil, err
	}
	return &model.TextResearch{
		OriginalText:        req.OriginalText,
		TranslatedText:      translated,
		Keywords:            rec.Keywords,
		BookRecommendations: rec.Recommendations,
		NumBooksFound:       rec.NumFound,
	}, nil
}

type searchPage struct {
	NumFound int                 `json:"num_found"`
	Books    []model.BookSummary `json:"books"`
}

func (s *BookService) search(ctx context.Context, q ports.BookQuery) (int, []model.BookSummary, error) {
	key := s.cache.Key("search", searchKeyParts(q)...)
	var page searchPage
	if s.cache.Load(ctx, key, &page) {
		return page.NumFound, page.Books, nil
	}

	raw, err := s.catalog.Search(ctx, q)
	if err != nil {
		return 0, nil, err
	}
	page = searchPage{NumFound: raw.NumFound, Books: make([]model.BookSummary, 0, len(raw.Docs))}
	for i, doc := range raw.Docs {
		b, err := SummarizeBook(doc)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping malformed search document", "index", i, "error", err)
			continue
		}
		page.Books = append(page.Books, *b)
	}
	s.cache.Store(ctx, key, page)
	return page.NumFound, page.Books, nil
}

func searchKeyParts(q ports.BookQuery) []string {
	parts := []string{q.Q, strconv.Itoa(q.Limit), strconv.Itoa(q.Offset)}
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if v := q.Filters[k]; v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return parts
}

// SummarizeBook projects a raw search document onto BookSummary, filling the
// title and author defaults and trimming subjects and publishers.
func SummarizeBook(doc json.RawMessage) (*model.BookSummary, error) {
	var data any
	if err := json.Unmarshal(doc, &data); err != nil {
		return nil, err
	}
	if _, ok := data.(map[string]any); !ok {
		return nil, errors.New("search document is not an object")
	}
	projected, err := jmespath.Search(summaryExpr, data)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(projected)
	if err != nil {
		return nil, err
	}
	var out model.BookSummary
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out.Subjects == nil {
		out.Subjects = []string{}
	}
	if out.Publishers == nil {
		out.Publishers = []string{}
	}
	if out.Language == nil {
		out.Language = []string{}
	}
	return &out, nil
}

// ExtractKeywords returns up to limit lowercase words of four or more letters,
// most frequent first. Ties keep first-appearance order.
func ExtractKeywords(text string, limit int) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	counts := make(map[string]int)
	var order []string
	for _, w := range keywordPattern.FindAllString(text, -1) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	slices.SortStableFunc(order, func(a, b string) int { return counts[b] - counts[a] })
	if len(order) > limit {
		order = order[:limit]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// diverseAuthors picks one book per author list first, then fills from the
// remaining books in their original order.
func diverseAuthors(books []model.BookSummary, limit int) []model.BookSummary {
	out := make([]model.BookSummary, 0, min(limit, len(books)))
	seen := make(map[string]struct{})
	var rest []model.BookSummary
	for _, b := range books {
		key := strings.Join(b.Authors, "\x1f")
		if _, dup := seen[key]; dup {
			rest = append(rest, b)
			continue
		}
		if len(out) < limit {
			seen[key] = struct{}{}
			out = append(out, b)
		}
	}
	for _, b := range rest {
		if len(out) >= limit {
			break
		}
		out = append(out, b)
	}
	return out
}

func clampRecommendLimit(n int) int {
	switch {
	case n <= 0:
		return defaultRecommend
	case n > maxRecommend:
		return maxRecommend
	default:
		return n
	}
}
