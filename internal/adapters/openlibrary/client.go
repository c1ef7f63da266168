// Package openlibrary is a client for the OpenLibrary search, works, and
// authors APIs.
package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
	"github.com/yuedu-lab/yuedu/internal/ports"
)

// SearchFields are the document fields requested from the search API.
var SearchFields = []string{
	"key",
	"title",
	"author_name",
	"first_publish_year",
	"isbn",
	"subject",
	"publisher",
	"language",
	"number_of_pages_median",
	"cover_i",
	"has_fulltext",
}

const maxBodyBytes = 8 << 20

// Options configures the client.
type Options struct {
	BaseURL    string // defaults to https://openlibrary.org
	UserAgent  string
	Timeout    time.Duration // defaults to 30s
	HTTPClient *http.Client  // overrides Timeout when set
	Logger     *slog.Logger
}

// Client implements ports.BookCatalog against OpenLibrary.
type Client struct {
	base      string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

var _ ports.BookCatalog = (*Client)(nil)

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://openlibrary.org"
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:      base,
		userAgent: opts.UserAgent,
		http:      hc,
		logger:    logger.With("component", "openlibrary"),
	}
}

// Search queries /search.json. Empty filter values are not sent.
func (c *Client) Search(ctx context.Context, q ports.BookQuery) (*ports.BookPage, error) {
	params := url.Values{}
	params.Set("q", q.Q)
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("fields", strings.Join(SearchFields, ","))
	for k, v := range q.Filters {
		if v != "" {
			params.Set(k, v)
		}
	}

	body, err := c.get(ctx, "/search.json?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp struct {
		NumFound int               `json:"numFound"`
		Docs     []json.RawMessage `json:"docs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUpstream, "decode search response")
	}
	if resp.Docs == nil {
		resp.Docs = []json.RawMessage{}
	}
	return &ports.BookPage{NumFound: resp.NumFound, Docs: resp.Docs}, nil
}

// Work fetches a work record. Both "OL45883W" and "/works/OL45883W" are accepted.
func (c *Client) Work(ctx context.Context, workID string) (json.RawMessage, error) {
	id, err := cleanID(workID, "/works/")
	if err != nil {
		return nil, err
	}
	return c.get(ctx, "/works/"+url.PathEscape(id)+".json")
}

// Author fetches an author record. Both "OL23919A" and "/authors/OL23919A" are accepted.
func (c *Client) Author(ctx context.Context, authorID string) (json.RawMessage, error) {
	id, err := cleanID(authorID, "/authors/")
	if err != nil {
		return nil, err
	}
	return c.get(ctx, "/authors/"+url.PathEscape(id)+".json")
}

func cleanID(raw, prefix string) (string, error) {
	id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), prefix))
	if id == "" || strings.Contains(id, "/") {
		return "", apperrors.ValidationField("id", "invalid OpenLibrary id")
	}
	return id, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "openlibrary request failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.logger.DebugContext(ctx, "openlibrary response",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFoundf("openlibrary resource %s not found", req.URL.Path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperrors.Upstream(fmt.Sprintf("openlibrary returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUpstream, "read openlibrary response")
	}
	if !json.Valid(body) {
		return nil, apperrors.Wrap(errors.New("invalid JSON"), apperrors.ErrCodeUpstream, "decode openlibrary response")
	}
	return body, nil
}
