package ports

import (
	"context"
	"encoding/json"
)

// BookQuery is the upstream form of a book search.
type BookQuery struct {
	Q      string
	Limit  int
	Offset int
	// Filters are sent as extra query parameters (author, subject, place, person).
	Filters map[string]string
}

// BookPage is one page of raw search documents.
type BookPage struct {
	NumFound int
	Docs     []json.RawMessage
}

// BookCatalog searches an external book catalog.
type BookCatalog interface {
	Search(ctx context.Context, q BookQuery) (*BookPage, error)
	Work(ctx context.Context, workID string) (json.RawMessage, error)
	Author(ctx context.Context, authorID string) (json.RawMessage, error)
}
