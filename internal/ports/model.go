// Package ports defines interfaces (hexagonal ports) for the external systems
// yuedu talks to. Implementations live in internal/adapters; orchestration in
// internal/service.
package ports

import "context"

// GenerateOptions tunes a single completion request.
type GenerateOptions struct {
	Temperature     float64
	TopP            float64
	ContextSize     int
	MaxOutputTokens int
	// Stage labels the call in metrics and logs, e.g. "translate.refine".
	Stage string
}

// ModelClient sends prompts to the language model backend.
type ModelClient interface {
	// Generate returns the completion text. ok is false when the backend could
	// not be reached or answered with an error; the client applies its own
	// timeout on top of ctx.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (text string, ok bool)

	// CheckConnection reports whether the backend is reachable.
	CheckConnection(ctx context.Context) bool

	// ListModels returns the names of the models the backend has pulled.
	ListModels(ctx context.Context) ([]string, error)

	// ModelName is the model every request is sent to.
	ModelName() string
}
