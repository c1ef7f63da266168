// Package ollama implements ports.ModelClient against the Ollama HTTP API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/yuedu-lab/yuedu/internal/observability/metrics"
	"github.com/yuedu-lab/yuedu/internal/observability/statsd"
	"github.com/yuedu-lab/yuedu/internal/ports"
)

const (
	defaultTemperature = 0.7
	defaultTopP        = 0.9
	defaultContextSize = 16384
	defaultMaxOutput   = 16384

	// NDJSON lines carry a token or two each, but a final line can hold the
	// whole context array.
	maxLineBytes = 8 << 20
	maxErrorBody = 4096
)

// Options configures a Client.
type Options struct {
	BaseURL         string        // Required: e.g. http://localhost:10000
	Model           string        // Required: model tag
	Timeout         time.Duration // Optional: per-generate bound (default 600s)
	ConnectTimeout  time.Duration // Optional: reachability probe bound (default 5s)
	ConnectCacheTTL time.Duration // Optional: how long a successful probe is trusted
	Streaming       bool
	HTTPClient      *http.Client // Optional
	Logger          *slog.Logger // Optional
	Metrics         statsd.Sink  // Optional
}

// Client talks to an Ollama server.
type Client struct {
	baseURL        string
	model          string
	timeout        time.Duration
	connectTimeout time.Duration
	connectTTL     time.Duration
	streaming      bool
	http           *http.Client
	logger         *slog.Logger
	metrics        statsd.Sink

	probe      singleflight.Group
	lastProbed *atomic.Int64 // unix nanos of the last successful probe
	now        func() time.Time
}

var _ ports.ModelClient = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("ollama base url is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("ollama model is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		// Deadlines come from per-request contexts.
		hc = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:        base,
		model:          strings.TrimSpace(opts.Model),
		timeout:        timeout,
		connectTimeout: connectTimeout,
		connectTTL:     max(opts.ConnectCacheTTL, 0),
		streaming:      opts.Streaming,
		http:           hc,
		logger:         logger.With("component", "ollama_client", "model", opts.Model),
		metrics:        opts.Metrics,
		lastProbed:     atomic.NewInt64(0),
		now:            time.Now,
	}, nil
}

// ModelName returns the configured model tag.
func (c *Client) ModelName() string { return c.model }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Think   bool            `json:"think,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
	NumCtx      int     `json:"num_ctx"`
}

func withDefaults(o ports.GenerateOptions) generateOptions {
	out := generateOptions{
		Temperature: o.Temperature,
		TopP:        o.TopP,
		NumPredict:  o.MaxOutputTokens,
		NumCtx:      o.ContextSize,
	}
	if out.Temperature <= 0 {
		out.Temperature = defaultTemperature
	}
	if out.TopP <= 0 {
		out.TopP = defaultTopP
	}
	if out.NumPredict <= 0 {
		out.NumPredict = defaultMaxOutput
	}
	if out.NumCtx <= 0 {
		out.NumCtx = defaultContextSize
	}
	return out
}

// Generate sends prompt to /api/generate and returns the completion. When the
// model only produced thinking output, that is returned instead. ok is false
// when the backend is unreachable, answers with a non-200 status, or the
// request times out.
func (c *Client) Generate(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, bool) {
	stage := opts.Stage
	if stage == "" {
		stage = "general"
	}

	if !c.CheckConnection(ctx) {
		metrics.EmitModelCall(c.metrics, metrics.ModelCallMetric{Stage: stage})
		return "", false
	}

	start := time.Now()
	text, err := c.generate(ctx, prompt, withDefaults(opts))
	elapsed := time.Since(start)
	metrics.EmitModelCall(c.metrics, metrics.ModelCallMetric{Stage: stage, OK: err == nil, Duration: elapsed})

	if err != nil {
		c.logger.WarnContext(ctx, "model call failed",
			"stage", stage, "elapsed", elapsed, "error", err)
		return "", false
	}
	c.logger.DebugContext(ctx, "model call finished",
		"stage", stage, "elapsed", elapsed, "chars", len(text))
	return text, true
}

func (c *Client) generate(ctx context.Context, prompt string, opts generateOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  c.streaming,
		Think:   !c.streaming,
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("generate returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if c.streaming {
		return readStream(resp.Body)
	}
	return readSingle(resp.Body)
}

func readSingle(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}
	if !gjson.ValidBytes(b) {
		return "", errors.New("generate response is not valid JSON")
	}
	if msg := gjson.GetBytes(b, "error"); msg.Exists() {
		return "", fmt.Errorf("backend error: %s", msg.String())
	}
	return pickText(
		gjson.GetBytes(b, "response").String(),
		gjson.GetBytes(b, "thinking").String(),
	), nil
}

// readStream accumulates the response and thinking fragments of an NDJSON
// stream until a line reports done.
func readStream(r io.Reader) (string, error) {
	var response, thinking strings.Builder

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		if msg := gjson.GetBytes(line, "error"); msg.Exists() {
			return "", fmt.Errorf("backend error: %s", msg.String())
		}
		response.WriteString(gjson.GetBytes(line, "response").String())
		thinking.WriteString(gjson.GetBytes(line, "thinking").String())
		if gjson.GetBytes(line, "done").Bool() {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read generate stream: %w", err)
	}
	return pickText(response.String(), thinking.String()), nil
}

func pickText(response, thinking string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return strings.TrimSpace(thinking)
	}
	return response
}

// CheckConnection probes /api/tags. A success is remembered for the connect
// cache TTL; failures are not, so a backend that comes back is noticed on the
// next call. Concurrent probes share one request, which a cancelled caller
// abandons without failing the others.
func (c *Client) CheckConnection(ctx context.Context) bool {
	if c.connectTTL > 0 {
		last := c.lastProbed.Load()
		if last > 0 && c.now().Sub(time.Unix(0, last)) < c.connectTTL {
			return true
		}
	}

	// The shared probe outlives any single caller; tags bounds it with the
	// connect timeout.
	ch := c.probe.DoChan("tags", func() (any, error) {
		probeCtx := context.WithoutCancel(ctx)
		if _, err := c.tags(probeCtx); err != nil {
			c.logger.WarnContext(probeCtx, "model backend unreachable", "base_url", c.baseURL, "error", err)
			return false, nil
		}
		c.lastProbed.Store(c.now().UnixNano())
		return true, nil
	})
	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

// ListModels returns the model names reported by /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	b, err := c.tags(ctx)
	if err != nil {
		return nil, err
	}
	names := gjson.GetBytes(b, "models.#.name").Array()
	out := make([]string, 0, len(names))
	for _, n := range names {
		if s := n.String(); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *Client) tags(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tags request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tags returned %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxLineBytes))
	if err != nil {
		return nil, fmt.Errorf("read tags response: %w", err)
	}
	return b, nil
}
