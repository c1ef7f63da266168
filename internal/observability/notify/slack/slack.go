// Package slack delivers job failure notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/yuedu-lab/yuedu/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// JobURLPrefix, when set, links the job id to <prefix>/jobs/<id>.
	JobURLPrefix string
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	retryLimit   int
	jobURLPrefix string
	client       *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "yuedu"
	}

	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     username,
		retryLimit:   max(cfg.RetryLimit, 0),
		jobURLPrefix: strings.TrimSpace(cfg.JobURLPrefix),
		client:       hc,
	}, nil
}

// SendJobFailure posts a formatted message to Slack, retrying with linear backoff.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

type message struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

func (c *Client) formatMessage(p notify.JobFailurePayload) message {
	var b strings.Builder

	b.WriteString("*Async job failed*")
	if id := c.jobReference(p.JobID); id != "" {
		b.WriteByte(' ')
		b.WriteString(id)
	}
	if p.Kind != "" {
		fmt.Fprintf(&b, " (%s)", p.Kind)
	}
	b.WriteByte('\n')

	writeField(&b, "Severity", p.SeverityOrDefault())
	writeField(&b, "Error class", p.ErrorClass)
	writeField(&b, "Error", escape(p.Error))
	if p.InputExcerpt != "" {
		writeField(&b, "Input", "`"+escape(p.InputExcerpt)+"`")
	}
	if p.ModelOutput != "" {
		writeField(&b, "Model output", "`"+escape(p.ModelOutput)+"`")
	}
	if p.Duration > 0 {
		writeField(&b, "Ran for", p.Duration.Round(time.Millisecond).String())
	}

	if len(p.Metadata) > 0 {
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("• Metadata:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "    • %s: %s\n", k, escape(p.Metadata[k]))
		}
	}

	ts := p.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString("• Timestamp: ")
	b.WriteString(ts.UTC().Format(time.RFC3339))

	return message{Text: b.String(), Username: c.username, Channel: c.channel}
}

func (c *Client) jobReference(jobID string) string {
	id := strings.TrimSpace(jobID)
	if id == "" {
		return ""
	}
	if c.jobURLPrefix != "" {
		if u, err := url.Parse(c.jobURLPrefix); err == nil && u.Scheme != "" && u.Host != "" {
			if link, err := url.JoinPath(u.String(), "jobs", id); err == nil {
				return fmt.Sprintf("<%s|%s>", link, escape(id))
			}
		}
	}
	return "`" + escape(id) + "`"
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "• %s: %s\n", label, value)
}

func escape(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}
