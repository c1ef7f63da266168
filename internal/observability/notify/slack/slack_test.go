package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuedu-lab/yuedu/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err, "expected error when webhook url missing")
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.JobFailurePayload{
		JobID:        "123",
		Kind:         "translation",
		Error:        "model backend unavailable",
		ErrorClass:   "unavailable",
		InputExcerpt: "你好",
		ModelOutput:  "{\"broken\"",
		Duration:     1500 * time.Millisecond,
		Metadata:     map[string]string{"schema": "translate"},
	})

	assert.Equal(t, "bot", msg.Username)
	assert.Equal(t, "#alerts", msg.Channel)
	for _, want := range []string{
		"Async job failed", "`123`", "(translation)", "model backend unavailable",
		"unavailable", "你好", "1.5s", "schema: translate", "Severity: warning",
		"Model output: `{\"broken\"`",
	} {
		assert.Contains(t, msg.Text, want)
	}
}

func TestFormatMessageJobLinkAndEscaping(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:   "https://hooks.slack.com/services/test",
		JobURLPrefix: "https://yuedu.example.com",
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.JobFailurePayload{JobID: "abc", Error: "<bad> & worse"})
	assert.Contains(t, msg.Text, "<https://yuedu.example.com/jobs/abc|abc>")
	assert.Contains(t, msg.Text, "&lt;bad&gt; &amp; worse")

	client.jobURLPrefix = "not a url"
	msg = client.formatMessage(notify.JobFailurePayload{JobID: "abc"})
	assert.Contains(t, msg.Text, "`abc`")
}

func TestSendJobFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	require.NoError(t, client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendJobFailureReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "1"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid_payload"), err.Error())
}
