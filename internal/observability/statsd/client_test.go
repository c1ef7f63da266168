package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" job/metric ":  "job_metric",
		"foo..bar":      "foo.bar",
		"multi  space":  "multi__space",
		".jobs.queued.": "jobs.queued",
	}

	for input, want := range tests {
		if got := normalizeMetricName(input); got != want {
			t.Fatalf("normalizeMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEncodeLine(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		//nolint:gocritic // whitespace is part of the test case
		" service ": " yuedu ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
	}

	got := encodeLine("job.transition", "1", "c", global, local)
	want := "job.transition:1|c|#env:stage,result:success,service:yuedu"
	if got != want {
		t.Fatalf("encodeLine mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := encodeLine("jobs.depth", "3", "g", nil, nil); got != "jobs.depth:3|g" {
		t.Fatalf("encodeLine without tags = %q", got)
	}
	if got := encodeLine("", "1", "c", nil, nil); got != "" {
		t.Fatalf("encodeLine with empty name = %q", got)
	}
}

func TestClientWritesPrefixedLines(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{prefix: "yuedu", conn: clientConn, globalTags: map[string]string{}}

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := peerConn.Read(buf)
		done <- string(buf[:n])
	}()

	client.Timing("job.duration", 1500*time.Millisecond, map[string]string{"kind": "translation"})

	select {
	case line := <-done:
		if !strings.HasPrefix(line, "yuedu.job.duration:1500|ms") {
			t.Fatalf("unexpected line %q", line)
		}
		if !strings.HasSuffix(line, "|#kind:translation") {
			t.Fatalf("missing tags in %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for metric")
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{conn: clientConn}
	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestDisabledClientDropsMetrics(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected disabled client")
	}
	client.Count("x", 1, nil)

	var nilClient *Client
	nilClient.Gauge("x", 1, nil)
	if nilClient.Enabled() {
		t.Fatal("nil client must report disabled")
	}
}

type recordingSink struct {
	counts  []string
	gauges  []string
	timings []string
}

func (r *recordingSink) Count(name string, _ int64, _ map[string]string) {
	r.counts = append(r.counts, name)
}

func (r *recordingSink) Gauge(name string, _ float64, _ map[string]string) {
	r.gauges = append(r.gauges, name)
}

func (r *recordingSink) Timing(name string, _ time.Duration, _ map[string]string) {
	r.timings = append(r.timings, name)
}

func TestNewMulti(t *testing.T) {
	t.Parallel()

	if NewMulti(nil, nil) != nil {
		t.Fatal("expected nil sink when no sinks given")
	}

	a := &recordingSink{}
	if got := NewMulti(nil, a); got != Sink(a) {
		t.Fatal("expected single sink to be returned unwrapped")
	}

	b := &recordingSink{}
	m := NewMulti(a, b)
	m.Count("c", 1, nil)
	m.Gauge("g", 1, nil)
	m.Timing("t", time.Second, nil)

	for _, r := range []*recordingSink{a, b} {
		if len(r.counts) != 1 || len(r.gauges) != 1 || len(r.timings) != 1 {
			t.Fatalf("expected fan-out to every sink, got %+v", r)
		}
	}
}
