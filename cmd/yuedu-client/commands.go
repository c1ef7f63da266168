package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// jobKinds maps each job kind to its submit and status routes.
var jobKinds = map[string]struct {
	submit string
	status string
}{
	"translation": {submit: "/translate/async", status: "/translate/status/"},
	"questions":   {submit: "/questions/async", status: "/questions/status/"},
	"linguistic":  {submit: "/linguistic/async", status: "/linguistic/status/"},
}

// waitOptions are the flags shared by the submitting commands.
type waitOptions struct {
	API      string
	Interval time.Duration
	Timeout  time.Duration
	NoWait   bool
}

func (o *waitOptions) register(fs *flag.FlagSet, cfg clientConfig) {
	fs.StringVar(&o.API, "api", cfg.APIURL, "base URL of the yuedu server")
	fs.DurationVar(&o.Interval, "interval", cfg.PollInterval, "poll interval")
	fs.DurationVar(&o.Timeout, "timeout", cfg.WaitTimeout, "give up waiting after this long")
	fs.BoolVar(&o.NoWait, "no-wait", false, "print the job id and exit without polling")
}

func runTranslate(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(ctx.Err)
	var opts waitOptions
	opts.register(fs, ctx.Config)
	schema := fs.String("schema", "translate", "prompt schema (translate or detailed)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := inputText(ctx.In, fs.Args())
	if err != nil {
		return err
	}
	return submitAndWait(ctx, opts, "translation", map[string]any{"text": text, "schema_name": *schema})
}

func runQuestions(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("questions", flag.ContinueOnError)
	fs.SetOutput(ctx.Err)
	var opts waitOptions
	opts.register(fs, ctx.Config)
	count := fs.Int("count", 5, "number of questions (1-20)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := inputText(ctx.In, fs.Args())
	if err != nil {
		return err
	}
	return submitAndWait(ctx, opts, "questions", map[string]any{"text": text, "question_count": *count})
}

func runLinguistic(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("linguistic", flag.ContinueOnError)
	fs.SetOutput(ctx.Err)
	var opts waitOptions
	opts.register(fs, ctx.Config)
	selected := fs.String("selected", "", "the word or phrase to analyze (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*selected) == "" {
		return errors.New("-selected is required")
	}

	full, err := inputText(ctx.In, fs.Args())
	if err != nil {
		return err
	}
	return submitAndWait(ctx, opts, "linguistic", map[string]any{"full_text": full, "selected_text": *selected})
}

func runStatus(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(ctx.Err)
	api := fs.String("api", ctx.Config.APIURL, "base URL of the yuedu server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: yuedu-client status [-api url] <job_id>")
	}

	job, err := newAPIClient(*api).job(ctx.Ctx, "/jobs/", fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(ctx.Out, job)
}

func runStats(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(ctx.Err)
	api := fs.String("api", ctx.Config.APIURL, "base URL of the yuedu server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var stats json.RawMessage
	if err := newAPIClient(*api).do(ctx.Ctx, http.MethodGet, "/jobs/stats", nil, &stats); err != nil {
		return err
	}
	return printJSON(ctx.Out, stats)
}

func submitAndWait(ctx *commandContext, opts waitOptions, kind string, body map[string]any) error {
	routes := jobKinds[kind]
	client := newAPIClient(opts.API)

	ack, err := client.submit(ctx.Ctx, routes.submit, body)
	if err != nil {
		return fmt.Errorf("submit %s job: %w", kind, err)
	}
	writef(ctx.Err, "submitted %s job %s\n", kind, ack.JobID)
	if opts.NoWait {
		writef(ctx.Out, "%s\n", ack.JobID)
		return nil
	}

	job, err := poll(ctx, client, routes.status, ack.JobID, opts)
	if err != nil {
		return err
	}
	if err := printJSON(ctx.Out, job); err != nil {
		return err
	}
	if job.State == "failed" {
		msg := ""
		if job.Error != nil {
			msg = *job.Error
		}
		return fmt.Errorf("job %s failed: %s", job.JobID, msg)
	}
	return nil
}

// poll reads the job until it is terminal, reporting progress changes on ctx.Err.
func poll(ctx *commandContext, client *apiClient, statusPath, id string, opts waitOptions) (*jobView, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	waitCtx := ctx.Ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx.Ctx, opts.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastProgress := ""
	for {
		job, err := client.job(waitCtx, statusPath, id)
		if err != nil {
			return nil, fmt.Errorf("poll job %s: %w", id, err)
		}
		if job.Progress != lastProgress {
			writef(ctx.Err, "[%s] %s\n", job.State, job.Progress)
			lastProgress = job.Progress
		}
		if job.terminal() {
			return job, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("wait for job %s: %w", id, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// inputText joins args, or reads stdin when there are none or the only arg is "-".
func inputText(in io.Reader, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		args = []string{string(data)}
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return "", errors.New("no input text")
	}
	return text, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
