// Command yuedu-client submits jobs to a running yuedu server and polls them
// until they finish.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

// clientConfig is read from the environment; flags override it per command.
type clientConfig struct {
	APIURL       string        `env:"YUEDU_API_URL"       envDefault:"http://localhost:8000"`
	PollInterval time.Duration `env:"YUEDU_POLL_INTERVAL" envDefault:"2s"`
	WaitTimeout  time.Duration `env:"YUEDU_WAIT_TIMEOUT"  envDefault:"15m"`
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config clientConfig
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		writef(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := loadClientConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		In:     os.Stdin,
		Out:    os.Stdout,
		Err:    os.Stderr,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func loadClientConfig() (clientConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return clientConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	var cfg clientConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func commands() map[string]command {
	return map[string]command{
		"translate": {
			name:        "translate",
			description: "Submit a translation job and wait for the result",
			run:         runTranslate,
		},
		"questions": {
			name:        "questions",
			description: "Submit a comprehension question job and wait for the result",
			run:         runQuestions,
		},
		"linguistic": {
			name:        "linguistic",
			description: "Submit a linguistic analysis of a selection and wait for the result",
			run:         runLinguistic,
		},
		"status": {
			name:        "status",
			description: "Show the current record of a job",
			run:         runStatus,
		},
		"stats": {
			name:        "stats",
			description: "Show queue depth and job counts by state",
			run:         runStats,
		},
	}
}

func printUsage(w io.Writer) {
	writef(w, "Usage: yuedu-client <command> [flags] [text]\n\n")
	writef(w, "Text is read from stdin when omitted or given as \"-\".\n\n")
	writef(w, "Available commands:\n")

	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writef(w, "  %-12s %s\n", name, cmds[name].description)
	}
}

func writef(w io.Writer, format string, args ...any) {
	// Terminal write failures leave nothing useful to report.
	_, _ = fmt.Fprintf(w, format, args...)
}
