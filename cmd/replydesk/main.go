// ReplyDesk is a browser-based AI inbox assistant for bank support.
//
// It serves a single-page interface for fetching unread email over
// IMAP, picking a message, and generating a reply draft with a
// three-stage Gemini pipeline grounded in the bank policy table.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	replydesk init [dir]         Write a default config.yaml
//	replydesk serve              Start the web interface
//	replydesk draft <file>       Draft a reply for an email body file (for testing)
//	replydesk version            Print version and build information
//	replydesk -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/replydesk/replydesk/internal/buildinfo"
	"github.com/replydesk/replydesk/internal/config"
	"github.com/replydesk/replydesk/internal/llm"
	"github.com/replydesk/replydesk/internal/mail"
	"github.com/replydesk/replydesk/internal/pipeline"
	"github.com/replydesk/replydesk/internal/tools"
	"github.com/replydesk/replydesk/internal/web"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the replydesk command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the web server.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:]. We parse these manually rather than using
//     the flag package to avoid global state that interferes with
//     parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "draft":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: replydesk draft <file>")
		}
		return runDraft(ctx, stdout, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "ReplyDesk - Bank AI Inbox Manager")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: replydesk [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init [dir]    Write a default config.yaml (default: .)")
	fmt.Fprintln(w, "  serve         Start the web interface")
	fmt.Fprintln(w, "  draft <file>  Draft a reply for an email body file (for testing)")
	fmt.Fprintln(w, "  version       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// loadConfig discovers and loads the config file, falling back to the
// built-in defaults when none exists (the defaults are complete enough
// to run against Gmail).
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger with the custom TRACE level name
// mapping installed.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// runDraft handles the "replydesk draft <file>" subcommand. It runs
// the full pipeline over an email body read from a file and prints the
// draft to stdout. Useful for smoke-testing the pipeline without a
// mailbox. The API key comes from the config (typically via
// ${GEMINI_API_KEY} expansion).
func runDraft(ctx context.Context, stdout io.Writer, configPath string, filePath string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Gemini.APIKey == "" {
		return fmt.Errorf("no Gemini API key configured (set gemini.api_key, e.g. to ${GEMINI_API_KEY})")
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read email body: %w", err)
	}

	reg := tools.NewRegistry()
	tools.RegisterPolicyTool(reg)

	client := llm.NewGeminiClient(cfg.Gemini.APIKey, logger)
	orch := pipeline.New(client, cfg.Gemini.Model, reg, cfg.Pipeline.RequestsPerMinute, logger)

	result, err := orch.Draft(ctx, string(body))
	if err != nil {
		return fmt.Errorf("draft: %w", err)
	}

	fmt.Fprintf(stdout, "Urgency: %s\n\nEntities:\n%s\n\nDraft:\n%s\n", result.Urgency, result.Entities, result.Draft)
	return nil
}

// runServe handles the "replydesk serve" subcommand: loads config,
// wires the mail client and pipeline factory into the web UI, and
// blocks until a shutdown signal arrives. SIGINT or SIGTERM drains
// in-flight requests before exit.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting ReplyDesk", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. The initial Info-level text logger covers only the startup
	// banner.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by cfg.Validate.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"imap_host", cfg.IMAP.Host,
		"fetch_limit", cfg.IMAP.FetchLimit,
		"model", cfg.Gemini.Model,
	)

	mailClient := mail.NewClient(mail.ServerConfig{
		Host: cfg.IMAP.Host,
		Port: cfg.IMAP.Port,
	}, logger)

	reg := tools.NewRegistry()
	tools.RegisterPolicyTool(reg)

	// The generation key arrives from the browser form, so the drafter
	// is built per key rather than once at startup.
	factory := func(apiKey string) web.Drafter {
		client := llm.NewGeminiClient(apiKey, logger)
		return pipeline.New(client, cfg.Gemini.Model, reg, cfg.Pipeline.RequestsPerMinute, logger)
	}

	server := web.NewServer(mailClient, factory, cfg.IMAP.FetchLimit, logger)
	server.SeedAPIKey(cfg.Gemini.APIKey)

	addr := net.JoinHostPort(cfg.Listen.Address, fmt.Sprintf("%d", cfg.Listen.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown on SIGINT/SIGTERM or parent context cancellation.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web interface listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("goodbye")
	return nil
}
