package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mailrow/cmd"
	"github.com/dhcgn/mailrow/config"
	"github.com/dhcgn/mailrow/extract"
	"github.com/dhcgn/mailrow/normalize"
	"github.com/dhcgn/mailrow/output"
	"github.com/dhcgn/mailrow/progress"
	"github.com/dhcgn/mailrow/runner"
	"github.com/dhcgn/mailrow/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mailrow",
		Short:         "Extract a line of text from unread mail into a monthly csv file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting mailrow", "mailbox", cfg.Mailbox, "mbox", cfg.MboxPath, "host", cfg.IMAPHost, "dryRun", cfg.DryRun)

			return run(cmd.Context(), cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewMailboxesCommand(setupLogger), cmd.NewKeyringCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	extractor, err := extract.New(cfg.Anchor, cfg.MaxTokens)
	if err != nil {
		return fmt.Errorf("extract.New: %w", err)
	}

	var normalizer *normalize.Normalizer
	if cfg.Normalize {
		normalizer, err = normalize.New(normalize.Options{
			Markers:        cfg.Markers,
			EscapeArtifact: cfg.EscapeArtifact,
			Separator:      cfg.Separator,
			Boundary:       cfg.Boundary,
			Merges:         cfg.Merges,
		})
		if err != nil {
			return fmt.Errorf("normalize.New: %w", err)
		}
	}

	client, err := cmd.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing mail client", "err", err)
		}
	}()

	r, err := runner.New(runner.Options{
		Mailbox:       cfg.Mailbox,
		Header:        cfg.Header,
		ShowMailboxes: true,
		DryRun:        cfg.DryRun,
		OnSearchError: cfg.SearchError,
	}, runner.Deps{
		Client:     client,
		Extractor:  extractor,
		Normalizer: normalizer,
		Writer:     output.NewWriter(afero.NewOsFs(), cfg.OutputDir, cfg.OutputPrefix),
		Now:        time.Now,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	reporter := stats.NewReporter(r, logger)

	if cfg.NoProgress || cfg.LogLevel != "info" {
		return r.Start(ctx)
	}

	var done atomic.Bool
	spinner := progress.Start(os.Stderr, &done)
	err = r.Start(ctx)
	done.Store(true)
	spinner.Wait()

	s := reporter.Summary()
	progress.Summary(os.Stderr, [][2]string{
		{"Unread", strconv.Itoa(s.Found)},
		{"Rows written", strconv.Itoa(s.Written + s.DryRunRows)},
		{"Marked seen", strconv.Itoa(s.Acknowledged)},
		{"Left unseen", strconv.Itoa(s.Skipped() + s.AckFailed)},
	})
	return err
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mailrow-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
