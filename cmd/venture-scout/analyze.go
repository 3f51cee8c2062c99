//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pgEdge/venture-scout/internal/pipeline"
	"github.com/pgEdge/venture-scout/internal/report"
)

type analyzeOptions struct {
	questions []string
	suggested bool
	exportDir string
	format    string
	run       pipeline.Options
}

func newAnalyzeCommand(v *viper.Viper) *cobra.Command {
	var opts analyzeOptions
	var temperature float64

	analyze := &cobra.Command{
		Use:   "analyze <topic>",
		Short: "Analyze a startup topic and print the report",
		Long: `Runs the agent pipeline for a topic and prints the markdown report.
Each --ask question is then answered from the report in order, sharing
one conversation.`,
		Example: `  venture-scout analyze "AI in healthcare" --ask "What is the recommended initial investment?"
  venture-scout analyze "vertical farming" --suggested --export ./reports --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(opts.format)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("temperature") {
				opts.run.Temperature = &temperature
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			// stdout carries the report.
			logger := newLogger(os.Stderr, cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr, err := pipeline.NewManager(ctx, pipeline.ManagerConfig{
				Config: cfg,
				Logger: logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create analysis manager: %w", err)
			}
			defer func() {
				if err := mgr.Close(); err != nil {
					logger.Error("failed to close analysis manager", "error", err)
				}
			}()

			return runAnalyze(ctx, mgr, args[0], format, opts,
				cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	analyze.Flags().StringArrayVar(&opts.questions, "ask", nil, "question to ask about the report (repeatable)")
	analyze.Flags().BoolVar(&opts.suggested, "suggested", false, "also ask the suggested follow-up questions")
	analyze.Flags().StringVar(&opts.exportDir, "export", "", "directory to write the exported report to")
	analyze.Flags().StringVar(&opts.format, "format", string(report.FormatMarkdown), "export format (md or json)")
	analyze.Flags().StringVar(&opts.run.Model, "model", "", "model for this run and its questions (default from config)")
	analyze.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature between 0 and 2 (default from config)")

	return analyze
}

// analyzer is the part of the analysis manager the analyze command uses.
type analyzer interface {
	Analyze(ctx context.Context, topic string, opts pipeline.Options, progress pipeline.ProgressFunc) (*pipeline.AnalysisResponse, error)
	Ask(ctx context.Context, topic string, req pipeline.QuestionRequest) (*pipeline.QuestionResponse, error)
	Export(topic string, format report.Format) (*pipeline.Export, error)
}

func runAnalyze(ctx context.Context, a analyzer, topic string, format report.Format,
	opts analyzeOptions, stdout, stderr io.Writer) error {
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if t := opts.run.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *t)
	}

	resp, err := a.Analyze(ctx, topic, opts.run, func(p pipeline.Progress) {
		fmt.Fprintf(stderr, "[%3d%%] %s\n", p.Percent, p.Status)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, resp.Analysis)

	if opts.exportDir != "" {
		path, err := writeExport(a, topic, format, opts.exportDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Report exported to %s\n", path)
	}

	questions := opts.questions
	if opts.suggested {
		questions = append(questions, resp.Suggested...)
	}
	if len(questions) == 0 {
		return nil
	}

	if !resp.RAGAvailable {
		fmt.Fprintf(stderr, "Question answering is not available: %s\n", resp.RAGError)
		return nil
	}

	for _, q := range questions {
		answer, err := a.Ask(ctx, topic, pipeline.QuestionRequest{Question: q})
		if err != nil {
			return fmt.Errorf("failed to answer %q: %w", q, err)
		}
		fmt.Fprintf(stdout, "\nQ: %s\nA: %s\n", q, answer.Answer)
	}

	return nil
}

func writeExport(a analyzer, topic string, format report.Format, dir string) (string, error) {
	export, err := a.Export(topic, format)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, export.FileName)
	if err := os.WriteFile(path, export.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}

	return path, nil
}
