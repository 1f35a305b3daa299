package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Veraticus/boq-price-match/internal/batch"
	"github.com/Veraticus/boq-price-match/internal/boq"
	"github.com/Veraticus/boq-price-match/internal/cli"
	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job <boq.xlsx>",
		Short: "Match every item of a BOQ workbook",
		Long: `Read a bill of quantities, match all of its line items and write the
priced results to a new workbook.

The job is recorded in the local database with its progress and per-item
failures. Pressing Ctrl-C stops after the items in flight and keeps the
partial results.`,
		Args: cobra.ExactArgs(1),
		RunE: runJob,
	}

	cmd.Flags().StringP("method", "m", "LOCAL", "Match method ("+strings.Join(model.MethodNames(), ", ")+")")
	cmd.Flags().StringP("out", "o", "", "Results workbook (default: <boq>-priced.xlsx)")
	cmd.Flags().Int("concurrency", 0, "Override performance.maxConcurrentMatches")
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar")

	return cmd
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	methodName, _ := cmd.Flags().GetString("method")
	outPath, _ := cmd.Flags().GetString("out")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	method, err := model.ParseMatchMethod(methodName)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = strings.TrimSuffix(args[0], ".xlsx") + "-priced.xlsx"
	}

	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open BOQ: %w", err)
	}
	queries, err := boq.NewReader(slog.Default()).ReadBOQ(in)
	_ = in.Close()
	if err != nil {
		return fmt.Errorf("failed to read BOQ: %w", err)
	}
	if len(queries) == 0 {
		return errors.New("BOQ contains no line items")
	}

	s, err := initStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := initMatcher(ctx, s)
	if err != nil {
		return err
	}
	defer m.Close()
	if !m.matcher.Supports(method) {
		return common.NewInputError("method", fmt.Sprintf("method %s has no configured provider", method), common.ErrMissingAPIKey)
	}

	jobID := uuid.NewString()
	jobSink, err := s.local.NewJobSink(ctx, model.MatchJob{
		ID:        jobID,
		Method:    method.String(),
		Total:     len(queries),
		StartedAt: time.Now(),
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}

	out := cmd.OutOrStdout()
	sinks := batch.MultiSink{jobSink}
	if !noProgress {
		sinks = append(sinks, cli.NewProgressBarSink(cmd.ErrOrStderr(), len(queries)))
	}

	interrupts := cli.NewInterruptHandler(out)
	runCtx, stop := interrupts.HandleInterrupts(ctx, jobID)
	defer stop()

	opts := batch.OptionsFromConfig(m.cfg.Performance)
	opts.Logger = slog.Default()
	if concurrency > 0 {
		opts.Concurrency = concurrency
	}
	coordinator := batch.NewCoordinator(m.matcher, m.catalog, opts)

	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Matching %d items from %s with %s", len(queries), args[0], method)))
	outcome := coordinator.Run(runCtx, batch.JobRequest{
		JobID:  jobID,
		Method: method,
		Items:  queries,
	}, sinks)

	if len(outcome.Results) > 0 {
		if err := writeResults(outPath, queries, outcome.Results); err != nil {
			return err
		}
		fmt.Fprintln(out, cli.FormatSuccess("Results written to "+outPath))
	}
	fmt.Fprintln(out, cli.RenderJob(outcome.Job))

	return outcome.Err
}

func writeResults(path string, queries []model.MatchQuery, results []model.MatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results workbook: %w", err)
	}
	if err := boq.WriteResults(f, queries, results); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to save results workbook: %w", err)
	}
	return nil
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List recent match jobs or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				job, err := store.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, cli.RenderJob(*job))
				for _, e := range job.Errors {
					fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("row %d: %s: %s", e.Row, e.Description, e.Message)))
				}
				return nil
			}

			jobs, err := store.ListJobs(ctx, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No match jobs yet"))
				return nil
			}
			fmt.Fprintln(out, cli.RenderJobs(jobs))
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of jobs to list")
	return cmd
}
