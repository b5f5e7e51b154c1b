package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"baler/internal/batch"
	"baler/internal/detect"
	"baler/internal/engine"
	"baler/internal/report"
	"baler/internal/tui"
)

// runRequest is everything a subcommand resolved before the batch starts.
type runRequest struct {
	op              detect.Operation
	items           []detect.InputItem
	output          string
	opts            batch.Options
	recursive       bool
	jobs            int
	continueOnError bool
	reportPath      string
	showTUI         bool
}

// runBatch plans, executes and reports one batch. It returns errBatchFailed
// when any job failed or was not attempted.
func runBatch(ctx context.Context, req runRequest) error {
	planner := batch.NewPlanner(nil)
	planner.Recursive = req.recursive
	jobs, err := planner.Plan(req.op, req.items, req.output, req.opts)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	strategy, err := batch.StrategyFor(req.op, engine.NewArchiver(), loggerFor(runID))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan batch.ProgressUpdate, 64)
	scheduler := batch.NewScheduler(strategy, batch.Config{
		MaxParallel:     req.jobs,
		ContinueOnError: req.continueOnError,
		RunID:           runID,
		Logger:          log,
		Updates:         updates,
	})

	log.Info().
		Str("run_id", runID).
		Str("operation", req.op.String()).
		Int("jobs", len(jobs)).
		Msg("batch planned")

	wait := startProgress(req.showTUI, "baler "+req.op.String(), updates, cancel)
	started := time.Now()
	results, err := scheduler.Run(ctx, jobs)
	close(updates)
	wait()
	if err != nil {
		return err
	}

	if req.op == detect.OpList {
		printEntries(os.Stdout, results)
	}

	summary := report.Summarize(results)
	summary.RunID = runID
	summary.Operation = req.op.String()
	fmt.Fprintln(os.Stdout, report.Render(summary))
	if scheduler.Stopped() && ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "Interrupted: remaining jobs were not started.")
	}

	log.Info().
		Str("run_id", runID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("wall", time.Since(started)).
		Msg("batch finished")

	if req.reportPath != "" {
		if err := report.WriteYAML(req.reportPath, summary, results); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Report written to: %s\n", req.reportPath)
	}

	if !summary.OK() {
		return errBatchFailed
	}
	return nil
}

func printEntries(w io.Writer, results []batch.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, res := range results {
		if !res.Success {
			continue
		}
		fmt.Fprintf(tw, "%s\n", res.Input)
		for _, e := range res.Entries {
			size := tui.FormatBytes(e.Size)
			if e.IsDir {
				size = "-"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", size, e.ModTime.Format("2006-01-02 15:04"), e.Name)
		}
	}
	_ = tw.Flush()
}
