package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/ashureev/interview-funnel/internal/domain"
	"github.com/ashureev/interview-funnel/internal/progress"
	"github.com/spf13/cobra"
)

// watchCmd follows report generation
var watchCmd = &cobra.Command{
	Use:   "watch <report-id>",
	Short: "Follow report generation progress",
	Long: `Subscribe to the report progress stream and print every update until
the report completes or fails. When the stream is unavailable an estimated
timeline is shown instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	live := progress.NewLiveSource(cfg.Backend.ReportStreamURL, progress.NewStreamClient(), logger)
	m := progress.NewMonitor(args[0], live, progress.NewSimulatedSource(cfg.Progress.SimulatedStepInterval),
		progress.MonitorOptions{
			OnUpdate: func(s progress.Snapshot) { printSnapshot(out, s) },
			Logger:   logger,
		})

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if final := m.Snapshot(); final.State == progress.StateError {
		return fmt.Errorf("report failed: %s", final.Message)
	}
	return nil
}

func printSnapshot(out io.Writer, s progress.Snapshot) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%3d%%] %-9s", s.Progress, s.State)
	if s.Estimated {
		b.WriteString(" (estimated)")
	}
	for _, step := range s.Steps {
		fmt.Fprintf(&b, " %s%s", statusMark(step.Status), step.ID)
	}
	if s.Message != "" {
		fmt.Fprintf(&b, " | %s", s.Message)
	}
	fmt.Fprintln(out, b.String())
}

func statusMark(st domain.StepStatus) string {
	switch st {
	case domain.StepCompleted:
		return "+"
	case domain.StepActive:
		return "*"
	case domain.StepError:
		return "!"
	default:
		return "-"
	}
}
