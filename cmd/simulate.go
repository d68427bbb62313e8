package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okian/smartsession/internal/simulate"
	"github.com/okian/smartsession/pkg/logger"
	"github.com/spf13/cobra"
)

var simOpts simulate.Config

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive a running server with scripted students and verify the roster",
	Long: fmt.Sprintf(`Stream frames for scripted students against a running server, then
check that /teacher/sessions shows each one in the expected state.

Scenarios: %v`, simulate.ScenarioNames()),
	Example: `  smartsession simulate --url http://localhost:8000 --subjects 20
  smartsession simulate --scenario confused --scenario no-face --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		report, err := simulate.Run(cmd.Context(), &simOpts)
		if report != nil {
			for _, m := range report.Mismatches {
				fmt.Fprintf(os.Stdout, "MISMATCH %s %s\n", m.SubjectID, m)
			}
			fmt.Fprintf(os.Stdout, "frames=%d ok=%d failed=%d verified=%d mismatches=%d in %s\n",
				report.Stats.FramesSubmitted, report.Stats.FramesSuccessful, report.Stats.FramesFailed,
				report.Stats.SubjectsVerified, report.Stats.Mismatches, report.Stats.Duration.Round(time.Millisecond))
		}
		return err
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simOpts.BaseURL, "url", "http://localhost:8000", "Base URL of the service")
	f.StringVar(&simOpts.Session, "session", simulate.DefaultSession, "session_id for every frame")
	f.IntVar(&simOpts.Subjects, "subjects", 5, "Subjects per scenario")
	f.IntVar(&simOpts.Frames, "frames", simulate.DefaultFrames, "Frames per subject")
	f.DurationVar(&simOpts.Interval, "interval", simulate.DefaultInterval, "Delay between one subject's frames")
	f.IntVar(&simOpts.Workers, "workers", runtime.NumCPU()*2, "Subjects streaming concurrently")
	f.DurationVar(&simOpts.Timeout, "timeout", simulate.DefaultTimeout, "HTTP request timeout")
	f.StringSliceVar(&simOpts.Scenarios, "scenario", nil, "Scenario to run (repeatable; default all)")
	f.BoolVar(&simOpts.Verbose, "verbose", false, "Log every frame response")
	rootCmd.AddCommand(simulateCmd)
}
