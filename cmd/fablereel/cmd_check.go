package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fablereel/fablereel/internal/task"
)

var (
	checkRoot      string
	checkMonitor   bool
	checkInterval  time.Duration
	checkRecursive bool
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Poll pending generation tasks and collect finished artifacts",
		Long: `Run a reconciliation pass over every chapter's pending tasks.

Each pass relocates stray media, queries the generation services for
task status, downloads or decodes finished artifacts into the media
directory, and archives terminal records. With --monitor the pass
repeats until every task settles.`,
		RunE: checkCommandE,
	}

	cmd.Flags().StringVar(&checkRoot, "root", ".", "Content root directory")
	cmd.Flags().BoolVar(&checkMonitor, "monitor", false, "Keep polling until every task is terminal")
	cmd.Flags().DurationVar(&checkInterval, "interval", 0, "Delay between monitor rounds (default: from config)")
	cmd.Flags().BoolVar(&checkRecursive, "recursive", false, "Search the whole tree for chapter directories")

	return cmd
}

func checkCommandE(cmd *cobra.Command, args []string) error {
	a, err := setup(checkRoot)
	if err != nil {
		return err
	}
	defer a.close()

	if checkInterval > 0 {
		a.cfg.Poll.Interval = checkInterval
	}

	reconciler, err := a.reconciler()
	if err != nil {
		return err
	}

	units, err := discoverUnits(checkRoot, checkRecursive)
	if err != nil {
		return err
	}

	start := time.Now()
	var stats task.Stats
	if checkMonitor {
		stats, err = reconciler.Monitor(cmd.Context(), units)
	} else {
		stats, err = reconciler.Sweep(cmd.Context(), units)
	}
	if err != nil {
		return err
	}

	printStats(stats, time.Since(start))
	return nil
}
