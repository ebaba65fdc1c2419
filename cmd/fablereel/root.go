package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath   string
	debugLogging bool
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fablereel",
		Short: "Fablereel - novel-to-video generation pipeline",
		Long: `Fablereel turns novel chapters into narrated video.

It generates narration scripts with a language model, submits image and
video synthesis jobs to external services, and tracks every job in a
durable task store until its artifact lands on disk.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./fablereel.yaml)")
	cmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newScriptCommand())
	cmd.AddCommand(newSubmitCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
