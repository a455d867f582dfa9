// interviewctl drives the interview engine from a terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/interview-funnel/internal/config"
	"github.com/ashureev/interview-funnel/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "interviewctl",
	Short: "Operate the interview funnel engine from a terminal",
	Long: `interviewctl runs the interview engine against the configured
collaborators without a browser.

Available subcommands:
  chat  - Run a text-mode interview for a funnel session
  watch - Follow report generation progress`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig reads .env and the environment and installs the logger.
// Logs go to stderr so they do not interleave with the conversation.
func loadConfig() (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level := telemetry.ParseLevel(cfg.Log.Level)
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
