// Package main provides the CLI entry point for the Steward personal-agent
// runtime.
//
// # Basic Usage
//
// Start the server:
//
//	agent serve --config agent.yaml
//
// Chat over a channel:
//
//	agent chat --channel my-channel
//
// Check server health:
//
//	agent status
//
// Write a starter configuration:
//
//	agent init
//
// # Environment Variables
//
//   - PA_CONFIG_PATH: Path to configuration file (default: agent.yaml)
//   - PA_ANTHROPIC_API_KEY / PA_OPENAI_API_KEY: provider credentials,
//     referenced from the config's apiKeyEnv fields
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// usageError marks failures caused by bad CLI input; they exit 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		var usage *usageError
		if errors.As(err, &usage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agent",
		Short: "Steward - personal agent runtime",
		Long: `Steward is a single-node personal-agent runtime: it mediates user turns
against an LLM, enforces governance and budget policy, persists conversation
history, schedules recurring background actions, and streams results back as
Server-Sent Events.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildStatusCmd(),
		buildInitCmd(),
	)

	return rootCmd
}
