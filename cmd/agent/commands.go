// commands.go contains the cobra command definitions and their flag
// configurations. Each builder wires a command to its handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/config"
)

// buildServeCmd creates the "serve" command that starts the runtime.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the personal-agent server",
		Long: `Start the personal-agent server.

The server will:
1. Load configuration from the specified file
2. Open the SQLite database and apply pending migrations
3. Initialize LLM providers
4. Start the entity runtime, scheduler loop, and HTTP gateway

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  agent serve

  # Start with custom config and debug logging
  agent serve --config /etc/steward/agent.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// buildChatCmd creates the "chat" command: an interactive stdin/stdout loop
// against a running server.
func buildChatCmd() *cobra.Command {
	var (
		serverURL string
		channelID string
		agentID   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent over a channel",
		Long: `Open (or resume) a channel on a running server, then read stdin lines and
post each as a message. Assistant deltas stream back to stdout; tool calls
and results print as [tool: ...] and [result: ...] markers. Exits 0 on EOF.`,
		Example: `  # Chat on a fresh channel
  agent chat

  # Resume a named channel against a remote server
  agent chat --channel standup --server http://10.0.0.5:8420`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), serverURL, channelID, agentID)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8420", "Server base URL")
	cmd.Flags().StringVar(&channelID, "channel", "", "Channel id to open or resume (default: a fresh one)")
	cmd.Flags().StringVar(&agentID, "agent", config.DefaultAgentID, "Agent id the channel binds to")

	return cmd
}

// buildStatusCmd creates the "status" command.
func buildStatusCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), serverURL)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8420", "Server base URL")

	return cmd
}

// buildInitCmd creates the "init" command that writes a starter agent.yaml.
func buildInitCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a template agent.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(configPath, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(),
		"Where to write the configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
