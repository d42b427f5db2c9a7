// Command claude-relay serves the Claude CLI to websocket clients.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claude-relay",
		Short: "Relay Claude CLI sessions to websocket clients",
		Long: `claude-relay runs the claude CLI on behalf of connected clients and
streams its output back to them as JSON events.

Available subcommands:
  serve       Start the websocket server
  schema      Print the JSON schema of outbound events

Examples:
  claude-relay serve --config relay.yaml
  claude-relay serve --listen :3001 --log-level debug
  claude-relay schema > events.schema.json`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSchemaCmd())

	return cmd
}
