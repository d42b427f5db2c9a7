package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claude-relay/relay"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of events sent to clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := json.MarshalIndent(relay.EventSchema(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal schema: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
