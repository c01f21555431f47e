package token

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/cmd/helpers"
)

var (
	statusFormat string

	StatusCmd = &cobra.Command{
		Use:           "status",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "This command prints the credential lifecycle status.",
		Long: `
Usage: chronicle token status [options]

  Prints the lifecycle status of the credential the server holds: its
  state, expiry, refresh history and the last refresh error if any.
  The access token itself is never returned, only its hash.

  Show the credential status:

      $ chronicle token status

  Output in JSON format:

      $ chronicle token status --format=json
`,
		RunE: runStatus,
	}
)

func init() {
	StatusCmd.Flags().StringVar(&statusFormat, "format", "table", "Output format (table or json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Create the client
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	status, err := c.Sys().TokenStatusWithContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("error reading token status: %w", err)
	}

	if statusFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	helpers.PrintTokenStatus(status)
	return nil
}
