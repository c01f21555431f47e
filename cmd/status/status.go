package status

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
		Short:         "This command prints the health of the Chronicle server.",
		Long: `
Usage: chronicle status [options]

  Prints the current health of the Chronicle server: whether reads can
  be served, the credential state, and how many windows are cached.

  Print the server status:

      $ chronicle status

  Output in JSON format:

      $ chronicle status --format=json
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

	health, err := c.Sys().HealthWithContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("error reading server status: %w", err)
	}

	if statusFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(health)
	}

	headers := []string{"Key", "Value"}
	data := make([][]any, 0, 4)
	data = append(data, []any{"status", health.Status})
	data = append(data, []any{"token_state", health.TokenState})
	data = append(data, []any{"token_usable", health.TokenUsable})
	data = append(data, []any{"cache_entries", health.CacheEntries})
	helpers.PrintTable(headers, data)

	return nil
}
