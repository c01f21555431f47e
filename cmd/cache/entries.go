package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/cmd/helpers"
	"github.com/stephnangue/chronicle/helper"
)

var (
	entriesFormat string

	EntriesCmd = &cobra.Command{
		Use:           "entries",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "This command lists every cached window.",
		Long: `
Usage: chronicle cache entries [options]

  Lists every cached window with its freshness and expiry times.

  List all cached windows:

      $ chronicle cache entries

  Output in JSON format:

      $ chronicle cache entries --format=json
`,
		RunE: runEntries,
	}
)

func init() {
	EntriesCmd.Flags().StringVar(&entriesFormat, "format", "table", "Output format (table or json)")
}

func runEntries(cmd *cobra.Command, args []string) error {
	// Create the client
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	resp, err := c.Sys().CacheEntriesWithContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("error listing cache entries: %w", err)
	}

	if entriesFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Entries) == 0 {
		fmt.Println("The cache is empty.")
		return nil
	}

	fmt.Printf("Found %d cached window(s):\n\n", len(resp.Entries))

	headers := []string{"Key", "Events", "Priority", "Freshness", "Fetched At", "Stale At", "TTL"}
	data := make([][]any, 0, len(resp.Entries))
	for i := 0; i < len(resp.Entries); i++ {
		entry := resp.Entries[i]
		data = append(data, []any{
			entry.Key,
			entry.Count,
			entry.Priority,
			entry.Freshness,
			helpers.FormatTime(entry.FetchedAt),
			helpers.FormatTime(entry.StaleAt),
			helper.FormatTTL(time.Until(entry.ExpiresAt)),
		})
	}

	helpers.PrintTable(headers, data)
	return nil
}
