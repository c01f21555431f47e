package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/cmd/helpers"
)

var (
	statsFormat string

	StatsCmd = &cobra.Command{
		Use:           "stats",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "This command prints the window cache counters.",
		Long: `
Usage: chronicle cache stats [options]

  Prints entry counts and hit counters for the server's window cache.

  Show cache counters:

      $ chronicle cache stats

  Output in JSON format:

      $ chronicle cache stats --format=json
`,
		RunE: runStats,
	}
)

func init() {
	StatsCmd.Flags().StringVar(&statsFormat, "format", "table", "Output format (table or json)")
}

func runStats(cmd *cobra.Command, args []string) error {
	// Create the client
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	resp, err := c.Sys().CacheStatsWithContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("error reading cache stats: %w", err)
	}

	if statsFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Printf("%s\n\n", resp.Summary)

	stats := resp.Stats
	headers := []string{"Key", "Value"}
	data := make([][]any, 0, 11)
	data = append(data, []any{"total", stats.Total})
	data = append(data, []any{"fresh", stats.Fresh})
	data = append(data, []any{"stale", stats.Stale})
	data = append(data, []any{"capacity", stats.Capacity})
	data = append(data, []any{"hits", stats.Hits})
	data = append(data, []any{"stale_hits", stats.StaleHits})
	data = append(data, []any{"misses", stats.Misses})
	data = append(data, []any{"puts", stats.Puts})
	data = append(data, []any{"evictions", stats.Evictions})
	data = append(data, []any{"expirations", stats.Expirations})

	// Priorities in a stable order
	priorities := make([]string, 0, len(stats.ByPriority))
	for p := range stats.ByPriority {
		priorities = append(priorities, p)
	}
	sort.Strings(priorities)
	for _, p := range priorities {
		data = append(data, []any{fmt.Sprintf("priority %s", p), stats.ByPriority[p]})
	}

	helpers.PrintTable(headers, data)
	return nil
}
