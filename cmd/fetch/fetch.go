package fetch

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/api"
	"github.com/stephnangue/chronicle/cmd/helpers"
)

var (
	fetchWindow     int
	fetchForce      bool
	fetchMaxResults int
	fetchPageToken  string
	fetchFormat     string

	FetchCmd = &cobra.Command{
		Use:           "fetch <resource>",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "This command reads the upcoming events of a resource.",
		Long: `
Usage: chronicle fetch <resource> [options]

  Reads the upcoming window of events for a resource through the
  Chronicle server. Answers come from the window cache when it is
  fresh; otherwise the server fetches from the upstream and falls
  back to stale data when the upstream is unreachable.

  Read the default window of the primary calendar:

      $ chronicle fetch calendar

  Read two weeks, bypassing the caches:

      $ chronicle fetch calendar --window=14 --force

  Read one page directly from the upstream:

      $ chronicle fetch calendar --max-results=50

  Continue a paging run:

      $ chronicle fetch calendar --max-results=50 --page-token="$TOKEN"
`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}
)

func init() {
	FetchCmd.Flags().IntVarP(&fetchWindow, "window", "w", 0, "Window length in days (server default when unset)")
	FetchCmd.Flags().BoolVarP(&fetchForce, "force", "f", false, "Bypass the caches and read the upstream directly")
	FetchCmd.Flags().IntVar(&fetchMaxResults, "max-results", 0, "Page size for a direct page read")
	FetchCmd.Flags().StringVar(&fetchPageToken, "page-token", "", "Continue a paging run from this token")
	FetchCmd.Flags().StringVar(&fetchFormat, "format", "table", "Output format (table or json)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	resource := args[0]

	// Create the client
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	// A paging flag switches to the page endpoint, which bypasses the
	// window cache entirely.
	if fetchMaxResults > 0 || fetchPageToken != "" {
		return runPage(cmd, c, resource)
	}

	resp, err := c.EventsWithContext(cmd.Context(), resource, &api.EventsOptions{
		WindowDays: fetchWindow,
		Force:      fetchForce,
	})
	if err != nil {
		return fmt.Errorf("error fetching events: %w", err)
	}

	if fetchFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Degraded {
		fmt.Println("WARNING! The upstream is unreachable, this data may be out of date.")
		fmt.Println()
	}

	fmt.Printf("Found %d event(s) in the next %d day(s) (source: %s):\n\n", resp.Count, resp.WindowDays, resp.Source)
	printEvents(resp.Items)

	return nil
}

func runPage(cmd *cobra.Command, c *api.Client, resource string) error {
	resp, err := c.EventsPageWithContext(cmd.Context(), resource, &api.EventsPageOptions{
		WindowDays: fetchWindow,
		MaxResults: fetchMaxResults,
		PageToken:  fetchPageToken,
	})
	if err != nil {
		return fmt.Errorf("error fetching page: %w", err)
	}

	if fetchFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Printf("Found %d event(s):\n\n", resp.Count)
	printEvents(resp.Items)

	if resp.HasMore {
		fmt.Println()
		fmt.Printf("More events are available. Continue with --page-token=%s\n", resp.NextPageToken)
	}

	return nil
}

// printEvents prints events in the order the server returned them
func printEvents(items []api.Event) {
	headers := []string{"Start", "End", "Summary", "Location", "Status"}
	data := make([][]any, 0, len(items))
	for i := 0; i < len(items); i++ {
		ev := items[i]
		data = append(data, []any{
			formatEventStart(ev),
			formatEventEnd(ev),
			ev.Summary,
			orNA(ev.Location),
			orNA(ev.Status),
		})
	}
	helpers.PrintTable(headers, data)
}

// formatEventStart renders the start of an event. All-day events show
// the date alone.
func formatEventStart(ev api.Event) string {
	if ev.AllDay {
		return ev.Start.Format("2006-01-02") + " (all day)"
	}
	return helpers.FormatTime(ev.Start)
}

func formatEventEnd(ev api.Event) string {
	if ev.AllDay {
		return ev.End.Format("2006-01-02")
	}
	return helpers.FormatTime(ev.End)
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
