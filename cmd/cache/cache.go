package cache

import "github.com/spf13/cobra"

var (
	CacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "This command groups subcommands for inspecting Chronicle's window cache.",
		Long: `
Usage: chronicle cache <subcommand> [options]

  This command groups subcommands for inspecting and controlling the
  server's window cache. The cache holds one entry per resource and
  window length; entries age from fresh to stale to expired.

  Show cache counters:

      $ chronicle cache stats

  List every cached window:

      $ chronicle cache entries

  Drop every entry:

      $ chronicle cache clear

  Drop the entries of one resource:

      $ chronicle cache invalidate calendar

  Please see the individual subcommand help for detailed usage information.
`,
	}
)

func init() {
	CacheCmd.AddCommand(StatsCmd)
	CacheCmd.AddCommand(EntriesCmd)
	CacheCmd.AddCommand(ClearCmd)
	CacheCmd.AddCommand(InvalidateCmd)
}
