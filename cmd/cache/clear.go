package cache

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/cmd/helpers"
)

var (
	ClearCmd = &cobra.Command{
		Use:           "clear",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "This command drops every cached window.",
		Long: `
Usage: chronicle cache clear

  Drops every entry from the server's window cache. The next read of
  each resource goes to the upstream.

  Clear the cache:

      $ chronicle cache clear
`,
		RunE: runClear,
	}
)

func runClear(cmd *cobra.Command, args []string) error {
	// Create the client
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	cleared, err := c.Sys().CacheClearWithContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	fmt.Printf("Success! Dropped %d cached window(s).\n", cleared)
	return nil
}
