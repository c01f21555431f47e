package cache

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/cmd/helpers"
)

var (
	InvalidateCmd = &cobra.Command{
		Use:           "invalidate <resource>",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "This command drops the cached windows of one resource.",
		Long: `
Usage: chronicle cache invalidate <resource>

  Drops every cached window of one resource, across all window
  lengths. Other resources keep their entries.

  Invalidate the primary calendar:

      $ chronicle cache invalidate calendar
`,
		Args: cobra.ExactArgs(1),
		RunE: runInvalidate,
	}
)

func runInvalidate(cmd *cobra.Command, args []string) error {
	resource := args[0]

	// Create the client
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	invalidated, err := c.Sys().CacheInvalidateWithContext(cmd.Context(), resource)
	if err != nil {
		return fmt.Errorf("error invalidating cache: %w", err)
	}

	fmt.Printf("Success! Dropped %d cached window(s) of %q.\n", invalidated, resource)
	return nil
}
