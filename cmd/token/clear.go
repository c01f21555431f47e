package token

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
		Short:         "This command removes the credential from the server.",
		Long: `
Usage: chronicle token clear

  Removes the credential from the server and its store. Reads keep
  serving cached data, but the upstream is unreachable until a new
  credential is installed with "chronicle login".

  Remove the credential:

      $ chronicle token clear
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

	if err := c.Sys().ClearTokenWithContext(cmd.Context()); err != nil {
		return fmt.Errorf("error clearing token: %w", err)
	}

	fmt.Println("Success! The credential was removed.")
	return nil
}
