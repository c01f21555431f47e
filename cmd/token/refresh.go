package token

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/cmd/helpers"
)

var (
	RefreshCmd = &cobra.Command{
		Use:           "refresh",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "This command forces a credential refresh now.",
		Long: `
Usage: chronicle token refresh

  Forces the server to exchange its refresh token for a new access
  token immediately, without waiting for the expiry buffer. Fails when
  no refresh token is available; in that case install a new credential
  with "chronicle login".

  Force a refresh:

      $ chronicle token refresh
`,
		RunE: runRefresh,
	}
)

func runRefresh(cmd *cobra.Command, args []string) error {
	// Create the client
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	status, err := c.Sys().RefreshTokenWithContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("error refreshing token: %w", err)
	}

	fmt.Println("Success! The credential was refreshed.")
	fmt.Println()
	helpers.PrintTokenStatus(status)

	return nil
}
