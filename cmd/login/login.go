package login

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/api"
	"github.com/stephnangue/chronicle/cmd/helpers"
)

var (
	flagToken        string
	flagRefreshToken string
	flagExpiresIn    int64
	flagScopes       []string

	LoginCmd = &cobra.Command{
		Use:           "login",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "This command installs a credential on the Chronicle server.",
		Long: `
Usage: chronicle login [options]

  Installs an OAuth2 credential on the Chronicle server. The server
  manages the credential lifecycle from there: it refreshes the access
  token before expiry as long as a refresh token is available, and
  reports when re-authentication is required.

  Install an access token with its refresh token:

      $ chronicle login --token="$ACCESS_TOKEN" --refresh-token="$REFRESH_TOKEN" --expires-in=3600

  Install a short-lived token without refresh:

      $ chronicle login --token="$ACCESS_TOKEN" --expires-in=900

  For more information about credential handling, please see the
  documentation.
`,
		RunE: run,
	}
)

func init() {
	LoginCmd.Flags().StringVarP(&flagToken, "token", "t", "", "The OAuth2 access token to install")
	LoginCmd.Flags().StringVarP(&flagRefreshToken, "refresh-token", "r", "", "The refresh token paired with the access token")
	LoginCmd.Flags().Int64Var(&flagExpiresIn, "expires-in", 0, "Seconds until the access token expires")
	LoginCmd.Flags().StringSliceVar(&flagScopes, "scope", nil, "Scope granted to the token, repeatable")
}

func run(cmd *cobra.Command, args []string) error {
	if flagToken == "" {
		return fmt.Errorf("access token is required. Use -t or --token flag")
	}

	// Create the client
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	// Hand the credential to the server
	status, err := c.Sys().InstallTokenWithContext(cmd.Context(), &api.TokenInstallRequest{
		AccessToken:  flagToken,
		RefreshToken: flagRefreshToken,
		ExpiresIn:    flagExpiresIn,
		Scopes:       flagScopes,
	})
	if err != nil {
		return fmt.Errorf("error installing token: %w", err)
	}

	fmt.Println("Success! Chronicle now manages this credential.")
	fmt.Println()
	helpers.PrintTokenStatus(status)

	return nil
}
