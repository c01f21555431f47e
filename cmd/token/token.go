package token

import "github.com/spf13/cobra"

var (
	TokenCmd = &cobra.Command{
		Use:   "token",
		Short: "This command groups subcommands for managing the server's credential.",
		Long: `
Usage: chronicle token <subcommand> [options]

  This command groups subcommands for managing the credential the
  Chronicle server uses against the upstream. The server refreshes the
  credential on its own; these commands inspect it and intervene when
  the automatic lifecycle cannot recover.

  Show the credential status:

      $ chronicle token status

  Force a refresh now:

      $ chronicle token refresh

  Remove the credential:

      $ chronicle token clear

  Please see the individual subcommand help for detailed usage information.
`,
	}
)

func init() {
	TokenCmd.AddCommand(StatusCmd)
	TokenCmd.AddCommand(RefreshCmd)
	TokenCmd.AddCommand(ClearCmd)
}
