package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stephnangue/chronicle/api"
	cachecmd "github.com/stephnangue/chronicle/cmd/cache"
	"github.com/stephnangue/chronicle/cmd/fetch"
	"github.com/stephnangue/chronicle/cmd/login"
	"github.com/stephnangue/chronicle/cmd/server"
	"github.com/stephnangue/chronicle/cmd/status"
	"github.com/stephnangue/chronicle/cmd/token"
)

var (
	// Global flag for the server address
	flagAddress string

	chronicleCmd = &cobra.Command{
		Use:   "chronicle",
		Short: "Chronicle is a resilient access layer for remote calendar data",
		Long: `Chronicle keeps remote calendar data reachable when the network is not.
It fronts an upstream events API with a time-windowed cache, manages the
OAuth2 credential lifecycle transparently, and serves cached data instead
of failing when the upstream or the connection goes away.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Set the address in the environment if provided via flag
			if flagAddress != "" {
				os.Setenv(api.EnvChronicleAddress, flagAddress)
			}
		},
	}
)

func Execute() {
	// Interrupt signals flow to commands through the context, so the
	// server can drain before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := chronicleCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Add global address flag to the root command
	chronicleCmd.PersistentFlags().StringVarP(&flagAddress, "address", "a", "", "Address of the Chronicle server (can also use CHRONICLE_ADDR env var)")

	chronicleCmd.AddCommand(server.ServerCmd)
	chronicleCmd.AddCommand(login.LoginCmd)
	chronicleCmd.AddCommand(status.StatusCmd)
	chronicleCmd.AddCommand(fetch.FetchCmd)
	chronicleCmd.AddCommand(cachecmd.CacheCmd)
	chronicleCmd.AddCommand(token.TokenCmd)
}

// Address returns the currently configured server address from the flag
func Address() string {
	return flagAddress
}
