package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all client commands.
type GlobalFlags struct {
	APIUrl     string
	APITimeout int // seconds
	Token      string
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "rigctl",
		Short: "rigctl coordinates lab experiment setups",
		Long: `rigctl is the control plane for behavioral experiment setups.

It tracks the status of every setup, validates status transitions,
ingests heartbeats from running experiments, and serves windowed
behavioral activity summaries.

Examples:
  rigctl serve config.toml              # Start the coordination server
  rigctl status                         # List all setups
  rigctl status rig01                   # Show one setup
  rigctl update rig01 --status running  # Request a transition
  rigctl activity rig01 --window 60     # Last 60s of behavioral events`,
	}

	root.PersistentFlags().StringVar(&globalFlags.APIUrl, "api-url", "", "server API URL (default http://127.0.0.1:8080/api)")
	root.PersistentFlags().IntVar(&globalFlags.APITimeout, "api-timeout", 10, "API request timeout in seconds")
	root.PersistentFlags().StringVar(&globalFlags.Token, "token", "", "bearer token from 'rigctl login'")

	root.AddCommand(
		createServeCommand(),
		createLoginCommand(globalFlags),
		createStatusCommand(globalFlags),
		createUpdateCommand(globalFlags),
		createBulkCommand(globalFlags),
		createHeartbeatCommand(globalFlags),
		createFaultCommand(globalFlags),
		createActivityCommand(globalFlags),
		createRebootCommand(globalFlags),
		createTaskCommand(globalFlags),
		createUserCommand(globalFlags),
	)

	return root
}
