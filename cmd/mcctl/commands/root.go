// Package commands implements the CLI commands for the mcctl client.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	endpointcmd "github.com/modelcached/modelcached/cmd/mcctl/commands/endpoint"
	modelcmd "github.com/modelcached/modelcached/cmd/mcctl/commands/model"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mcctl",
	Short: "modelcached control - remote management client",
	Long: `mcctl is the command-line client for managing modelcached servers.

Use this tool to publish model artifacts, manage serving endpoints, inspect
cache occupancy, and send test invocations through the REST API.

Admin commands require an access token. Mint one on the server with
'modelcached token' and export it:

  export MCCTL_TOKEN=<access token>

Use "mcctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().String("server", "", "Server URL (default: "+cmdutil.DefaultServerURL+", or "+cmdutil.EnvServer+")")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (or "+cmdutil.EnvToken+")")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(endpointcmd.Cmd)
	rootCmd.AddCommand(modelcmd.Cmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(refreshCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
