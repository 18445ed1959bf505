package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	"github.com/modelcached/modelcached/internal/cli/output"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <refresh-token>",
	Short: "Exchange a refresh token for a new token pair",
	Long: `Exchange a refresh token for a new access/refresh token pair.

Examples:
  # Refresh and print the new pair
  mcctl refresh <refresh-token>

  # Machine-readable output
  mcctl refresh <refresh-token> -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	client := cmdutil.GetClient()

	pair, err := client.RefreshToken(args[0])
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, pair)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, pair)
	default:
		fmt.Printf("Access token (expires %s):\n  %s\n\n", pair.ExpiresAt.Format("2006-01-02 15:04:05"), pair.AccessToken)
		fmt.Printf("Refresh token:\n  %s\n", pair.RefreshToken)
		return nil
	}
}
