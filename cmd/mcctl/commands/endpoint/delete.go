package endpoint

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an endpoint",
	Long: `Delete an endpoint from the modelcached server.

The endpoint's loaded models are unloaded and its disk cache is removed.
Published artifacts in the remote store are not affected. You will be
prompted for confirmation unless --force is specified.

Examples:
  # Delete with confirmation
  mcctl endpoint delete prod

  # Delete without confirmation
  mcctl endpoint delete prod --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	return cmdutil.RunDeleteWithConfirmation("Endpoint", name, deleteForce, func() error {
		if err := client.DeleteEndpoint(name); err != nil {
			return fmt.Errorf("failed to delete endpoint: %w", err)
		}
		return nil
	})
}
