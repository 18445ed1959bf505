package endpoint

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	"github.com/modelcached/modelcached/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all endpoints",
	Long: `List all endpoints on the modelcached server.

Examples:
  # List endpoints as table
  mcctl endpoint list

  # List as JSON
  mcctl endpoint list -o json`,
	RunE: runList,
}

// EndpointList is a list of endpoints for table rendering.
type EndpointList []apiclient.Endpoint

// Headers implements TableRenderer.
func (el EndpointList) Headers() []string {
	return []string{"NAME", "MEMORY BUDGET", "DISK BUDGET", "RUNTIME", "MODELS"}
}

// Rows implements TableRenderer.
func (el EndpointList) Rows() [][]string {
	rows := make([][]string, 0, len(el))
	for _, ep := range el {
		rows = append(rows, []string{
			ep.Name,
			cmdutil.FormatBytes(ep.MemoryBudget),
			cmdutil.FormatBytes(ep.DiskBudget),
			cmdutil.EmptyOr(ep.Runtime, "-"),
			summarizeModels(ep.Models),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	endpoints, err := client.ListEndpoints()
	if err != nil {
		return fmt.Errorf("failed to list endpoints: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, endpoints, len(endpoints) == 0, "No endpoints found.", EndpointList(endpoints))
}
