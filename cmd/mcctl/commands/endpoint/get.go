package endpoint

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	"github.com/modelcached/modelcached/internal/cli/output"
	"github.com/modelcached/modelcached/pkg/apiclient"
)

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show an endpoint",
	Long: `Show a single endpoint's configuration.

Examples:
  # Show an endpoint
  mcctl endpoint get prod

  # Show as YAML
  mcctl endpoint get prod -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

// endpointDetail renders a single endpoint as a key-value table.
type endpointDetail struct {
	ep *apiclient.Endpoint
}

// Headers implements TableRenderer.
func (d endpointDetail) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

// Rows implements TableRenderer.
func (d endpointDetail) Rows() [][]string {
	rows := [][]string{
		{"Name", d.ep.Name},
		{"Memory budget", cmdutil.FormatBytes(d.ep.MemoryBudget)},
		{"Disk budget", cmdutil.FormatBytes(d.ep.DiskBudget)},
		{"Runtime", cmdutil.EmptyOr(d.ep.Runtime, "-")},
	}
	for _, m := range d.ep.Models {
		rows = append(rows, []string{"Model " + m.Name, m.ArtifactID})
	}
	return rows
}

var _ output.TableRenderer = endpointDetail{}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	ep, err := client.GetEndpoint(args[0])
	if err != nil {
		return fmt.Errorf("failed to get endpoint: %w", err)
	}

	return cmdutil.PrintResource(os.Stdout, ep, endpointDetail{ep: ep})
}
