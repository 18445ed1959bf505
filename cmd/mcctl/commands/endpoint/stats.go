package endpoint

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	"github.com/modelcached/modelcached/pkg/apiclient"
)

var statsCmd = &cobra.Command{
	Use:   "stats <name>",
	Short: "Show cache occupancy for an endpoint",
	Long: `Show memory pool and disk cache occupancy for one endpoint.

Examples:
  # Show occupancy as table
  mcctl endpoint stats prod

  # Show as JSON
  mcctl endpoint stats prod -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runEndpointStats,
}

// statsDetail renders endpoint stats as a key-value table.
type statsDetail struct {
	stats *apiclient.EndpointStats
}

// Headers implements TableRenderer.
func (d statsDetail) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

// Rows implements TableRenderer.
func (d statsDetail) Rows() [][]string {
	s := d.stats
	return [][]string{
		{"Endpoint", s.Endpoint},
		{"Pool resident models", strconv.Itoa(s.PoolResident)},
		{"Pool bytes", cmdutil.FormatBytes(s.PoolBytes)},
		{"Memory budget", cmdutil.FormatBytes(s.MemoryBudget)},
		{"Disk entries", strconv.Itoa(s.DiskEntries)},
		{"Disk bytes", cmdutil.FormatBytes(s.DiskBytes)},
		{"Disk budget", cmdutil.FormatBytes(s.DiskBudget)},
		{"Model mappings", strconv.Itoa(s.ModelMappings)},
	}
}

func runEndpointStats(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	stats, err := client.GetEndpointStats(args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch endpoint stats: %w", err)
	}

	return cmdutil.PrintResource(os.Stdout, stats, statsDetail{stats: stats})
}
