package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	"github.com/modelcached/modelcached/pkg/apiclient"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache occupancy for all endpoints",
	Long: `Show memory pool and disk cache occupancy for every live endpoint.

Examples:
  # Show stats as table
  mcctl stats

  # Show stats as JSON
  mcctl stats -o json`,
	RunE: runStats,
}

// StatsList is a list of endpoint stats for table rendering.
type StatsList []apiclient.EndpointStats

// Headers implements TableRenderer.
func (sl StatsList) Headers() []string {
	return []string{"ENDPOINT", "POOL", "POOL BYTES", "MEMORY BUDGET", "DISK", "DISK BYTES", "DISK BUDGET"}
}

// Rows implements TableRenderer.
func (sl StatsList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		rows = append(rows, []string{
			s.Endpoint,
			strconv.Itoa(s.PoolResident),
			cmdutil.FormatBytes(s.PoolBytes),
			cmdutil.FormatBytes(s.MemoryBudget),
			strconv.Itoa(s.DiskEntries),
			cmdutil.FormatBytes(s.DiskBytes),
			cmdutil.FormatBytes(s.DiskBudget),
		})
	}
	return rows
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	stats, err := client.ListStats()
	if err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, stats, len(stats) == 0, "No live endpoints.", StatsList(stats))
}
