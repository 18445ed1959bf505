package endpoint

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	"github.com/modelcached/modelcached/internal/bytesize"
	"github.com/modelcached/modelcached/pkg/apiclient"
)

var (
	updateMemoryBudget string
	updateDiskBudget   string
	updateRuntime      string
	updateModels       []string
)

var updateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update an endpoint",
	Long: `Update an existing endpoint.

Fields not specified keep their current values. Passing --model replaces the
full set of model mappings; mappings removed from the set are unloaded.

Examples:
  # Grow the memory budget
  mcctl endpoint update prod --memory-budget 8Gi

  # Replace the model set
  mcctl endpoint update prod --model resnet50=sha256:abc... --model vit=sha256:012...`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateMemoryBudget, "memory-budget", "", "Memory budget, e.g. 4Gi")
	updateCmd.Flags().StringVar(&updateDiskBudget, "disk-budget", "", "Disk cache budget, e.g. 40Gi")
	updateCmd.Flags().StringVar(&updateRuntime, "runtime", "", "Runtime to load models with")
	updateCmd.Flags().StringArrayVar(&updateModels, "model", nil, "Model mapping name=artifact-id (repeatable, replaces existing set)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	// Start from the current definition so unspecified fields are kept.
	current, err := client.GetEndpoint(name)
	if err != nil {
		return fmt.Errorf("failed to get endpoint: %w", err)
	}

	req := &apiclient.EndpointRequest{
		Name:         current.Name,
		MemoryBudget: current.MemoryBudget,
		DiskBudget:   current.DiskBudget,
		Runtime:      current.Runtime,
		Models:       current.Models,
	}

	if updateMemoryBudget != "" {
		budget, err := bytesize.Parse(updateMemoryBudget)
		if err != nil {
			return fmt.Errorf("invalid memory budget: %w", err)
		}
		req.MemoryBudget = budget.Bytes()
	}
	if updateDiskBudget != "" {
		budget, err := bytesize.Parse(updateDiskBudget)
		if err != nil {
			return fmt.Errorf("invalid disk budget: %w", err)
		}
		req.DiskBudget = budget.Bytes()
	}
	if updateRuntime != "" {
		req.Runtime = updateRuntime
	}
	if cmd.Flags().Changed("model") {
		req.Models, err = parseModelMappings(updateModels)
		if err != nil {
			return err
		}
	}

	ep, err := client.UpdateEndpoint(name, req)
	if err != nil {
		return fmt.Errorf("failed to update endpoint: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, ep, fmt.Sprintf("Endpoint '%s' updated successfully", ep.Name))
}
