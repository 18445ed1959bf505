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
	createName         string
	createMemoryBudget string
	createDiskBudget   string
	createRuntime      string
	createModels       []string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new endpoint",
	Long: `Create a new serving endpoint on the modelcached server.

The memory budget bounds how many loaded models the endpoint keeps resident;
the disk budget bounds its local artifact cache. Model mappings bind model
names to published artifact identities.

Examples:
  # Create an endpoint with a 4Gi memory budget
  mcctl endpoint create --name prod --memory-budget 4Gi

  # Create with model mappings and an explicit disk budget
  mcctl endpoint create --name prod --memory-budget 4Gi --disk-budget 40Gi \
    --model resnet50=sha256:abc... --model bert=sha256:def...`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "Endpoint name (required)")
	createCmd.Flags().StringVar(&createMemoryBudget, "memory-budget", "", "Memory budget, e.g. 4Gi (required)")
	createCmd.Flags().StringVar(&createDiskBudget, "disk-budget", "", "Disk cache budget, e.g. 40Gi")
	createCmd.Flags().StringVar(&createRuntime, "runtime", "", "Runtime to load models with")
	createCmd.Flags().StringArrayVar(&createModels, "model", nil, "Model mapping name=artifact-id (repeatable)")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("memory-budget")
}

func runCreate(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	memBudget, err := bytesize.Parse(createMemoryBudget)
	if err != nil {
		return fmt.Errorf("invalid memory budget: %w", err)
	}

	req := &apiclient.EndpointRequest{
		Name:         createName,
		MemoryBudget: memBudget.Bytes(),
		Runtime:      createRuntime,
	}

	if createDiskBudget != "" {
		diskBudget, err := bytesize.Parse(createDiskBudget)
		if err != nil {
			return fmt.Errorf("invalid disk budget: %w", err)
		}
		req.DiskBudget = diskBudget.Bytes()
	}

	req.Models, err = parseModelMappings(createModels)
	if err != nil {
		return err
	}

	ep, err := client.CreateEndpoint(req)
	if err != nil {
		return fmt.Errorf("failed to create endpoint: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, ep, fmt.Sprintf("Endpoint '%s' created successfully", ep.Name))
}
