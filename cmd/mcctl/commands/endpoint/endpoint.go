// Package endpoint implements endpoint management commands for mcctl.
package endpoint

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/pkg/apiclient"
)

// Cmd is the parent command for endpoint management.
var Cmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Endpoint management",
	Long: `Manage serving endpoints on the modelcached server.

Endpoint commands allow you to create, list, update, and delete endpoints,
and inspect their cache occupancy. These operations require an access token.

Examples:
  # List all endpoints
  mcctl endpoint list

  # Create an endpoint with two model mappings
  mcctl endpoint create --name prod --memory-budget 4Gi \
    --model resnet50=sha256:abc... --model bert=sha256:def...

  # Update an endpoint's budget
  mcctl endpoint update prod --memory-budget 8Gi

  # Show cache occupancy
  mcctl endpoint stats prod

  # Delete an endpoint
  mcctl endpoint delete prod`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(updateCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(statsCmd)
}

// parseModelMappings parses repeated --model flags of the form
// "name=artifact-id" or "name=artifact-id:content-type".
func parseModelMappings(specs []string) ([]apiclient.ModelMapping, error) {
	mappings := make([]apiclient.ModelMapping, 0, len(specs))
	for _, spec := range specs {
		name, rest, ok := strings.Cut(spec, "=")
		if !ok || name == "" || rest == "" {
			return nil, fmt.Errorf("invalid model mapping %q (expected name=artifact-id[:content-type])", spec)
		}
		mapping := apiclient.ModelMapping{Name: name, ArtifactID: rest}
		// Artifact identities contain colons (e.g. sha256:...), so the
		// content type is only split off after the last colon when it
		// does not look like part of the identity.
		if idx := strings.LastIndex(rest, ":"); idx > 0 && strings.Contains(rest[idx+1:], "/") {
			mapping.ArtifactID = rest[:idx]
			mapping.ContentType = rest[idx+1:]
		}
		mappings = append(mappings, mapping)
	}
	return mappings, nil
}

// summarizeModels renders model mappings for table display.
func summarizeModels(mappings []apiclient.ModelMapping) string {
	if len(mappings) == 0 {
		return "-"
	}
	names := make([]string, 0, len(mappings))
	for _, m := range mappings {
		names = append(names, m.Name)
	}
	return strings.Join(names, ",")
}
