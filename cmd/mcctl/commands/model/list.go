package model

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	"github.com/modelcached/modelcached/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List published artifacts",
	Long: `List all model artifacts published to the remote store.

Examples:
  # List artifacts as table
  mcctl model list

  # List as JSON
  mcctl model list -o json`,
	RunE: runList,
}

// ArtifactList is a list of artifacts for table rendering.
type ArtifactList []apiclient.Artifact

// Headers implements TableRenderer.
func (al ArtifactList) Headers() []string {
	return []string{"ID", "SIZE", "CHECKSUM"}
}

// Rows implements TableRenderer.
func (al ArtifactList) Rows() [][]string {
	rows := make([][]string, 0, len(al))
	for _, a := range al {
		checksum := a.Checksum
		if len(checksum) > 16 {
			checksum = checksum[:16] + "..."
		}
		rows = append(rows, []string{
			a.ID,
			cmdutil.FormatBytes(uint64(a.Size)),
			cmdutil.EmptyOr(checksum, "-"),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	artifacts, err := client.ListModels()
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, artifacts, len(artifacts) == 0, "No artifacts published.", ArtifactList(artifacts))
}
