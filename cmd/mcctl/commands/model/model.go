// Package model implements model artifact commands for mcctl.
package model

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for model artifact management.
var Cmd = &cobra.Command{
	Use:   "model",
	Short: "Model artifact management",
	Long: `Manage model artifacts in the remote store.

Model commands publish packaged artifacts and list what has been published.
These operations require an access token.

Examples:
  # Publish a packaged artifact
  mcctl model publish resnet50-v2 --file resnet50.tar.gz

  # Package a model directory and publish it
  mcctl model publish resnet50-v2 --dir ./resnet50

  # List published artifacts
  mcctl model list`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(publishCmd)
}
