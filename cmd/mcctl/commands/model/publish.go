package model

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
	pkgmodel "github.com/modelcached/modelcached/pkg/model"
)

var (
	publishFile string
	publishDir  string
)

var publishCmd = &cobra.Command{
	Use:   "publish <identity>",
	Short: "Publish a model artifact",
	Long: `Publish a model artifact to the remote store under the given identity.

The artifact comes either from a prebuilt package (--file) or from a model
directory (--dir), which is packaged before upload. A model directory must
contain code/inference.py and a model/ subdirectory with the weights.

Publishing the same identity twice is rejected; pick a new identity for a
new model version.

Examples:
  # Publish a prebuilt package
  mcctl model publish resnet50-v2 --file resnet50.tar.gz

  # Package and publish a model directory
  mcctl model publish resnet50-v2 --dir ./resnet50`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishFile, "file", "", "Prebuilt artifact package (.tar.gz)")
	publishCmd.Flags().StringVar(&publishDir, "dir", "", "Model directory to package and publish")
	publishCmd.MarkFlagsMutuallyExclusive("file", "dir")
	publishCmd.MarkFlagsOneRequired("file", "dir")
}

func runPublish(cmd *cobra.Command, args []string) error {
	identity := args[0]

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	var artifact any
	if publishDir != "" {
		pkg, err := pkgmodel.BuildPackage(publishDir)
		if err != nil {
			return fmt.Errorf("failed to package model directory: %w", err)
		}
		artifact, err = client.PublishModel(identity, bytes.NewReader(pkg))
		if err != nil {
			return fmt.Errorf("failed to publish artifact: %w", err)
		}
	} else {
		artifact, err = client.PublishModelFile(identity, publishFile)
		if err != nil {
			return fmt.Errorf("failed to publish artifact: %w", err)
		}
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, artifact, fmt.Sprintf("Artifact '%s' published successfully", identity))
}
