package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/cmd/mcctl/cmdutil"
)

var (
	invokeModel       string
	invokeData        string
	invokeFile        string
	invokeContentType string
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <endpoint>",
	Short: "Send a test invocation to an endpoint",
	Long: `Send a payload to a model on the given endpoint and print the raw output.

The payload comes from --data, --file, or stdin. This route is unauthenticated
on the server side; no token is required.

Examples:
  # Invoke with an inline payload
  mcctl invoke prod --model resnet50 --data '{"inputs": [1, 2, 3]}'

  # Invoke with a payload file
  mcctl invoke prod --model resnet50 --file input.json

  # Invoke with stdin
  cat input.json | mcctl invoke prod --model resnet50`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeModel, "model", "", "Target model name (required)")
	invokeCmd.Flags().StringVar(&invokeData, "data", "", "Inline request payload")
	invokeCmd.Flags().StringVar(&invokeFile, "file", "", "Read request payload from file")
	invokeCmd.Flags().StringVar(&invokeContentType, "content-type", "application/json", "Payload content type")
	_ = invokeCmd.MarkFlagRequired("model")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	endpoint := args[0]

	var payload []byte
	var err error
	switch {
	case invokeData != "" && invokeFile != "":
		return fmt.Errorf("--data and --file are mutually exclusive")
	case invokeData != "":
		payload = []byte(invokeData)
	case invokeFile != "":
		payload, err = os.ReadFile(invokeFile)
		if err != nil {
			return fmt.Errorf("failed to read payload file: %w", err)
		}
	default:
		payload, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read payload from stdin: %w", err)
		}
	}

	client := cmdutil.GetClient()
	out, err := client.Invoke(endpoint, invokeModel, invokeContentType, payload)
	if err != nil {
		return fmt.Errorf("invocation failed: %w", err)
	}

	_, err = os.Stdout.Write(out)
	return err
}
