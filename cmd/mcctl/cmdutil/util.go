// Package cmdutil provides shared utilities for mcctl commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"

	"github.com/modelcached/modelcached/internal/bytesize"
	"github.com/modelcached/modelcached/internal/cli/output"
	"github.com/modelcached/modelcached/internal/cli/prompt"
	"github.com/modelcached/modelcached/pkg/apiclient"
)

// Environment variables consulted when the corresponding flag is unset.
const (
	EnvServer = "MCCTL_SERVER"
	EnvToken  = "MCCTL_TOKEN"
)

// DefaultServerURL is used when neither the --server flag nor MCCTL_SERVER is set.
const DefaultServerURL = "http://localhost:8080"

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Token     string
	Output    string
}

// ServerURL resolves the server URL from flags, environment, or the default.
func ServerURL() string {
	if Flags.ServerURL != "" {
		return Flags.ServerURL
	}
	if url := os.Getenv(EnvServer); url != "" {
		return url
	}
	return DefaultServerURL
}

// Token resolves the bearer token from flags or environment.
func Token() string {
	if Flags.Token != "" {
		return Flags.Token
	}
	return os.Getenv(EnvToken)
}

// GetClient returns an API client for the resolved server URL. The bearer
// token is attached when available; unauthenticated commands work without one.
func GetClient() *apiclient.Client {
	client := apiclient.New(ServerURL())
	if tok := Token(); tok != "" {
		client.SetToken(tok)
	}
	return client
}

// GetAuthenticatedClient returns an API client and fails early when no token
// is configured, so admin commands produce a useful error instead of a 401.
func GetAuthenticatedClient() (*apiclient.Client, error) {
	tok := Token()
	if tok == "" {
		return nil, fmt.Errorf("no access token configured: mint one with 'modelcached token' and set %s or --token", EnvToken)
	}
	return apiclient.New(ServerURL()).WithToken(tok), nil
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the specified format (JSON, YAML, or table).
// For table format, it displays emptyMsg if data is empty, otherwise uses the tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintResource prints a resource in the specified format.
// For table format, it uses the provided tableRenderer. For JSON/YAML, it outputs the resource.
func PrintResource(w io.Writer, data any, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintResourceWithSuccess prints a resource in the specified format.
// For table format, it displays a success message. For JSON/YAML, it outputs the resource.
func PrintResourceWithSuccess(w io.Writer, data any, successMsg string) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		_, _ = fmt.Fprintln(w, successMsg)
		return nil
	}
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	fmt.Println(msg)
}

// RunDeleteWithConfirmation prompts for confirmation (unless force is true) and runs deleteFn.
func RunDeleteWithConfirmation(resourceType, name string, force bool, deleteFn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete %s '%s'?", resourceType, name), force)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	if err := deleteFn(); err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("%s '%s' deleted successfully", resourceType, name))
	return nil
}

// HandleAbort checks if error is an abort (Ctrl+C) and prints a message.
// Returns nil for abort (user cancelled), otherwise returns the original error.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// FormatBytes renders a byte count in human-readable form for table output.
func FormatBytes(n uint64) string {
	return bytesize.ByteSize(n).String()
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
// Useful for table display where empty fields should show "-".
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
