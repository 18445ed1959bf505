package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/pkg/api"
	"github.com/modelcached/modelcached/pkg/api/auth"
	"github.com/modelcached/modelcached/pkg/config"
)

var (
	tokenSubject string
	tokenJSON    bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin token pair",
	Long: `Mint an access/refresh token pair for the admin API.

There is no user store: admin tokens are minted server-side with the
configured JWT secret and handed to operators or automation. The access
token authorizes admin requests; the refresh token can be exchanged for a
new pair via POST /v1/auth/refresh.

Examples:
  # Mint a token pair for the default subject
  modelcached token

  # Name the operator or automation the token is for
  modelcached token --subject ci-deployer

  # Machine-readable output
  modelcached token --json`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Subject the token pair is minted for")
	tokenCmd.Flags().BoolVar(&tokenJSON, "json", false, "Output the token pair as JSON")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	secret := cfg.API.GetJWTSecret()
	if secret == "" {
		return fmt.Errorf("no JWT secret configured (set %s or run 'modelcached init')", api.EnvAdminSecret)
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               secret,
		Issuer:               cfg.API.JWT.Issuer,
		AccessTokenDuration:  cfg.API.JWT.AccessTokenDuration,
		RefreshTokenDuration: cfg.API.JWT.RefreshTokenDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to create JWT service: %w", err)
	}

	pair, err := jwtService.GenerateTokenPair(tokenSubject)
	if err != nil {
		return fmt.Errorf("failed to generate tokens: %w", err)
	}

	if tokenJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pair)
	}

	fmt.Printf("Access token (expires %s):\n  %s\n\n", pair.ExpiresAt.Format("2006-01-02 15:04:05"), pair.AccessToken)
	fmt.Printf("Refresh token:\n  %s\n\n", pair.RefreshToken)
	fmt.Println("Use with mcctl:")
	fmt.Println("  export MCCTL_TOKEN=<access token>")

	return nil
}
