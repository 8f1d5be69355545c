package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentgate/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		subject  string
		email    string
		tenantID string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT for testing",
		Long:  "Signs an HS256 access token with the configured AGENTGATE_JWT_SECRET. Intended for local testing only; production tokens come from your identity provider.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("AGENTGATE_JWT_SECRET is not set")
			}

			now := time.Now()
			claims := jwt.MapClaims{
				"sub":   subject,
				"email": email,
				"iat":   now.Unix(),
				"exp":   now.Add(ttl).Unix(),
			}
			if tenantID != "" {
				claims["tid"] = tenantID
			}
			if cfg.Auth.Issuer != "" {
				claims["iss"] = cfg.Auth.Issuer
			}

			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			signed, err := token.SignedString([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Println(signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "dev-user", "subject (external user id)")
	cmd.Flags().StringVar(&email, "email", "dev@example.com", "email claim")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id claim (tid)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
