// Package main provides a CLI tool for minting operator tokens for the
// compliance API. Tokens use the dev signing key unless one is supplied and
// will NOT work against a production deployment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jwttoken "compliance/internal/jwt_token"
	id "compliance/pkg/domain"
)

const (
	// Matches config.go when JWT_SIGNING_KEY is not set.
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "http://localhost:8080"
	defaultAudience = "compliance-api"
	defaultTokenTTL = 8 * time.Hour
)

type options struct {
	actorID    string
	tenantID   string
	signingKey string
	issuer     string
	audience   string
	ttl        time.Duration
	jsonOutput bool
}

type tokenOutput struct {
	Token     string            `json:"token"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]string `json:"claims"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "tokengen",
		Short: "Mint operator tokens for the compliance API",
		Long: `tokengen mints HS256 operator tokens carrying actor_id and tenant_id.

WARNING: With the default signing key these tokens only work against servers
         running with JWT_SIGNING_KEY unset (local environments).`,
		Example: `  # Token for a fresh actor in a fresh tenant
  tokengen

  # Token for a known tenant, valid for one hour
  tokengen --tenant-id 550e8400-e29b-41d4-a716-446655440000 --ttl 1h`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.actorID, "actor-id", "", "Operator ID (UUID). Generated if empty.")
	f.StringVar(&opts.tenantID, "tenant-id", "", "Tenant ID (UUID). Generated if empty.")
	f.StringVar(&opts.signingKey, "signing-key", envOr("JWT_SIGNING_KEY", devSigningKey), "HMAC signing key")
	f.StringVar(&opts.issuer, "issuer", envOr("JWT_ISSUER", defaultIssuer), "Token issuer")
	f.StringVar(&opts.audience, "audience", envOr("JWT_AUDIENCE", defaultAudience), "Token audience")
	f.DurationVar(&opts.ttl, "ttl", defaultTokenTTL, "Token time-to-live")
	f.BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func run(w io.Writer, opts *options) error {
	actorID, err := parseOrGenerate(opts.actorID, "actor-id")
	if err != nil {
		return err
	}
	tenantID, err := parseOrGenerate(opts.tenantID, "tenant-id")
	if err != nil {
		return err
	}

	svc := jwttoken.NewJWTService(opts.signingKey, opts.issuer, opts.audience, opts.ttl)
	token, err := svc.GenerateOperatorToken(context.Background(), id.ActorID(actorID), id.TenantID(tenantID))
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	keyType := "custom"
	if opts.signingKey == devSigningKey {
		keyType = "dev"
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tokenOutput{
			Token:     token,
			ExpiresIn: opts.ttl.String(),
			Claims: map[string]string{
				"actor_id":  actorID.String(),
				"tenant_id": tenantID.String(),
				"iss":       opts.issuer,
				"aud":       opts.audience,
			},
			Usage: map[string]string{
				"header":      "Authorization: Bearer <token>",
				"signing_key": keyType,
			},
		})
	}

	fmt.Fprintln(w, "Operator Token (JWT)")
	fmt.Fprintln(w, "====================")
	fmt.Fprintf(w, "Signing Key: %s\n", keyType)
	fmt.Fprintf(w, "Expires In:  %s\n", opts.ttl)
	fmt.Fprintf(w, "Actor ID:    %s\n", actorID)
	fmt.Fprintf(w, "Tenant ID:   %s\n", tenantID)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Token:")
	fmt.Fprintln(w, token)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, `  curl -H "Authorization: Bearer <token>" http://localhost:8080/dashboard`)
	return nil
}

func parseOrGenerate(input, flagName string) (uuid.UUID, error) {
	if input == "" {
		return uuid.New(), nil
	}
	parsed, err := uuid.Parse(input)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s UUID: %s", flagName, input)
	}
	return parsed, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
