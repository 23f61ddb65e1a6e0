package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/stepup/internal/auth"
	"github.com/kalambet/stepup/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token for a user",
	Long: `Mint a signed access token for calling the HTTP API or the MCP tools.

Examples:
  stepup token --user user-42
  stepup token --user user-42 --scope read --ttl 10m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		scopeStr, _ := cmd.Flags().GetString("scope")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if user == "" {
			return fmt.Errorf("--user is required")
		}
		scopes, err := parseScopes(scopeStr)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		token, err := issueToken(cfg, user, scopes, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("user", "", "user ID (token subject)")
	tokenCmd.Flags().String("scope", auth.ScopeRead+","+auth.ScopeTransact, "comma-separated scopes")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}

func parseScopes(s string) ([]string, error) {
	var scopes []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch part {
		case auth.ScopeRead, auth.ScopeTransact:
			scopes = append(scopes, part)
		default:
			return nil, fmt.Errorf("unknown scope %q (want %s or %s)", part, auth.ScopeRead, auth.ScopeTransact)
		}
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	return scopes, nil
}

func issueToken(cfg config.Config, user string, scopes []string, ttl time.Duration) (string, error) {
	v, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return "", err
	}
	return v.Issue(user, scopes, ttl)
}
