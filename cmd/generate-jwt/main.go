package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lending-gateway/internal/auth"
	"lending-gateway/internal/config"
)

func main() {
	var (
		configPath string
		admin      bool
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate-jwt <address|username>",
		Short: "Mint a test token for the lending API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			secret, role, subject := cfg.Auth.JWTSecret, auth.RoleUser, strings.ToLower(args[0])
			if admin {
				role, subject = auth.RoleAdmin, args[0]
				if cfg.Admin.JWTSecret != "" {
					secret = cfg.Admin.JWTSecret
				}
			}

			manager, err := auth.NewJWTManager(secret, ttl, cfg.Auth.Issuer, role)
			if err != nil {
				return err
			}
			token, expiresAt, err := manager.Issue(subject)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.Repeat("=", 60))
			fmt.Fprintln(out, "JWT Token Generated for Testing")
			fmt.Fprintln(out, strings.Repeat("=", 60))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Token:")
			fmt.Fprintln(out, token)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Subject: %s\nRole:    %s\nExpires: %s\n", subject, role, expiresAt.Format(time.RFC3339))
			fmt.Fprintln(out)
			fmt.Fprintf(out, "curl -H \"Authorization: Bearer %s\" http://localhost:%d/api/lending/operations\n", token, cfg.Server.Port)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().BoolVar(&admin, "admin", false, "Mint an admin token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
