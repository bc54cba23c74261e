package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lending-gateway/internal/auth"
	"lending-gateway/internal/config"
)

func newNetworkCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "network",
		Short: "Print the resolved proxy and native asset addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			network, err := config.ResolveNetwork(cfg.Network)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"mode":               network.Mode,
				"proxyAddress":       network.Proxy.Hex(),
				"nativeAssetAddress": network.NativeAsset.Hex(),
			})
		},
	}
}

func newTOTPSecretCommand() *cobra.Command {
	var issuer, account string
	cmd := &cobra.Command{
		Use:   "totp-secret",
		Short: "Generate an admin TOTP secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := auth.GenerateTOTPSecret(issuer, account)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Secret: %s\n", key.Secret())
			fmt.Fprintf(out, "URL:    %s\n", key.URL())
			fmt.Fprintln(out, "Set admin.totpSecret (or ADMIN_TOTP_SECRET) to the secret above.")
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "lending-gateway", "Issuer shown in the authenticator app")
	cmd.Flags().StringVar(&account, "account", "admin", "Account name shown in the authenticator app")
	return cmd
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return fmt.Errorf("password is empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
