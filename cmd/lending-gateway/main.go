package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lending-gateway/internal/config"
	"lending-gateway/internal/logger"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "lending-gateway",
		Short:         "Cross-chain lending operation gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  lending-gateway serve --config config.yaml
  lending-gateway borrow --loan-token 0x... --collateral-token 0x... --oracle 0x... --irm 0x... --lltv 860000000000000000 --amount 1000000
  lending-gateway encode repay --loan-token 0x... --amount 5 --shares 3
  lending-gateway network`,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to config file (default: config.local.yaml or config.yaml)")

	cmd.AddCommand(
		newServeCommand(opts),
		newNetworkCommand(opts),
		newEncodeCommand(),
		newTOTPSecretCommand(),
		newHashPasswordCommand(),
	)
	cmd.AddCommand(newOperationCommands(opts)...)

	return cmd
}

// load reads the configuration and builds the logger it describes.
func (o *rootOptions) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("❌ Command failed")
		os.Exit(1)
	}
}
