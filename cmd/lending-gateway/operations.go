package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"lending-gateway/internal/app"
	"lending-gateway/internal/lending"
	"lending-gateway/internal/services"
	"lending-gateway/internal/utils"
)

// operationFlags is the union of every operation's arguments.
type operationFlags struct {
	token, vault                            string
	loanToken, collateralToken, oracle, irm string
	lltv, amount, amountLoan, shares        string
}

type operationDef struct {
	name   string
	use    string
	short  string
	market bool
	token  bool
	vault  bool
	loan   bool // takes --amount-loan
	shares bool
}

var operationDefs = []operationDef{
	{name: services.OpDeposit, use: "deposit", short: "Supply an asset into a vault", token: true, vault: true},
	{name: services.OpRedeem, use: "redeem", short: "Redeem vault shares", vault: true},
	{name: services.OpBorrow, use: "borrow", short: "Borrow the market's loan token", market: true},
	{name: services.OpSupplyCollateral, use: "supply-collateral", short: "Post collateral to a market", market: true},
	{name: services.OpSupplyCollateralAndBorrow, use: "supply-collateral-and-borrow", short: "Post collateral and borrow in one message", market: true, loan: true},
	{name: services.OpRepay, use: "repay", short: "Repay a loan by amount or shares", market: true, shares: true},
	{name: services.OpWithdrawCollateral, use: "withdraw-collateral", short: "Withdraw collateral from a market", market: true},
	{name: services.OpRepayAndWithdrawCollateral, use: "repay-and-withdraw-collateral", short: "Repay and withdraw collateral in one message", market: true, loan: true, shares: true},
}

func (s operationDef) bind(cmd *cobra.Command, f *operationFlags) {
	flags := cmd.Flags()
	if s.token {
		flags.StringVar(&f.token, "token", "", "EVM token address to supply")
		_ = cmd.MarkFlagRequired("token")
	}
	if s.vault {
		flags.StringVar(&f.vault, "vault", "", "Vault address")
		_ = cmd.MarkFlagRequired("vault")
	}
	if s.market {
		flags.StringVar(&f.loanToken, "loan-token", "", "Market loan token")
		flags.StringVar(&f.collateralToken, "collateral-token", "", "Market collateral token")
		flags.StringVar(&f.oracle, "oracle", "", "Market oracle")
		flags.StringVar(&f.irm, "irm", "", "Market interest rate model")
		flags.StringVar(&f.lltv, "lltv", "", "Market liquidation LTV (1e18 scale)")
		for _, name := range []string{"loan-token", "collateral-token", "oracle", "irm", "lltv"} {
			_ = cmd.MarkFlagRequired(name)
		}
	}
	flags.StringVar(&f.amount, "amount", "", "Amount in base units")
	_ = cmd.MarkFlagRequired("amount")
	if s.loan {
		flags.StringVar(&f.amountLoan, "amount-loan", "", "Second amount in base units")
		_ = cmd.MarkFlagRequired("amount-loan")
	}
	if s.shares {
		flags.StringVar(&f.shares, "shares", "", "Repay by shares instead of amount")
	}
}

// request converts the flags into an operation request
func (s operationDef) request(f *operationFlags) (services.OperationRequest, error) {
	req := services.OperationRequest{Operation: s.name, Requester: "cli"}

	var errs []error
	addr := func(flag, value string) common.Address {
		a, err := utils.ParseAddress(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", flag, err))
		}
		return a
	}
	amount := func(flag, value string, optional bool) *big.Int {
		parse := utils.ParseAmount
		if optional {
			parse = utils.ParseOptionalAmount
		}
		v, err := parse(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", flag, err))
		}
		return v
	}

	if s.token {
		req.Token = addr("token", f.token)
	}
	if s.vault {
		req.Vault = addr("vault", f.vault)
	}
	if s.market {
		req.Market = lending.MarketParams{
			LoanToken:       addr("loan-token", f.loanToken),
			CollateralToken: addr("collateral-token", f.collateralToken),
			Oracle:          addr("oracle", f.oracle),
			Irm:             addr("irm", f.irm),
			Lltv:            amount("lltv", f.lltv, false),
		}
	}
	req.Amount = amount("amount", f.amount, false)
	if s.loan {
		req.AmountLoan = amount("amount-loan", f.amountLoan, false)
	}
	if s.shares {
		req.Shares = amount("shares", f.shares, true)
	}
	return req, errors.Join(errs...)
}

// newOperationCommands one submitting subcommand per lending operation
func newOperationCommands(opts *rootOptions) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(operationDefs))
	for _, def := range operationDefs {
		def := def
		f := &operationFlags{}
		var timeout time.Duration

		cmd := &cobra.Command{
			Use:   def.use,
			Short: def.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				req, err := def.request(f)
				if err != nil {
					return err
				}

				cfg, log, err := opts.load()
				if err != nil {
					return err
				}
				container, err := app.NewDispatcherContainer(cfg, log)
				if err != nil {
					return err
				}
				defer container.Close()

				ctx, cancel := commandContext(cmd.Context(), timeout)
				defer cancel()

				linker, err := services.Dispatch(ctx, container.Dispatcher, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), linker)
			},
		}
		def.bind(cmd, f)
		cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
		cmds = append(cmds, cmd)
	}
	return cmds
}

// newEncodeCommand prints payloads without touching the network
func newEncodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the ABI payload of an operation without submitting it",
	}
	for _, def := range operationDefs {
		def := def
		f := &operationFlags{}
		sub := &cobra.Command{
			Use:   def.use,
			Short: "Encode " + def.use,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				req, err := def.request(f)
				if err != nil {
					return err
				}
				method, encoded, err := services.Encode(req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"methodName":        method,
					"encodedParameters": hexutil.Encode(encoded),
				})
			},
		}
		def.bind(sub, f)
		cmd.AddCommand(sub)
	}
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
