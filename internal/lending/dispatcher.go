package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Network holds the addresses that differ between deployments.
type Network struct {
	Proxy       common.Address // lending proxy on the EVM side
	NativeAsset common.Address // wrapped-native pseudo token; sent as an addressless asset
}

// ErrEmptyTokenAddress is returned when the SDK maps a token to an empty
// TVM address; sending it would be read as the native currency.
var ErrEmptyTokenAddress = errors.New("empty TVM token address")

// Dispatcher turns lending operations into cross-chain proxy messages.
// Each call acquires one sender and performs one submission; errors from
// the encoder, the connector and the SDK are returned as-is.
type Dispatcher struct {
	sdk     CrossChainSDK
	senders SenderFactory
	network Network
	log     *logrus.Entry
}

// NewDispatcher creates a dispatcher bound to an SDK, a wallet connector and a network.
func NewDispatcher(sdk CrossChainSDK, senders SenderFactory, network Network, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		sdk:     sdk,
		senders: senders,
		network: network,
		log:     logger.WithField("component", "dispatcher"),
	}
}

// WithSenders returns a copy of d that acquires senders from senders.
func (d *Dispatcher) WithSenders(senders SenderFactory) *Dispatcher {
	cp := *d
	cp.senders = senders
	return &cp
}

// Senders returns the wallet connector d acquires senders from.
func (d *Dispatcher) Senders() SenderFactory {
	return d.senders
}

// Network returns the addresses this dispatcher targets.
func (d *Dispatcher) Network() Network {
	return d.network
}

// Deposit supplies amount of token into vault.
func (d *Dispatcher) Deposit(ctx context.Context, token, vault common.Address, amount *big.Int) (*TransactionLinker, error) {
	encoded, err := EncodeDepositCall(vault, amount)
	if err != nil {
		return nil, err
	}
	asset, err := d.resolveAsset(ctx, token, amount)
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, MethodDeposit, encoded, []Asset{asset})
}

// Borrow borrows amount of the market's loan token.
func (d *Dispatcher) Borrow(ctx context.Context, market MarketParams, amount *big.Int) (*TransactionLinker, error) {
	encoded, err := EncodeBorrowCall(market, amount)
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, MethodBorrow, encoded, nil)
}

// Redeem returns amount of vault shares; the share token travels with the message.
func (d *Dispatcher) Redeem(ctx context.Context, vault common.Address, amount *big.Int) (*TransactionLinker, error) {
	encoded, err := EncodeRedeemCall(vault, amount)
	if err != nil {
		return nil, err
	}
	asset, err := d.resolveAsset(ctx, vault, amount)
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, MethodRedeem, encoded, []Asset{asset})
}

// SupplyCollateral posts amount of the market's collateral token.
func (d *Dispatcher) SupplyCollateral(ctx context.Context, market MarketParams, amount *big.Int) (*TransactionLinker, error) {
	encoded, err := EncodeCollateralCall(market, amount)
	if err != nil {
		return nil, err
	}
	asset, err := d.resolveAsset(ctx, market.CollateralToken, amount)
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, MethodSupplyCollateral, encoded, []Asset{asset})
}

// SupplyCollateralAndBorrow posts amount of collateral and borrows amountLoan
// in one message. Only the collateral is attached.
func (d *Dispatcher) SupplyCollateralAndBorrow(ctx context.Context, market MarketParams, amount, amountLoan *big.Int) (*TransactionLinker, error) {
	encoded, err := EncodeSupplyCollateralAndBorrowCall(market, amount, amountLoan)
	if err != nil {
		return nil, err
	}
	asset, err := d.resolveAsset(ctx, market.CollateralToken, amount)
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, MethodSupplyCollateralAndBorrow, encoded, []Asset{asset})
}

// Repay repays by amount, or by shares when shares is nonzero. The attached
// loan-token value is always amount.
func (d *Dispatcher) Repay(ctx context.Context, market MarketParams, amount, shares *big.Int) (*TransactionLinker, error) {
	encoded, err := EncodeRepayCall(market, amount, shares)
	if err != nil {
		return nil, err
	}
	asset, err := d.resolveAsset(ctx, market.LoanToken, amount)
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, MethodRepay, encoded, []Asset{asset})
}

// WithdrawCollateral withdraws amount of the market's collateral token.
func (d *Dispatcher) WithdrawCollateral(ctx context.Context, market MarketParams, amount *big.Int) (*TransactionLinker, error) {
	encoded, err := EncodeCollateralCall(market, amount)
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, MethodWithdrawCollateral, encoded, nil)
}

// RepayAndWithdrawCollateral repays (amount or shares) and withdraws
// amountLoan of collateral in one message. The loan token is attached.
func (d *Dispatcher) RepayAndWithdrawCollateral(ctx context.Context, market MarketParams, amount, amountLoan, shares *big.Int) (*TransactionLinker, error) {
	encoded, err := EncodeRepayAndWithdrawCollateralCall(market, amount, amountLoan, shares)
	if err != nil {
		return nil, err
	}
	asset, err := d.resolveAsset(ctx, market.LoanToken, amount)
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, MethodRepayAndWithdrawCollateral, encoded, []Asset{asset})
}

// resolveAsset builds the asset descriptor for token. The native pseudo
// token is never looked up and goes out without an address.
func (d *Dispatcher) resolveAsset(ctx context.Context, token common.Address, amount *big.Int) (Asset, error) {
	asset := Asset{Address: NativeAsset(), RawAmount: orZero(amount), Type: AssetTypeFT}
	if token == d.network.NativeAsset {
		return asset, nil
	}
	tvm, err := d.sdk.GetTVMTokenAddress(ctx, token.Hex())
	if err != nil {
		return Asset{}, err
	}
	if tvm == "" {
		return Asset{}, fmt.Errorf("%w for %s", ErrEmptyTokenAddress, token.Hex())
	}
	asset.Address = TokenAsset(tvm)
	return asset, nil
}

func (d *Dispatcher) submit(ctx context.Context, method string, encoded []byte, assets []Asset) (*TransactionLinker, error) {
	msg := NewProxyMessage(d.network.Proxy, method, encoded)

	sender, err := d.senders.GetSender(ctx)
	if err != nil {
		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"method": method,
		"sender": sender.Address(),
		"assets": len(assets),
	}).Debug("submitting cross-chain transaction")

	return d.sdk.SendCrossChainTransaction(ctx, msg, sender, assets)
}
