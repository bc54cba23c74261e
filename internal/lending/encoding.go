package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Proxy method names. Every proxy entry point takes (bytes,bytes); the
// first argument is the ABI-encoded parameter blob built here.
const (
	MethodDeposit                    = "deposit(bytes,bytes)"
	MethodBorrow                     = "borrow(bytes,bytes)"
	MethodRedeem                     = "redeem(bytes,bytes)"
	MethodSupplyCollateral           = "supplyCollateral(bytes,bytes)"
	MethodSupplyCollateralAndBorrow  = "supplyCollateralAndBorrow(bytes,bytes)"
	MethodRepay                      = "repay(bytes,bytes)"
	MethodWithdrawCollateral         = "withdrawCollateral(bytes,bytes)"
	MethodRepayAndWithdrawCollateral = "repayAndWithdrawCollateral(bytes,bytes)"
)

var marketComponents = []abi.ArgumentMarshaling{
	{Name: "loanToken", Type: "address"},
	{Name: "collateralToken", Type: "address"},
	{Name: "oracle", Type: "address"},
	{Name: "irm", Type: "address"},
	{Name: "lltv", Type: "uint256"},
}

var (
	// tuple(address,uint256,uint256)
	vaultTupleType = mustTuple([]abi.ArgumentMarshaling{
		{Name: "vault", Type: "address"},
		{Name: "assets", Type: "uint256"},
		{Name: "limit", Type: "uint256"},
	})

	// tuple(tuple(address,address,address,address,uint256),uint256)
	collateralTupleType = mustTuple([]abi.ArgumentMarshaling{
		{Name: "market", Type: "tuple", Components: marketComponents},
		{Name: "assets", Type: "uint256"},
	})

	// tuple(tuple(address,address,address,address,uint256),uint256,uint256,uint256)
	loanTupleType = mustTuple([]abi.ArgumentMarshaling{
		{Name: "market", Type: "tuple", Components: marketComponents},
		{Name: "assets", Type: "uint256"},
		{Name: "shares", Type: "uint256"},
		{Name: "limit", Type: "uint256"},
	})
)

// mustTuple builds an abi tuple type from its components
func mustTuple(components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(fmt.Sprintf("invalid tuple type: %v", err))
	}
	return typ
}

// VaultParams is the (vault, assets, limit) tuple used by deposit and redeem.
type VaultParams struct {
	Vault  common.Address
	Assets *big.Int
	Limit  *big.Int
}

// CollateralParams is the (market, assets) tuple used by supplyCollateral
// and withdrawCollateral.
type CollateralParams struct {
	Market MarketParams
	Assets *big.Int
}

// LoanParams is the (market, assets, shares, limit) tuple used by borrow and repay.
type LoanParams struct {
	Market MarketParams
	Assets *big.Int
	Shares *big.Int
	Limit  *big.Int
}

// The abi packer resolves tuple fields by name; these mirrors carry the
// exact component names so the public types can keep JSON-friendly tags.
type abiMarket struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	Irm             common.Address
	Lltv            *big.Int
}

type abiVault struct {
	Vault  common.Address
	Assets *big.Int
	Limit  *big.Int
}

type abiCollateral struct {
	Market abiMarket
	Assets *big.Int
}

type abiLoan struct {
	Market abiMarket
	Assets *big.Int
	Shares *big.Int
	Limit  *big.Int
}

func toABIMarket(m MarketParams) abiMarket {
	return abiMarket{
		LoanToken:       m.LoanToken,
		CollateralToken: m.CollateralToken,
		Oracle:          m.Oracle,
		Irm:             m.Irm,
		Lltv:            orZero(m.Lltv),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func hasValue(v *big.Int) bool {
	return v != nil && v.Sign() != 0
}

// NewDepositParams returns (vault, amount, MAX).
func NewDepositParams(vault common.Address, amount *big.Int) VaultParams {
	return VaultParams{Vault: vault, Assets: orZero(amount), Limit: MaxUint256()}
}

// NewRedeemParams returns (vault, amount, 0).
func NewRedeemParams(vault common.Address, amount *big.Int) VaultParams {
	return VaultParams{Vault: vault, Assets: orZero(amount), Limit: new(big.Int)}
}

// NewBorrowParams returns (market, amount, 0, 0).
func NewBorrowParams(market MarketParams, amount *big.Int) LoanParams {
	return LoanParams{Market: market, Assets: orZero(amount), Shares: new(big.Int), Limit: new(big.Int)}
}

// NewRepayParams returns (market, amount, 0, MAX) or, when shares is
// nonzero, (market, 0, shares, MAX). Amount and shares are never both set.
func NewRepayParams(market MarketParams, amount, shares *big.Int) LoanParams {
	p := LoanParams{Market: market, Limit: MaxUint256()}
	if hasValue(shares) {
		p.Assets = new(big.Int)
		p.Shares = shares
	} else {
		p.Assets = orZero(amount)
		p.Shares = new(big.Int)
	}
	return p
}

// NewCollateralParams returns (market, amount).
func NewCollateralParams(market MarketParams, amount *big.Int) CollateralParams {
	return CollateralParams{Market: market, Assets: orZero(amount)}
}

// EncodeVault packs a single vault tuple
func EncodeVault(p VaultParams) ([]byte, error) {
	return abi.Arguments{{Type: vaultTupleType}}.Pack(abiVault{Vault: p.Vault, Assets: orZero(p.Assets), Limit: orZero(p.Limit)})
}

// EncodeCollateral packs a single collateral tuple
func EncodeCollateral(p CollateralParams) ([]byte, error) {
	return abi.Arguments{{Type: collateralTupleType}}.Pack(toABICollateral(p))
}

// EncodeLoan packs a single loan tuple
func EncodeLoan(p LoanParams) ([]byte, error) {
	return abi.Arguments{{Type: loanTupleType}}.Pack(toABILoan(p))
}

// EncodeCollateralThenLoan packs (collateral, loan) as two top-level arguments.
func EncodeCollateralThenLoan(c CollateralParams, l LoanParams) ([]byte, error) {
	return abi.Arguments{{Type: collateralTupleType}, {Type: loanTupleType}}.Pack(toABICollateral(c), toABILoan(l))
}

// EncodeLoanThenCollateral packs (loan, collateral) as two top-level arguments.
func EncodeLoanThenCollateral(l LoanParams, c CollateralParams) ([]byte, error) {
	return abi.Arguments{{Type: loanTupleType}, {Type: collateralTupleType}}.Pack(toABILoan(l), toABICollateral(c))
}

// Per-operation payloads. The dispatcher submits exactly these bytes.

// EncodeDepositCall encodes (vault, amount, MAX).
func EncodeDepositCall(vault common.Address, amount *big.Int) ([]byte, error) {
	return EncodeVault(NewDepositParams(vault, amount))
}

// EncodeRedeemCall encodes (vault, amount, 0).
func EncodeRedeemCall(vault common.Address, amount *big.Int) ([]byte, error) {
	return EncodeVault(NewRedeemParams(vault, amount))
}

func EncodeBorrowCall(market MarketParams, amount *big.Int) ([]byte, error) {
	return EncodeLoan(NewBorrowParams(market, amount))
}

// EncodeCollateralCall serves both supplyCollateral and withdrawCollateral.
func EncodeCollateralCall(market MarketParams, amount *big.Int) ([]byte, error) {
	return EncodeCollateral(NewCollateralParams(market, amount))
}

func EncodeSupplyCollateralAndBorrowCall(market MarketParams, amount, amountLoan *big.Int) ([]byte, error) {
	return EncodeCollateralThenLoan(NewCollateralParams(market, amount), NewBorrowParams(market, amountLoan))
}

func EncodeRepayCall(market MarketParams, amount, shares *big.Int) ([]byte, error) {
	return EncodeLoan(NewRepayParams(market, amount, shares))
}

func EncodeRepayAndWithdrawCollateralCall(market MarketParams, amount, amountLoan, shares *big.Int) ([]byte, error) {
	return EncodeLoanThenCollateral(NewRepayParams(market, amount, shares), NewCollateralParams(market, amountLoan))
}

func toABICollateral(p CollateralParams) abiCollateral {
	return abiCollateral{Market: toABIMarket(p.Market), Assets: orZero(p.Assets)}
}

func toABILoan(p LoanParams) abiLoan {
	return abiLoan{
		Market: toABIMarket(p.Market),
		Assets: orZero(p.Assets),
		Shares: orZero(p.Shares),
		Limit:  orZero(p.Limit),
	}
}

// NewProxyMessage wraps an encoded parameter blob for the given proxy and method.
func NewProxyMessage(proxy common.Address, method string, encoded []byte) ProxyMessage {
	return ProxyMessage{
		EvmTargetAddress:  proxy.Hex(),
		MethodName:        method,
		EncodedParameters: hexutil.Encode(encoded),
	}
}

// Digest is the keccak256 hash a sender signs for a proxy message:
// keccak256(target || methodName || encodedParameters).
func (m ProxyMessage) Digest() ([]byte, error) {
	params, err := hexutil.Decode(m.EncodedParameters)
	if err != nil {
		return nil, fmt.Errorf("invalid encoded parameters: %w", err)
	}
	if !common.IsHexAddress(m.EvmTargetAddress) {
		return nil, fmt.Errorf("invalid target address: %s", m.EvmTargetAddress)
	}
	target := common.HexToAddress(m.EvmTargetAddress)
	return crypto.Keccak256(target.Bytes(), []byte(m.MethodName), params), nil
}
