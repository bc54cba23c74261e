package lending

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var maxUint256 = new(uint256.Int).SetAllOne()

// MaxUint256 returns a fresh copy of the "no upper bound" sentinel
// understood by the proxy contract.
func MaxUint256() *big.Int { return maxUint256.ToBig() }

// MarketParams identifies a lending market. Field order matches the
// on-chain tuple (loanToken, collateralToken, oracle, irm, lltv).
type MarketParams struct {
	LoanToken       common.Address `json:"loan_token"`
	CollateralToken common.Address `json:"collateral_token"`
	Oracle          common.Address `json:"oracle"`
	Irm             common.Address `json:"irm"`
	Lltv            *big.Int       `json:"lltv"`
}

// ProxyMessage is the instruction carried across the bridge to the proxy contract.
type ProxyMessage struct {
	EvmTargetAddress  string `json:"evmTargetAddress"`
	MethodName        string `json:"methodName"`
	EncodedParameters string `json:"encodedParameters"` // 0x-prefixed hex
}

// AssetType mirrors the bridge's asset kinds
type AssetType string

const (
	AssetTypeFT  AssetType = "FT"
	AssetTypeNFT AssetType = "NFT"
)

// AssetAddress is either the chain's native currency or a TVM token address.
// The variant is carried explicitly; a token with an empty address is still a token.
type AssetAddress struct {
	native bool
	tvm    string
}

// NativeAsset returns the native-currency variant.
func NativeAsset() AssetAddress { return AssetAddress{native: true} }

// TokenAsset returns a token variant for the given TVM jetton address.
func TokenAsset(tvmAddress string) AssetAddress { return AssetAddress{tvm: tvmAddress} }

func (a AssetAddress) IsNative() bool { return a.native }

// TVMAddress returns the token address and false for the native variant.
func (a AssetAddress) TVMAddress() (string, bool) {
	return a.tvm, !a.native
}

func (a AssetAddress) String() string {
	if a.IsNative() {
		return "native"
	}
	return a.tvm
}

// Asset is value attached to a cross-chain message.
type Asset struct {
	Address   AssetAddress
	RawAmount *big.Int
	Type      AssetType
}

type assetJSON struct {
	Address   *string `json:"address,omitempty"`
	RawAmount string  `json:"rawAmount"`
	Type      string  `json:"type"`
}

// MarshalJSON leaves out "address" for native assets; the bridge reads an
// absent address as the native currency.
func (a Asset) MarshalJSON() ([]byte, error) {
	out := assetJSON{RawAmount: "0", Type: string(a.Type)}
	if a.RawAmount != nil {
		out.RawAmount = a.RawAmount.String()
	}
	if addr, ok := a.Address.TVMAddress(); ok {
		out.Address = &addr
	}
	return json.Marshal(out)
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var in assetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(in.RawAmount, 10)
	if !ok {
		return fmt.Errorf("invalid rawAmount %q", in.RawAmount)
	}
	a.RawAmount = amount
	a.Type = AssetType(in.Type)
	a.Address = NativeAsset()
	if in.Address != nil {
		a.Address = TokenAsset(*in.Address)
	}
	return nil
}

// TransactionLinker is the handle returned by the cross-chain SDK for a
// submitted message. It is opaque to the dispatcher.
type TransactionLinker struct {
	Caller      string `json:"caller"`
	ShardCount  int    `json:"shardCount"`
	ShardsKey   string `json:"shardsKey"`
	Timestamp   int64  `json:"timestamp"`
	OperationID string `json:"operationId,omitempty"`
}

// Sender is the party authorizing a cross-chain transaction.
type Sender interface {
	Address() string
	Sign(ctx context.Context, digest []byte) ([]byte, error)
}

// SenderFactory hands out a sender; acquisition may block on a remote
// signer or on user approval.
type SenderFactory interface {
	GetSender(ctx context.Context) (Sender, error)
}

// CrossChainSDK submits proxy messages and maps EVM token addresses to
// their TVM counterparts.
type CrossChainSDK interface {
	SendCrossChainTransaction(ctx context.Context, msg ProxyMessage, sender Sender, assets []Asset) (*TransactionLinker, error)
	GetTVMTokenAddress(ctx context.Context, evmAddress string) (string, error)
}
