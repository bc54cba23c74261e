package lending

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProxy  = common.HexToAddress("0x21b5562FEee5013379F8F79C5093EC294d535BEC")
	testNative = common.HexToAddress("0xb76d91340F5CE3577f0a056D29f6e3Eb4E88B140")
)

type fakeSender struct{ addr string }

func (s fakeSender) Address() string { return s.addr }

func (s fakeSender) Sign(_ context.Context, digest []byte) ([]byte, error) {
	return append([]byte{0xaa}, digest...), nil
}

type fakeSenders struct {
	calls int
	err   error
}

func (f *fakeSenders) GetSender(_ context.Context) (Sender, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return fakeSender{addr: "EQsender"}, nil
}

type sentTx struct {
	msg    ProxyMessage
	sender Sender
	assets []Asset
}

type fakeSDK struct {
	sent    []sentTx
	lookups []string
	sendErr error
	tvmErr  error
	tvmAddr *string // overrides the lookup result when set
}

func (f *fakeSDK) SendCrossChainTransaction(_ context.Context, msg ProxyMessage, sender Sender, assets []Asset) (*TransactionLinker, error) {
	f.sent = append(f.sent, sentTx{msg: msg, sender: sender, assets: assets})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &TransactionLinker{Caller: sender.Address(), ShardCount: 1, ShardsKey: "42", Timestamp: 1700000000}, nil
}

func (f *fakeSDK) GetTVMTokenAddress(_ context.Context, evmAddress string) (string, error) {
	f.lookups = append(f.lookups, evmAddress)
	if f.tvmErr != nil {
		return "", f.tvmErr
	}
	if f.tvmAddr != nil {
		return *f.tvmAddr, nil
	}
	return "TVM:" + evmAddress, nil
}

func newTestDispatcher() (*Dispatcher, *fakeSDK, *fakeSenders) {
	sdk := &fakeSDK{}
	senders := &fakeSenders{}
	d := NewDispatcher(sdk, senders, Network{Proxy: testProxy, NativeAsset: testNative}, nil)
	return d, sdk, senders
}

func decodeParams(t *testing.T, msg ProxyMessage) []byte {
	t.Helper()
	b, err := hexutil.Decode(msg.EncodedParameters)
	require.NoError(t, err)
	return b
}

func TestDepositNativeToken(t *testing.T) {
	d, sdk, senders := newTestDispatcher()

	linker, err := d.Deposit(context.Background(), testNative, vault, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, "EQsender", linker.Caller)

	require.Len(t, sdk.sent, 1)
	assert.Equal(t, 1, senders.calls)
	assert.Empty(t, sdk.lookups, "native asset must not be resolved")

	tx := sdk.sent[0]
	assert.Equal(t, MethodDeposit, tx.msg.MethodName)
	assert.Equal(t, testProxy.Hex(), tx.msg.EvmTargetAddress)
	assert.Equal(t, addrWord(vault), word(t, decodeParams(t, tx.msg), 0))

	require.Len(t, tx.assets, 1)
	assert.True(t, tx.assets[0].Address.IsNative())
	assert.Equal(t, int64(100), tx.assets[0].RawAmount.Int64())
	assert.Equal(t, AssetTypeFT, tx.assets[0].Type)
}

func TestDepositTokenResolvesTVMAddress(t *testing.T) {
	d, sdk, _ := newTestDispatcher()
	token := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	_, err := d.Deposit(context.Background(), token, vault, big.NewInt(100))
	require.NoError(t, err)

	require.Equal(t, []string{token.Hex()}, sdk.lookups)
	addr, ok := sdk.sent[0].assets[0].Address.TVMAddress()
	require.True(t, ok)
	assert.Equal(t, "TVM:"+token.Hex(), addr)
}

func TestBorrowAttachesNothing(t *testing.T) {
	d, sdk, _ := newTestDispatcher()
	market := testMarket()

	_, err := d.Borrow(context.Background(), market, big.NewInt(77))
	require.NoError(t, err)

	tx := sdk.sent[0]
	assert.Equal(t, MethodBorrow, tx.msg.MethodName)
	assert.Nil(t, tx.assets)

	want, err := EncodeLoan(LoanParams{Market: market, Assets: big.NewInt(77), Shares: big.NewInt(0), Limit: big.NewInt(0)})
	require.NoError(t, err)
	assert.Equal(t, want, decodeParams(t, tx.msg))
}

func TestRedeemAttachesShareToken(t *testing.T) {
	d, sdk, _ := newTestDispatcher()

	_, err := d.Redeem(context.Background(), vault, big.NewInt(12))
	require.NoError(t, err)

	tx := sdk.sent[0]
	assert.Equal(t, MethodRedeem, tx.msg.MethodName)
	assert.Equal(t, []string{vault.Hex()}, sdk.lookups)
	require.Len(t, tx.assets, 1)
	assert.Equal(t, int64(12), tx.assets[0].RawAmount.Int64())
}

func TestSupplyCollateralNativeAndToken(t *testing.T) {
	market := testMarket()

	t.Run("token", func(t *testing.T) {
		d, sdk, _ := newTestDispatcher()
		_, err := d.SupplyCollateral(context.Background(), market, big.NewInt(5))
		require.NoError(t, err)
		assert.Equal(t, []string{collateralToken.Hex()}, sdk.lookups)
		assert.False(t, sdk.sent[0].assets[0].Address.IsNative())
	})

	t.Run("native", func(t *testing.T) {
		d, sdk, _ := newTestDispatcher()
		nativeMarket := market
		nativeMarket.CollateralToken = testNative
		_, err := d.SupplyCollateral(context.Background(), nativeMarket, big.NewInt(5))
		require.NoError(t, err)
		assert.Empty(t, sdk.lookups)
		assert.True(t, sdk.sent[0].assets[0].Address.IsNative())
	})
}

func TestSupplyCollateralAndBorrow(t *testing.T) {
	d, sdk, _ := newTestDispatcher()
	market := testMarket()

	_, err := d.SupplyCollateralAndBorrow(context.Background(), market, big.NewInt(1000), big.NewInt(400))
	require.NoError(t, err)

	tx := sdk.sent[0]
	assert.Equal(t, MethodSupplyCollateralAndBorrow, tx.msg.MethodName)
	require.Len(t, tx.assets, 1)
	assert.Equal(t, int64(1000), tx.assets[0].RawAmount.Int64())
	assert.Equal(t, []string{collateralToken.Hex()}, sdk.lookups)

	first, err := EncodeCollateral(NewCollateralParams(market, big.NewInt(1000)))
	require.NoError(t, err)
	second, err := EncodeLoan(NewBorrowParams(market, big.NewInt(400)))
	require.NoError(t, err)
	assert.Equal(t, append(first, second...), decodeParams(t, tx.msg))
}

func TestRepayByShares(t *testing.T) {
	d, sdk, _ := newTestDispatcher()
	market := testMarket()

	_, err := d.Repay(context.Background(), market, big.NewInt(100), big.NewInt(50))
	require.NoError(t, err)

	tx := sdk.sent[0]
	params := decodeParams(t, tx.msg)
	assert.Equal(t, MethodRepay, tx.msg.MethodName)
	assert.Equal(t, make([]byte, 32), word(t, params, 5))
	assert.Equal(t, intWord(big.NewInt(50)), word(t, params, 6))
	assert.Equal(t, intWord(MaxUint256()), word(t, params, 7))

	require.Len(t, tx.assets, 1)
	assert.Equal(t, int64(100), tx.assets[0].RawAmount.Int64())
	assert.Equal(t, []string{loanToken.Hex()}, sdk.lookups)
}

func TestWithdrawCollateral(t *testing.T) {
	d, sdk, _ := newTestDispatcher()
	market := testMarket()

	_, err := d.WithdrawCollateral(context.Background(), market, big.NewInt(3))
	require.NoError(t, err)

	tx := sdk.sent[0]
	assert.Equal(t, MethodWithdrawCollateral, tx.msg.MethodName)
	assert.Nil(t, tx.assets)
	assert.Empty(t, sdk.lookups)
}

func TestRepayAndWithdrawCollateral(t *testing.T) {
	d, sdk, _ := newTestDispatcher()
	market := testMarket()
	market.LoanToken = testNative

	_, err := d.RepayAndWithdrawCollateral(context.Background(), market, big.NewInt(10), big.NewInt(20), nil)
	require.NoError(t, err)

	tx := sdk.sent[0]
	assert.Equal(t, MethodRepayAndWithdrawCollateral, tx.msg.MethodName)
	require.Len(t, tx.assets, 1)
	assert.True(t, tx.assets[0].Address.IsNative())
	assert.Equal(t, int64(10), tx.assets[0].RawAmount.Int64())

	first, err := EncodeLoan(NewRepayParams(market, big.NewInt(10), nil))
	require.NoError(t, err)
	second, err := EncodeCollateral(NewCollateralParams(market, big.NewInt(20)))
	require.NoError(t, err)
	assert.Equal(t, append(first, second...), decodeParams(t, tx.msg))
}

func TestErrorsPropagateUnchanged(t *testing.T) {
	market := testMarket()

	t.Run("sender", func(t *testing.T) {
		d, sdk, senders := newTestDispatcher()
		senders.err = errors.New("user rejected")
		_, err := d.Borrow(context.Background(), market, big.NewInt(1))
		assert.Same(t, senders.err, err)
		assert.Empty(t, sdk.sent)
	})

	t.Run("submission", func(t *testing.T) {
		d, sdk, _ := newTestDispatcher()
		sdk.sendErr = errors.New("relay unavailable")
		_, err := d.WithdrawCollateral(context.Background(), market, big.NewInt(1))
		assert.Same(t, sdk.sendErr, err)
		assert.Len(t, sdk.sent, 1)
	})

	t.Run("token lookup", func(t *testing.T) {
		d, sdk, senders := newTestDispatcher()
		sdk.tvmErr = errors.New("unknown token")
		_, err := d.Repay(context.Background(), market, big.NewInt(1), nil)
		assert.Same(t, sdk.tvmErr, err)
		assert.Empty(t, sdk.sent)
		assert.Zero(t, senders.calls)
	})
}

// valueOp runs one value-moving operation with token as the attached asset.
type valueOp struct {
	name   string
	amount int64
	run    func(d *Dispatcher, token common.Address) error
}

func valueOps() []valueOp {
	ctx := context.Background()
	withLoan := func(token common.Address) MarketParams {
		m := testMarket()
		m.LoanToken = token
		return m
	}
	withCollateral := func(token common.Address) MarketParams {
		m := testMarket()
		m.CollateralToken = token
		return m
	}
	return []valueOp{
		{"deposit", 100, func(d *Dispatcher, token common.Address) error {
			_, err := d.Deposit(ctx, token, vault, big.NewInt(100))
			return err
		}},
		{"redeem", 12, func(d *Dispatcher, token common.Address) error {
			_, err := d.Redeem(ctx, token, big.NewInt(12))
			return err
		}},
		{"supplyCollateral", 5, func(d *Dispatcher, token common.Address) error {
			_, err := d.SupplyCollateral(ctx, withCollateral(token), big.NewInt(5))
			return err
		}},
		{"supplyCollateralAndBorrow", 1000, func(d *Dispatcher, token common.Address) error {
			_, err := d.SupplyCollateralAndBorrow(ctx, withCollateral(token), big.NewInt(1000), big.NewInt(400))
			return err
		}},
		{"repay", 70, func(d *Dispatcher, token common.Address) error {
			_, err := d.Repay(ctx, withLoan(token), big.NewInt(70), nil)
			return err
		}},
		{"repayAndWithdrawCollateral", 10, func(d *Dispatcher, token common.Address) error {
			_, err := d.RepayAndWithdrawCollateral(ctx, withLoan(token), big.NewInt(10), big.NewInt(20), big.NewInt(3))
			return err
		}},
	}
}

func TestAssetAddressAbsentOnlyForNative(t *testing.T) {
	token := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	for _, op := range valueOps() {
		t.Run(op.name+"/native", func(t *testing.T) {
			d, sdk, _ := newTestDispatcher()
			require.NoError(t, op.run(d, testNative))

			assert.Empty(t, sdk.lookups)
			require.Len(t, sdk.sent, 1)
			require.Len(t, sdk.sent[0].assets, 1)
			asset := sdk.sent[0].assets[0]
			assert.True(t, asset.Address.IsNative())
			assert.Equal(t, op.amount, asset.RawAmount.Int64())

			data, err := json.Marshal(asset)
			require.NoError(t, err)
			assert.NotContains(t, string(data), `"address"`)
		})

		t.Run(op.name+"/token", func(t *testing.T) {
			d, sdk, _ := newTestDispatcher()
			require.NoError(t, op.run(d, token))

			assert.Equal(t, []string{token.Hex()}, sdk.lookups)
			require.Len(t, sdk.sent, 1)
			require.Len(t, sdk.sent[0].assets, 1)
			asset := sdk.sent[0].assets[0]
			addr, ok := asset.Address.TVMAddress()
			require.True(t, ok)
			assert.Equal(t, "TVM:"+token.Hex(), addr)
			assert.Equal(t, op.amount, asset.RawAmount.Int64())
		})
	}
}

func TestEmptyTVMAddressIsRejected(t *testing.T) {
	token := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	empty := ""

	for _, op := range valueOps() {
		t.Run(op.name, func(t *testing.T) {
			d, sdk, senders := newTestDispatcher()
			sdk.tvmAddr = &empty

			err := op.run(d, token)
			assert.ErrorIs(t, err, ErrEmptyTokenAddress)
			assert.Empty(t, sdk.sent, "nothing may be submitted as native")
			assert.Zero(t, senders.calls)
		})
	}
}

func TestWithSendersLeavesOriginalUntouched(t *testing.T) {
	d, sdk, senders := newTestDispatcher()
	other := &fakeSenders{}

	scoped := d.WithSenders(other)
	_, err := scoped.Borrow(context.Background(), testMarket(), big.NewInt(1))
	require.NoError(t, err)

	assert.Equal(t, 1, other.calls)
	assert.Zero(t, senders.calls)
	assert.Same(t, senders, d.Senders())
	assert.Len(t, sdk.sent, 1)
}
