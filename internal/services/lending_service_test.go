package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lending-gateway/internal/events"
	"lending-gateway/internal/lending"
	"lending-gateway/internal/models"
	"lending-gateway/internal/repository"
)

var (
	testProxy  = common.HexToAddress("0x001e29479B3DFbaA0c371EaA5E23E157e188871d")
	testNative = common.HexToAddress("0xe3a2296bE422768a630eb35014978A808D106899")
	testLoan   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testColl   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type memoryRepo struct {
	mu        sync.Mutex
	ops       map[string]*models.LendingOperation
	createErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{ops: make(map[string]*models.LendingOperation)}
}

func (r *memoryRepo) Create(_ context.Context, op *models.LendingOperation) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *op
	r.ops[op.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*models.LendingOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *op
	return &cp, nil
}

func (r *memoryRepo) MarkSubmitted(_ context.Context, id string, sender, caller string, shardCount int, shardsKey string, linkerTime int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := r.ops[id]
	op.Status = models.LendingOperationStatusSubmitted
	op.Sender, op.Caller, op.ShardCount, op.ShardsKey, op.LinkerTime = sender, caller, shardCount, shardsKey, linkerTime
	return nil
}

func (r *memoryRepo) MarkFailed(_ context.Context, id string, sender, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := r.ops[id]
	op.Status = models.LendingOperationStatusFailed
	op.Sender = sender
	op.LastError = lastError
	return nil
}

func (r *memoryRepo) List(_ context.Context, filter repository.OperationFilter, page, pageSize int) ([]*models.LendingOperation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LendingOperation
	for _, op := range r.ops {
		if filter.Requester != "" && op.Requester != filter.Requester {
			continue
		}
		out = append(out, op)
	}
	return out, int64(len(out)), nil
}

type recordingEvents struct {
	events []events.OperationEvent
}

func (r *recordingEvents) PublishOperation(ev events.OperationEvent) error {
	r.events = append(r.events, ev)
	return nil
}

type recordingPusher struct {
	statuses []models.LendingOperationStatus
}

func (r *recordingPusher) PushOperationUpdate(op *models.LendingOperation) {
	r.statuses = append(r.statuses, op.Status)
}

type stubSender struct{}

func (stubSender) Address() string { return "EQsender" }

func (stubSender) Sign(_ context.Context, digest []byte) ([]byte, error) { return digest, nil }

type stubSenders struct{ err error }

func (s stubSenders) GetSender(context.Context) (lending.Sender, error) {
	if s.err != nil {
		return nil, s.err
	}
	return stubSender{}, nil
}

type stubSDK struct {
	methods []string
	sendErr error
}

func (s *stubSDK) SendCrossChainTransaction(_ context.Context, msg lending.ProxyMessage, sender lending.Sender, _ []lending.Asset) (*lending.TransactionLinker, error) {
	s.methods = append(s.methods, msg.MethodName)
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return &lending.TransactionLinker{Caller: "EQcaller", ShardCount: 2, ShardsKey: "314", Timestamp: 1700000000}, nil
}

func (s *stubSDK) GetTVMTokenAddress(_ context.Context, evm string) (string, error) {
	return "EQ" + evm, nil
}

type fixture struct {
	svc    *LendingService
	repo   *memoryRepo
	sdk    *stubSDK
	events *recordingEvents
	pusher *recordingPusher
}

func newFixture(senderErr error) *fixture {
	sdk := &stubSDK{}
	d := lending.NewDispatcher(sdk, stubSenders{err: senderErr}, lending.Network{Proxy: testProxy, NativeAsset: testNative}, nil)
	f := &fixture{repo: newMemoryRepo(), sdk: sdk, events: &recordingEvents{}, pusher: &recordingPusher{}}
	f.svc = NewLendingService(d, f.repo, f.events, f.pusher, "testnet", nil)
	return f
}

func testMarket() lending.MarketParams {
	return lending.MarketParams{LoanToken: testLoan, CollateralToken: testColl, Lltv: big.NewInt(860000000000000000)}
}

func TestExecuteSubmitted(t *testing.T) {
	f := newFixture(nil)

	op, linker, err := f.svc.Execute(context.Background(), OperationRequest{
		Operation: OpSupplyCollateral,
		Requester: "0xABCDEF0000000000000000000000000000000001",
		Market:    testMarket(),
		Amount:    big.NewInt(500),
	})
	require.NoError(t, err)

	assert.Equal(t, op.ID, linker.OperationID)
	assert.Equal(t, "314", linker.ShardsKey)
	assert.Equal(t, models.LendingOperationStatusSubmitted, op.Status)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", op.Requester)
	assert.Equal(t, lending.MethodSupplyCollateral, op.Method)
	assert.Equal(t, testColl.Hex(), op.AssetToken)
	assert.Equal(t, "500", op.AssetAmount)
	assert.Equal(t, []string{lending.MethodSupplyCollateral}, f.sdk.methods)

	stored, err := f.svc.GetOperation(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LendingOperationStatusSubmitted, stored.Status)
	assert.Equal(t, "EQsender", stored.Sender)
	assert.Equal(t, "EQcaller", stored.Caller)

	require.Len(t, f.events.events, 2)
	assert.Equal(t, "pending", f.events.events[0].Status)
	assert.Equal(t, "submitted", f.events.events[1].Status)
	assert.Equal(t, []models.LendingOperationStatus{models.LendingOperationStatusPending, models.LendingOperationStatusSubmitted}, f.pusher.statuses)

	var params map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stored.Params), &params))
	assert.Equal(t, "500", params["amount"])
	assert.Contains(t, params, "market")
}

func TestExecuteDispatchErrorIsReturnedUnchanged(t *testing.T) {
	rejected := errors.New("user rejected")
	f := newFixture(rejected)

	op, linker, err := f.svc.Execute(context.Background(), OperationRequest{
		Operation: OpBorrow,
		Requester: "0x01",
		Market:    testMarket(),
		Amount:    big.NewInt(1),
	})
	assert.Same(t, rejected, err)
	assert.Nil(t, linker)
	require.NotNil(t, op)
	assert.Equal(t, models.LendingOperationStatusFailed, op.Status)
	assert.Empty(t, op.AssetToken, "borrow attaches nothing")

	stored, err := f.svc.GetOperation(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LendingOperationStatusFailed, stored.Status)
	assert.Equal(t, "user rejected", stored.LastError)
	assert.Equal(t, "failed", f.events.events[len(f.events.events)-1].Status)
}

func TestExecuteEveryOperation(t *testing.T) {
	vault := common.HexToAddress("0x5555555555555555555555555555555555555555")

	for op, method := range operationMethods {
		t.Run(op, func(t *testing.T) {
			f := newFixture(nil)
			_, _, err := f.svc.Execute(context.Background(), OperationRequest{
				Operation:  op,
				Requester:  "0x01",
				Token:      testNative,
				Vault:      vault,
				Market:     testMarket(),
				Amount:     big.NewInt(10),
				AmountLoan: big.NewInt(5),
			})
			require.NoError(t, err)
			assert.Equal(t, []string{method}, f.sdk.methods)
		})
	}
}

func TestExecuteUnknownOperation(t *testing.T) {
	f := newFixture(nil)
	_, _, err := f.svc.Execute(context.Background(), OperationRequest{Operation: "liquidate"})
	assert.Error(t, err)
	assert.Empty(t, f.sdk.methods)
	assert.Empty(t, f.repo.ops)
}

func TestExecuteJournalFailureSkipsDispatch(t *testing.T) {
	f := newFixture(nil)
	f.repo.createErr = errors.New("db down")

	_, _, err := f.svc.Execute(context.Background(), OperationRequest{Operation: OpRepay, Market: testMarket(), Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, f.repo.createErr)
	assert.Empty(t, f.sdk.methods)
}

func TestListOperationsNormalizesRequester(t *testing.T) {
	f := newFixture(nil)
	_, _, err := f.svc.Execute(context.Background(), OperationRequest{
		Operation: OpWithdrawCollateral,
		Requester: "0xAbC",
		Market:    testMarket(),
		Amount:    big.NewInt(3),
	})
	require.NoError(t, err)

	ops, total, err := f.svc.ListOperations(context.Background(), repository.OperationFilter{Requester: "0xABC"}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, ops, 1)
}

func TestNetwork(t *testing.T) {
	f := newFixture(nil)
	mode, network := f.svc.Network()
	assert.Equal(t, "testnet", mode)
	assert.Equal(t, testProxy, network.Proxy)
	assert.Equal(t, testNative, network.NativeAsset)
}

func TestEncodeMatchesSubmittedPayload(t *testing.T) {
	vault := common.HexToAddress("0x5555555555555555555555555555555555555555")
	for op := range operationMethods {
		t.Run(op, func(t *testing.T) {
			req := OperationRequest{
				Operation:  op,
				Token:      testNative,
				Vault:      vault,
				Market:     testMarket(),
				Amount:     big.NewInt(10),
				AmountLoan: big.NewInt(5),
				Shares:     big.NewInt(2),
			}
			method, encoded, err := Encode(req)
			require.NoError(t, err)

			sdk := &recordingSDK{}
			d := lending.NewDispatcher(sdk, stubSenders{}, lending.Network{Proxy: testProxy, NativeAsset: testNative}, nil)
			_, err = Dispatch(context.Background(), d, req)
			require.NoError(t, err)

			require.Len(t, sdk.msgs, 1)
			assert.Equal(t, lending.NewProxyMessage(testProxy, method, encoded), sdk.msgs[0])
		})
	}

	_, _, err := Encode(OperationRequest{Operation: "liquidate"})
	assert.Error(t, err)
}

type recordingSDK struct {
	stubSDK
	msgs []lending.ProxyMessage
}

func (r *recordingSDK) SendCrossChainTransaction(ctx context.Context, msg lending.ProxyMessage, sender lending.Sender, assets []lending.Asset) (*lending.TransactionLinker, error) {
	r.msgs = append(r.msgs, msg)
	return r.stubSDK.SendCrossChainTransaction(ctx, msg, sender, assets)
}

func TestExecuteJournalsSenderWhenSubmissionFails(t *testing.T) {
	f := newFixture(nil)
	f.sdk.sendErr = errors.New("relay unavailable")

	op, _, err := f.svc.Execute(context.Background(), OperationRequest{
		Operation: OpWithdrawCollateral,
		Requester: "0x01",
		Market:    testMarket(),
		Amount:    big.NewInt(1),
	})
	assert.Same(t, f.sdk.sendErr, err)
	assert.Equal(t, "EQsender", op.Sender)

	stored, err := f.svc.GetOperation(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, "EQsender", stored.Sender)
	assert.Empty(t, stored.Caller)
}

func TestExecuteWithoutSenderJournalsNoSender(t *testing.T) {
	f := newFixture(errors.New("user rejected"))

	op, _, err := f.svc.Execute(context.Background(), OperationRequest{Operation: OpBorrow, Market: testMarket(), Amount: big.NewInt(1)})
	require.Error(t, err)
	assert.Empty(t, op.Sender)
}
