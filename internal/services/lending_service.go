package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/events"
	"lending-gateway/internal/lending"
	"lending-gateway/internal/metrics"
	"lending-gateway/internal/models"
	"lending-gateway/internal/repository"
)

// Operation names as journaled and used in event subjects
const (
	OpDeposit                    = "deposit"
	OpBorrow                     = "borrow"
	OpRedeem                     = "redeem"
	OpSupplyCollateral           = "supplyCollateral"
	OpSupplyCollateralAndBorrow  = "supplyCollateralAndBorrow"
	OpRepay                      = "repay"
	OpWithdrawCollateral         = "withdrawCollateral"
	OpRepayAndWithdrawCollateral = "repayAndWithdrawCollateral"
)

var operationMethods = map[string]string{
	OpDeposit:                    lending.MethodDeposit,
	OpBorrow:                     lending.MethodBorrow,
	OpRedeem:                     lending.MethodRedeem,
	OpSupplyCollateral:           lending.MethodSupplyCollateral,
	OpSupplyCollateralAndBorrow:  lending.MethodSupplyCollateralAndBorrow,
	OpRepay:                      lending.MethodRepay,
	OpWithdrawCollateral:         lending.MethodWithdrawCollateral,
	OpRepayAndWithdrawCollateral: lending.MethodRepayAndWithdrawCollateral,
}

// MethodFor returns the proxy method for an operation name
func MethodFor(operation string) (string, bool) {
	m, ok := operationMethods[operation]
	return m, ok
}

// OperationRequest carries the arguments of any lending operation. Fields an
// operation does not use are ignored.
type OperationRequest struct {
	Operation  string
	Requester  string
	Token      common.Address // deposit
	Vault      common.Address // deposit, redeem
	Market     lending.MarketParams
	Amount     *big.Int
	AmountLoan *big.Int
	Shares     *big.Int
}

// OperationPusher delivers live updates to connected clients
type OperationPusher interface {
	PushOperationUpdate(op *models.LendingOperation)
}

// LendingService journals, dispatches and announces lending operations
type LendingService struct {
	dispatcher *lending.Dispatcher
	repo       repository.LendingOperationRepository
	publisher  events.Publisher
	pusher     OperationPusher
	network    string
	log        *logrus.Entry
}

// NewLendingService wires the service; publisher and pusher may be nil.
func NewLendingService(
	dispatcher *lending.Dispatcher,
	repo repository.LendingOperationRepository,
	publisher events.Publisher,
	pusher OperationPusher,
	network string,
	logger *logrus.Logger,
) *LendingService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LendingService{
		dispatcher: dispatcher,
		repo:       repo,
		publisher:  publisher,
		pusher:     pusher,
		network:    network,
		log:        logger.WithField("component", "lending_service"),
	}
}

// Execute journals req, submits it and records the outcome. The returned
// operation reflects the final journal state; a dispatch error is returned
// unchanged alongside it.
func (s *LendingService) Execute(ctx context.Context, req OperationRequest) (*models.LendingOperation, *lending.TransactionLinker, error) {
	method, ok := MethodFor(req.Operation)
	if !ok {
		return nil, nil, fmt.Errorf("unknown operation %q", req.Operation)
	}

	params, err := json.Marshal(journalParams(req))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode operation params: %w", err)
	}

	op := &models.LendingOperation{
		ID:        uuid.NewString(),
		Operation: req.Operation,
		Method:    method,
		Network:   s.network,
		Status:    models.LendingOperationStatusPending,
		Requester: strings.ToLower(req.Requester),
		Params:    string(params),
	}
	if token, ok := attachedToken(req); ok {
		op.AssetToken = token.Hex()
		op.AssetAmount = amountString(req.Amount)
	}

	if err := s.repo.Create(ctx, op); err != nil {
		return nil, nil, fmt.Errorf("failed to journal operation: %w", err)
	}
	s.announce(op)

	senders := &senderRecorder{SenderFactory: s.dispatcher.Senders()}
	start := time.Now()
	linker, dispatchErr := Dispatch(ctx, s.dispatcher.WithSenders(senders), req)
	metrics.OperationDuration.WithLabelValues(req.Operation).Observe(time.Since(start).Seconds())

	entry := s.log.WithFields(logrus.Fields{
		"id":        op.ID,
		"operation": op.Operation,
		"requester": op.Requester,
	})

	// The outcome is journaled even when the caller has gone away.
	recordCtx := context.WithoutCancel(ctx)

	op.Sender = senders.address

	if dispatchErr != nil {
		metrics.OperationsFailed.WithLabelValues(req.Operation).Inc()
		op.Status = models.LendingOperationStatusFailed
		op.LastError = dispatchErr.Error()
		if err := s.repo.MarkFailed(recordCtx, op.ID, op.Sender, op.LastError); err != nil {
			entry.WithError(err).Error("❌ Failed to journal operation failure")
		}
		entry.WithError(dispatchErr).Warn("⚠️ Lending operation failed")
		s.announce(op)
		return op, nil, dispatchErr
	}

	metrics.OperationsSubmitted.WithLabelValues(req.Operation).Inc()
	now := time.Now()
	op.Status = models.LendingOperationStatusSubmitted
	op.Caller = linker.Caller
	op.ShardCount = linker.ShardCount
	op.ShardsKey = linker.ShardsKey
	op.LinkerTime = linker.Timestamp
	op.SubmittedAt = &now
	if err := s.repo.MarkSubmitted(recordCtx, op.ID, op.Sender, op.Caller, op.ShardCount, op.ShardsKey, op.LinkerTime); err != nil {
		entry.WithError(err).Error("❌ Failed to journal submitted operation")
	}
	entry.WithField("shardsKey", op.ShardsKey).Info("✅ Lending operation submitted")
	s.announce(op)

	linker.OperationID = op.ID
	return op, linker, nil
}

// Dispatch routes req to the matching dispatcher operation without journaling.
func Dispatch(ctx context.Context, d *lending.Dispatcher, req OperationRequest) (*lending.TransactionLinker, error) {
	switch req.Operation {
	case OpDeposit:
		return d.Deposit(ctx, req.Token, req.Vault, req.Amount)
	case OpBorrow:
		return d.Borrow(ctx, req.Market, req.Amount)
	case OpRedeem:
		return d.Redeem(ctx, req.Vault, req.Amount)
	case OpSupplyCollateral:
		return d.SupplyCollateral(ctx, req.Market, req.Amount)
	case OpSupplyCollateralAndBorrow:
		return d.SupplyCollateralAndBorrow(ctx, req.Market, req.Amount, req.AmountLoan)
	case OpRepay:
		return d.Repay(ctx, req.Market, req.Amount, req.Shares)
	case OpWithdrawCollateral:
		return d.WithdrawCollateral(ctx, req.Market, req.Amount)
	case OpRepayAndWithdrawCollateral:
		return d.RepayAndWithdrawCollateral(ctx, req.Market, req.Amount, req.AmountLoan, req.Shares)
	}
	return nil, fmt.Errorf("unknown operation %q", req.Operation)
}

// Encode returns the proxy method and ABI payload req would submit.
func Encode(req OperationRequest) (string, []byte, error) {
	method, ok := MethodFor(req.Operation)
	if !ok {
		return "", nil, fmt.Errorf("unknown operation %q", req.Operation)
	}

	var (
		encoded []byte
		err     error
	)
	m := req.Market
	switch req.Operation {
	case OpDeposit:
		encoded, err = lending.EncodeDepositCall(req.Vault, req.Amount)
	case OpRedeem:
		encoded, err = lending.EncodeRedeemCall(req.Vault, req.Amount)
	case OpBorrow:
		encoded, err = lending.EncodeBorrowCall(m, req.Amount)
	case OpRepay:
		encoded, err = lending.EncodeRepayCall(m, req.Amount, req.Shares)
	case OpSupplyCollateral, OpWithdrawCollateral:
		encoded, err = lending.EncodeCollateralCall(m, req.Amount)
	case OpSupplyCollateralAndBorrow:
		encoded, err = lending.EncodeSupplyCollateralAndBorrowCall(m, req.Amount, req.AmountLoan)
	case OpRepayAndWithdrawCollateral:
		encoded, err = lending.EncodeRepayAndWithdrawCollateralCall(m, req.Amount, req.AmountLoan, req.Shares)
	}
	if err != nil {
		return "", nil, err
	}
	return method, encoded, nil
}

// senderRecorder remembers which sender a single dispatch acquired.
type senderRecorder struct {
	lending.SenderFactory
	address string
}

func (r *senderRecorder) GetSender(ctx context.Context) (lending.Sender, error) {
	sender, err := r.SenderFactory.GetSender(ctx)
	if err == nil {
		r.address = sender.Address()
	}
	return sender, err
}

func (s *LendingService) announce(op *models.LendingOperation) {
	if err := s.publisher.PublishOperation(events.NewOperationEvent(op)); err != nil {
		s.log.WithError(err).WithField("id", op.ID).Warn("⚠️ Failed to publish operation event")
	}
	if s.pusher != nil {
		s.pusher.PushOperationUpdate(op)
	}
}

// GetOperation returns one journaled operation
func (s *LendingService) GetOperation(ctx context.Context, id string) (*models.LendingOperation, error) {
	return s.repo.GetByID(ctx, id)
}

// ListOperations returns a page of journaled operations
func (s *LendingService) ListOperations(ctx context.Context, filter repository.OperationFilter, page, pageSize int) ([]*models.LendingOperation, int64, error) {
	filter.Requester = strings.ToLower(filter.Requester)
	return s.repo.List(ctx, filter, page, pageSize)
}

// Network returns the dispatcher's resolved addresses and the mode name
func (s *LendingService) Network() (string, lending.Network) {
	return s.network, s.dispatcher.Network()
}

// attachedToken is the EVM token whose value travels with the operation.
func attachedToken(req OperationRequest) (common.Address, bool) {
	switch req.Operation {
	case OpDeposit:
		return req.Token, true
	case OpRedeem:
		return req.Vault, true
	case OpSupplyCollateral, OpSupplyCollateralAndBorrow:
		return req.Market.CollateralToken, true
	case OpRepay, OpRepayAndWithdrawCollateral:
		return req.Market.LoanToken, true
	}
	return common.Address{}, false
}

type marketJSON struct {
	LoanToken       string `json:"loan_token"`
	CollateralToken string `json:"collateral_token"`
	Oracle          string `json:"oracle"`
	Irm             string `json:"irm"`
	Lltv            string `json:"lltv"`
}

type paramsJSON struct {
	Token      string      `json:"token,omitempty"`
	Vault      string      `json:"vault,omitempty"`
	Market     *marketJSON `json:"market,omitempty"`
	Amount     string      `json:"amount,omitempty"`
	AmountLoan string      `json:"amount_loan,omitempty"`
	Shares     string      `json:"shares,omitempty"`
}

func journalParams(req OperationRequest) paramsJSON {
	p := paramsJSON{
		Amount:     amountString(req.Amount),
		AmountLoan: optionalAmount(req.AmountLoan),
		Shares:     optionalAmount(req.Shares),
	}
	switch req.Operation {
	case OpDeposit:
		p.Token = req.Token.Hex()
		p.Vault = req.Vault.Hex()
	case OpRedeem:
		p.Vault = req.Vault.Hex()
	default:
		m := req.Market
		p.Market = &marketJSON{
			LoanToken:       m.LoanToken.Hex(),
			CollateralToken: m.CollateralToken.Hex(),
			Oracle:          m.Oracle.Hex(),
			Irm:             m.Irm.Hex(),
			Lltv:            amountString(m.Lltv),
		}
	}
	return p
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optionalAmount(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
