package handlers

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lending-gateway/internal/auth"
	"lending-gateway/internal/dto"
	"lending-gateway/internal/lending"
	"lending-gateway/internal/models"
	"lending-gateway/internal/repository"
	"lending-gateway/internal/services"
	"lending-gateway/internal/utils"
)

// LendingOperations is the service behind the lending endpoints
type LendingOperations interface {
	Execute(ctx context.Context, req services.OperationRequest) (*models.LendingOperation, *lending.TransactionLinker, error)
	GetOperation(ctx context.Context, id string) (*models.LendingOperation, error)
	ListOperations(ctx context.Context, filter repository.OperationFilter, page, pageSize int) ([]*models.LendingOperation, int64, error)
	Network() (string, lending.Network)
}

// LendingHandler lending operation endpoints
type LendingHandler struct {
	ops LendingOperations
	log *logrus.Entry
}

// NewLendingHandler create lending handler
func NewLendingHandler(ops LendingOperations, logger *logrus.Logger) *LendingHandler {
	return &LendingHandler{ops: ops, log: logger.WithField("component", "lending_handler")}
}

// DepositHandler POST /api/lending/deposit
func (h *LendingHandler) DepositHandler(c *gin.Context) {
	var body dto.DepositRequest
	if !bind(c, &body) {
		return
	}
	req := services.OperationRequest{Operation: services.OpDeposit}
	err := firstError(
		parseAddressInto(&req.Token, "token", body.Token),
		parseAddressInto(&req.Vault, "vault", body.Vault),
		parseAmountInto(&req.Amount, "amount", body.Amount),
	)
	h.submit(c, req, err)
}

// RedeemHandler POST /api/lending/redeem
func (h *LendingHandler) RedeemHandler(c *gin.Context) {
	var body dto.RedeemRequest
	if !bind(c, &body) {
		return
	}
	req := services.OperationRequest{Operation: services.OpRedeem}
	err := firstError(
		parseAddressInto(&req.Vault, "vault", body.Vault),
		parseAmountInto(&req.Amount, "amount", body.Amount),
	)
	h.submit(c, req, err)
}

// BorrowHandler POST /api/lending/borrow
func (h *LendingHandler) BorrowHandler(c *gin.Context) {
	h.marketAmount(c, services.OpBorrow)
}

// SupplyCollateralHandler POST /api/lending/supply-collateral
func (h *LendingHandler) SupplyCollateralHandler(c *gin.Context) {
	h.marketAmount(c, services.OpSupplyCollateral)
}

// WithdrawCollateralHandler POST /api/lending/withdraw-collateral
func (h *LendingHandler) WithdrawCollateralHandler(c *gin.Context) {
	h.marketAmount(c, services.OpWithdrawCollateral)
}

func (h *LendingHandler) marketAmount(c *gin.Context, operation string) {
	var body dto.MarketAmountRequest
	if !bind(c, &body) {
		return
	}
	req := services.OperationRequest{Operation: operation}
	err := firstError(
		parseMarketInto(&req.Market, body.Market),
		parseAmountInto(&req.Amount, "amount", body.Amount),
	)
	h.submit(c, req, err)
}

// SupplyCollateralAndBorrowHandler POST /api/lending/supply-collateral-and-borrow
func (h *LendingHandler) SupplyCollateralAndBorrowHandler(c *gin.Context) {
	var body dto.SupplyCollateralAndBorrowRequest
	if !bind(c, &body) {
		return
	}
	req := services.OperationRequest{Operation: services.OpSupplyCollateralAndBorrow}
	err := firstError(
		parseMarketInto(&req.Market, body.Market),
		parseAmountInto(&req.Amount, "amount", body.Amount),
		parseAmountInto(&req.AmountLoan, "amount_loan", body.AmountLoan),
	)
	h.submit(c, req, err)
}

// RepayHandler POST /api/lending/repay
func (h *LendingHandler) RepayHandler(c *gin.Context) {
	var body dto.RepayRequest
	if !bind(c, &body) {
		return
	}
	req := services.OperationRequest{Operation: services.OpRepay}
	err := firstError(
		parseMarketInto(&req.Market, body.Market),
		parseAmountInto(&req.Amount, "amount", body.Amount),
		parseOptionalAmountInto(&req.Shares, "shares", body.Shares),
	)
	h.submit(c, req, err)
}

// RepayAndWithdrawCollateralHandler POST /api/lending/repay-and-withdraw-collateral
func (h *LendingHandler) RepayAndWithdrawCollateralHandler(c *gin.Context) {
	var body dto.RepayAndWithdrawCollateralRequest
	if !bind(c, &body) {
		return
	}
	req := services.OperationRequest{Operation: services.OpRepayAndWithdrawCollateral}
	err := firstError(
		parseMarketInto(&req.Market, body.Market),
		parseAmountInto(&req.Amount, "amount", body.Amount),
		parseAmountInto(&req.AmountLoan, "amount_loan", body.AmountLoan),
		parseOptionalAmountInto(&req.Shares, "shares", body.Shares),
	)
	h.submit(c, req, err)
}

// submit runs req for the authenticated user. parseErr is the result of
// decoding the request body.
func (h *LendingHandler) submit(c *gin.Context, req services.OperationRequest, parseErr error) {
	if parseErr != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_PARAMS", "Invalid parameters", parseErr.Error())
		return
	}
	req.Requester = c.GetString(auth.ContextUserAddress)

	op, linker, err := h.ops.Execute(c.Request.Context(), req)
	if err != nil {
		if op == nil {
			h.log.WithError(err).WithField("operation", req.Operation).Error("❌ Failed to accept lending operation")
			errorJSON(c, http.StatusInternalServerError, "OPERATION_NOT_RECORDED", "Failed to record operation", err.Error())
			return
		}
		c.JSON(http.StatusBadGateway, dto.OperationResponse{Success: false, Operation: op, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.OperationResponse{Success: true, Operation: op, Linker: linker})
}

// ListOperationsHandler GET /api/lending/operations?operation=&status=&page=&page_size=
func (h *LendingHandler) ListOperationsHandler(c *gin.Context) {
	filter := repository.OperationFilter{
		Requester: c.GetString(auth.ContextUserAddress),
		Operation: c.Query("operation"),
		Status:    models.LendingOperationStatus(c.Query("status")),
	}
	listOperations(c, h.ops, filter, h.log)
}

// GetOperationHandler GET /api/lending/operations/:id
func (h *LendingHandler) GetOperationHandler(c *gin.Context) {
	op, err := h.ops.GetOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errorJSON(c, http.StatusNotFound, "NOT_FOUND", "Operation not found", "")
			return
		}
		h.log.WithError(err).Error("❌ Failed to load operation")
		errorJSON(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to load operation", "")
		return
	}

	// Other users' operations are reported as missing.
	if op.Requester != c.GetString(auth.ContextUserAddress) {
		errorJSON(c, http.StatusNotFound, "NOT_FOUND", "Operation not found", "")
		return
	}

	c.JSON(http.StatusOK, dto.OperationResponse{Success: true, Operation: op})
}

// NetworkHandler GET /api/network
func (h *LendingHandler) NetworkHandler(c *gin.Context) {
	mode, network := h.ops.Network()
	c.JSON(http.StatusOK, dto.NetworkResponse{
		Mode:               mode,
		ProxyAddress:       network.Proxy.Hex(),
		NativeAssetAddress: network.NativeAsset.Hex(),
		Timestamp:          time.Now().UTC(),
	})
}

func listOperations(c *gin.Context, ops LendingOperations, filter repository.OperationFilter, log *logrus.Entry) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	list, total, err := ops.ListOperations(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		log.WithError(err).Error("❌ Failed to list operations")
		errorJSON(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to list operations", "")
		return
	}
	if list == nil {
		list = []*models.LendingOperation{}
	}

	c.JSON(http.StatusOK, dto.OperationListResponse{
		Success:    true,
		Operations: list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
	})
}

func bind(c *gin.Context, body interface{}) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request", err.Error())
		return false
	}
	return true
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func parseAddressInto(dst *common.Address, field, value string) error {
	addr, err := utils.ParseAddress(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = addr
	return nil
}

func parseAmountInto(dst **big.Int, field, value string) error {
	v, err := utils.ParseAmount(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = v
	return nil
}

func parseOptionalAmountInto(dst **big.Int, field, value string) error {
	v, err := utils.ParseOptionalAmount(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = v
	return nil
}

func parseMarketInto(dst *lending.MarketParams, m dto.MarketRequest) error {
	return firstError(
		parseAddressInto(&dst.LoanToken, "market.loan_token", m.LoanToken),
		parseAddressInto(&dst.CollateralToken, "market.collateral_token", m.CollateralToken),
		parseAddressInto(&dst.Oracle, "market.oracle", m.Oracle),
		parseAddressInto(&dst.Irm, "market.irm", m.Irm),
		parseAmountInto(&dst.Lltv, "market.lltv", m.Lltv),
	)
}
