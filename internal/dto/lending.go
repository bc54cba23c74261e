package dto

import (
	"time"

	"lending-gateway/internal/lending"
	"lending-gateway/internal/models"
)

// ==================== Lending DTOs ====================
// Amounts are base-unit decimal strings; addresses are 0x hex.

// MarketRequest Morpho market parameters
type MarketRequest struct {
	LoanToken       string `json:"loan_token" binding:"required"`
	CollateralToken string `json:"collateral_token" binding:"required"`
	Oracle          string `json:"oracle" binding:"required"`
	Irm             string `json:"irm" binding:"required"`
	Lltv            string `json:"lltv" binding:"required"`
}

// DepositRequest POST /api/lending/deposit
type DepositRequest struct {
	Token  string `json:"token" binding:"required"`
	Vault  string `json:"vault" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// RedeemRequest POST /api/lending/redeem
type RedeemRequest struct {
	Vault  string `json:"vault" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// MarketAmountRequest borrow, supply-collateral and withdraw-collateral
type MarketAmountRequest struct {
	Market MarketRequest `json:"market" binding:"required"`
	Amount string        `json:"amount" binding:"required"`
}

// SupplyCollateralAndBorrowRequest POST /api/lending/supply-collateral-and-borrow
type SupplyCollateralAndBorrowRequest struct {
	Market     MarketRequest `json:"market" binding:"required"`
	Amount     string        `json:"amount" binding:"required"`
	AmountLoan string        `json:"amount_loan" binding:"required"`
}

// RepayRequest POST /api/lending/repay; shares is optional
type RepayRequest struct {
	Market MarketRequest `json:"market" binding:"required"`
	Amount string        `json:"amount" binding:"required"`
	Shares string        `json:"shares"`
}

// RepayAndWithdrawCollateralRequest POST /api/lending/repay-and-withdraw-collateral
type RepayAndWithdrawCollateralRequest struct {
	Market     MarketRequest `json:"market" binding:"required"`
	Amount     string        `json:"amount" binding:"required"`
	AmountLoan string        `json:"amount_loan" binding:"required"`
	Shares     string        `json:"shares"`
}

// OperationResponse result of a submitted operation
type OperationResponse struct {
	Success   bool                       `json:"success"`
	Operation *models.LendingOperation   `json:"operation,omitempty"`
	Linker    *lending.TransactionLinker `json:"linker,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// OperationListResponse paged journal listing
type OperationListResponse struct {
	Success    bool                       `json:"success"`
	Operations []*models.LendingOperation `json:"operations"`
	Total      int64                      `json:"total"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"page_size"`
}

// NetworkResponse GET /api/network
type NetworkResponse struct {
	Mode               string    `json:"mode"`
	ProxyAddress       string    `json:"proxy_address"`
	NativeAssetAddress string    `json:"native_asset_address"`
	Timestamp          time.Time `json:"timestamp"`
}
