package models

import (
	"time"
)

// LendingOperationStatus lifecycle of a journaled operation
type LendingOperationStatus string

const (
	LendingOperationStatusPending   LendingOperationStatus = "pending"   // accepted, not yet acknowledged by the sequencer
	LendingOperationStatusSubmitted LendingOperationStatus = "submitted" // sequencer returned a transaction linker
	LendingOperationStatusFailed    LendingOperationStatus = "failed"
)

// LendingOperation one dispatched lending call
type LendingOperation struct {
	ID        string                 `json:"id" gorm:"primaryKey;size:36"` // UUID
	Operation string                 `json:"operation" gorm:"not null;size:64;index"`
	Method    string                 `json:"method" gorm:"not null;size:64"` // proxy method name
	Network   string                 `json:"network" gorm:"not null;size:16"`
	Status    LendingOperationStatus `json:"status" gorm:"not null;default:pending;size:16;index"`

	// Requester is the authenticated EVM address; "cli" for local submissions.
	Requester string `json:"requester" gorm:"not null;size:42;index"`
	Sender    string `json:"sender" gorm:"size:128"` // TVM sender address

	Params string `json:"params" gorm:"type:text"` // request parameters (JSON)

	// Attached asset (empty for borrow and withdrawCollateral)
	AssetToken  string `json:"asset_token" gorm:"size:42"`
	AssetAmount string `json:"asset_amount" gorm:"size:80"`

	// Transaction linker returned by the sequencer
	Caller     string `json:"caller" gorm:"size:128"`
	ShardCount int    `json:"shard_count"`
	ShardsKey  string `json:"shards_key" gorm:"size:80;index"`
	LinkerTime int64  `json:"linker_timestamp"`

	LastError string `json:"last_error" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

func (LendingOperation) TableName() string {
	return "lending_operations"
}

// IsTerminal reports whether the status will not change again
func (o *LendingOperation) IsTerminal() bool {
	return o.Status == LendingOperationStatusSubmitted || o.Status == LendingOperationStatusFailed
}
