// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"lending-gateway/internal/metrics"
	"lending-gateway/internal/models"
)

// OperationFilter narrows List queries; empty fields match everything.
type OperationFilter struct {
	Requester string
	Operation string
	Status    models.LendingOperationStatus
}

// LendingOperationRepository defines the interface for the operation journal
type LendingOperationRepository interface {
	Create(ctx context.Context, op *models.LendingOperation) error
	GetByID(ctx context.Context, id string) (*models.LendingOperation, error)
	MarkSubmitted(ctx context.Context, id string, sender, caller string, shardCount int, shardsKey string, linkerTime int64) error
	MarkFailed(ctx context.Context, id string, sender, lastError string) error
	List(ctx context.Context, filter OperationFilter, page, pageSize int) ([]*models.LendingOperation, int64, error)
}

// lendingOperationRepository implements LendingOperationRepository
type lendingOperationRepository struct {
	db *gorm.DB
}

// observe records the duration of one query under queryType
func observe(queryType string) func() {
	start := time.Now()
	return func() {
		metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
	}
}

// NewLendingOperationRepository creates a new LendingOperationRepository instance
func NewLendingOperationRepository(db *gorm.DB) LendingOperationRepository {
	return &lendingOperationRepository{db: db}
}

// Create inserts a new journal entry
func (r *lendingOperationRepository) Create(ctx context.Context, op *models.LendingOperation) error {
	defer observe("create")()
	return r.db.WithContext(ctx).Create(op).Error
}

// GetByID retrieves an operation by ID
func (r *lendingOperationRepository) GetByID(ctx context.Context, id string) (*models.LendingOperation, error) {
	defer observe("get")()
	var op models.LendingOperation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&op).Error
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// MarkSubmitted records the sequencer's transaction linker. Only pending
// rows move; a second call is a no-op.
func (r *lendingOperationRepository) MarkSubmitted(ctx context.Context, id string, sender, caller string, shardCount int, shardsKey string, linkerTime int64) error {
	defer observe("update")()
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.LendingOperation{}).
		Where("id = ? AND status = ?", id, models.LendingOperationStatusPending).
		Updates(map[string]interface{}{
			"status":       models.LendingOperationStatusSubmitted,
			"sender":       sender,
			"caller":       caller,
			"shard_count":  shardCount,
			"shards_key":   shardsKey,
			"linker_time":  linkerTime,
			"submitted_at": &now,
		}).Error
}

// MarkFailed records why an operation did not reach the sequencer
func (r *lendingOperationRepository) MarkFailed(ctx context.Context, id string, sender, lastError string) error {
	defer observe("update")()
	return r.db.WithContext(ctx).
		Model(&models.LendingOperation{}).
		Where("id = ? AND status = ?", id, models.LendingOperationStatusPending).
		Updates(map[string]interface{}{
			"status":     models.LendingOperationStatusFailed,
			"sender":     sender,
			"last_error": lastError,
		}).Error
}

// List returns one page of operations, newest first, and the total count
func (r *lendingOperationRepository) List(ctx context.Context, filter OperationFilter, page, pageSize int) ([]*models.LendingOperation, int64, error) {
	defer observe("list")()
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).Model(&models.LendingOperation{})
	if filter.Requester != "" {
		query = query.Where("requester = ?", filter.Requester)
	}
	if filter.Operation != "" {
		query = query.Where("operation = ?", filter.Operation)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ops []*models.LendingOperation
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&ops).Error
	if err != nil {
		return nil, 0, err
	}

	return ops, total, nil
}
