package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/types"
)

type ComplianceCheckRepo interface {
	GetByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (*types.ComplianceCheck, error)
	ExistsByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, record *types.ComplianceCheck) error
	Save(ctx context.Context, tx *gorm.DB, record *types.ComplianceCheck) error
}

type complianceCheckRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewComplianceCheckRepo(db *gorm.DB, baseLog *logger.Logger) ComplianceCheckRepo {
	return &complianceCheckRepo{
		db:  db,
		log: baseLog.With("repo", "ComplianceCheckRepo"),
	}
}

func (r *complianceCheckRepo) GetByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (*types.ComplianceCheck, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var record types.ComplianceCheck
	err := transaction.WithContext(ctx).
		Where("trace_id = ?", traceID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *complianceCheckRepo) ExistsByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.ComplianceCheck{}).
		Where("trace_id = ?", traceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *complianceCheckRepo) Create(ctx context.Context, tx *gorm.DB, record *types.ComplianceCheck) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(record).Error
}

func (r *complianceCheckRepo) Save(ctx context.Context, tx *gorm.DB, record *types.ComplianceCheck) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(record).Error
}
