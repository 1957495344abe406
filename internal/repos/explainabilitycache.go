package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/types"
)

type ExplainabilityCacheRepo interface {
	GetByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (*types.ExplainabilityCache, error)
	Create(ctx context.Context, tx *gorm.DB, record *types.ExplainabilityCache) error
	Save(ctx context.Context, tx *gorm.DB, record *types.ExplainabilityCache) error
}

type explainabilityCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExplainabilityCacheRepo(db *gorm.DB, baseLog *logger.Logger) ExplainabilityCacheRepo {
	return &explainabilityCacheRepo{
		db:  db,
		log: baseLog.With("repo", "ExplainabilityCacheRepo"),
	}
}

func (r *explainabilityCacheRepo) GetByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (*types.ExplainabilityCache, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var record types.ExplainabilityCache
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

func (r *explainabilityCacheRepo) Create(ctx context.Context, tx *gorm.DB, record *types.ExplainabilityCache) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(record).Error
}

func (r *explainabilityCacheRepo) Save(ctx context.Context, tx *gorm.DB, record *types.ExplainabilityCache) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(record).Error
}
