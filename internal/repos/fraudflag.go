package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/types"
)

type FraudFlagRepo interface {
	GetByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (*types.FraudFlag, error)
	ExistsByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, record *types.FraudFlag) error
	Save(ctx context.Context, tx *gorm.DB, record *types.FraudFlag) error
}

type fraudFlagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFraudFlagRepo(db *gorm.DB, baseLog *logger.Logger) FraudFlagRepo {
	return &fraudFlagRepo{
		db:  db,
		log: baseLog.With("repo", "FraudFlagRepo"),
	}
}

func (r *fraudFlagRepo) GetByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (*types.FraudFlag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var record types.FraudFlag
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

func (r *fraudFlagRepo) ExistsByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.FraudFlag{}).
		Where("trace_id = ?", traceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *fraudFlagRepo) Create(ctx context.Context, tx *gorm.DB, record *types.FraudFlag) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(record).Error
}

func (r *fraudFlagRepo) Save(ctx context.Context, tx *gorm.DB, record *types.FraudFlag) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(record).Error
}
