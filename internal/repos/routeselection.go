package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/types"
)

type RouteSelectionRepo interface {
	GetByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (*types.RouteSelection, error)
	ExistsByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, record *types.RouteSelection) error
	Save(ctx context.Context, tx *gorm.DB, record *types.RouteSelection) error
}

type routeSelectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRouteSelectionRepo(db *gorm.DB, baseLog *logger.Logger) RouteSelectionRepo {
	return &routeSelectionRepo{
		db:  db,
		log: baseLog.With("repo", "RouteSelectionRepo"),
	}
}

func (r *routeSelectionRepo) GetByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (*types.RouteSelection, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var record types.RouteSelection
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

func (r *routeSelectionRepo) ExistsByTraceID(ctx context.Context, tx *gorm.DB, traceID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.RouteSelection{}).
		Where("trace_id = ?", traceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *routeSelectionRepo) Create(ctx context.Context, tx *gorm.DB, record *types.RouteSelection) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(record).Error
}

func (r *routeSelectionRepo) Save(ctx context.Context, tx *gorm.DB, record *types.RouteSelection) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(record).Error
}
