package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/types"
)

type AgentFailureRepo interface {
	GetByAgentAndTrace(ctx context.Context, tx *gorm.DB, agentName, traceID string) (*types.AgentFailure, error)
	CountByAgentAndTrace(ctx context.Context, tx *gorm.DB, agentName, traceID string) (int64, error)
	Create(ctx context.Context, tx *gorm.DB, record *types.AgentFailure) error
	Save(ctx context.Context, tx *gorm.DB, record *types.AgentFailure) error
	DeleteByAgentAndTrace(ctx context.Context, tx *gorm.DB, agentName, traceID string) error
}

type agentFailureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAgentFailureRepo(db *gorm.DB, baseLog *logger.Logger) AgentFailureRepo {
	return &agentFailureRepo{
		db:  db,
		log: baseLog.With("repo", "AgentFailureRepo"),
	}
}

func (r *agentFailureRepo) GetByAgentAndTrace(ctx context.Context, tx *gorm.DB, agentName, traceID string) (*types.AgentFailure, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var record types.AgentFailure
	err := transaction.WithContext(ctx).
		Where("agent_name = ? AND trace_id = ?", agentName, traceID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *agentFailureRepo) CountByAgentAndTrace(ctx context.Context, tx *gorm.DB, agentName, traceID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.AgentFailure{}).
		Where("agent_name = ? AND trace_id = ?", agentName, traceID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *agentFailureRepo) Create(ctx context.Context, tx *gorm.DB, record *types.AgentFailure) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(record).Error
}

func (r *agentFailureRepo) Save(ctx context.Context, tx *gorm.DB, record *types.AgentFailure) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(record).Error
}

func (r *agentFailureRepo) DeleteByAgentAndTrace(ctx context.Context, tx *gorm.DB, agentName, traceID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("agent_name = ? AND trace_id = ?", agentName, traceID).
		Delete(&types.AgentFailure{}).Error
}
