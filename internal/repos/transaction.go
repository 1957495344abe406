package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/types"
)

type TransactionRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, transactions []*types.Transaction) error
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
}

type transactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTransactionRepo(db *gorm.DB, baseLog *logger.Logger) TransactionRepo {
	return &transactionRepo{
		db:  db,
		log: baseLog.With("repo", "TransactionRepo"),
	}
}

func (r *transactionRepo) CreateBatch(ctx context.Context, tx *gorm.DB, transactions []*types.Transaction) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(transactions) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&transactions).Error
}

func (r *transactionRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Transaction{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
