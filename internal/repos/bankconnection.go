package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/types"
)

type BankConnectionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, connection *types.BankConnection) error
}

type bankConnectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBankConnectionRepo(db *gorm.DB, baseLog *logger.Logger) BankConnectionRepo {
	return &bankConnectionRepo{
		db:  db,
		log: baseLog.With("repo", "BankConnectionRepo"),
	}
}

func (r *bankConnectionRepo) Create(ctx context.Context, tx *gorm.DB, connection *types.BankConnection) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(connection).Error
}
