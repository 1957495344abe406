package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/types"
)

type IngestSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, session *types.IngestSession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.IngestSession, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type ingestSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestSessionRepo(db *gorm.DB, baseLog *logger.Logger) IngestSessionRepo {
	return &ingestSessionRepo{
		db:  db,
		log: baseLog.With("repo", "IngestSessionRepo"),
	}
}

func (r *ingestSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.IngestSession) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(session).Error
}

func (r *ingestSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.IngestSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var session types.IngestSession
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *ingestSessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.IngestSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}
