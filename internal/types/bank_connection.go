package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type BankConnectionStatus string

const (
	BankConnectionStatusPending   BankConnectionStatus = "pending"
	BankConnectionStatusConnected BankConnectionStatus = "connected"
	BankConnectionStatusFailed    BankConnectionStatus = "failed"
)

type BankConnection struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID    *uuid.UUID           `gorm:"type:uuid;index" json:"session_id,omitempty"`
	Session      *IngestSession       `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	BankName     string               `gorm:"size:64;not null" json:"bank_name"`
	Status       BankConnectionStatus `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	Credentials  datatypes.JSON       `gorm:"type:jsonb" json:"-"`
	ErrorMessage *string              `gorm:"size:500" json:"error_message,omitempty"`
	LastSyncedAt *time.Time           `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time            `gorm:"not null" json:"created_at"`
}

func (BankConnection) TableName() string { return "bank_connections" }
