package types

import (
	"time"

	"github.com/google/uuid"
)

type IngestSource string

const (
	IngestSourceCSV  IngestSource = "csv"
	IngestSourceLive IngestSource = "live"
)

type IngestStatus string

const (
	IngestStatusReceived   IngestStatus = "received"
	IngestStatusProcessing IngestStatus = "processing"
	IngestStatusCompleted  IngestStatus = "completed"
	IngestStatusFailed     IngestStatus = "failed"
)

type IngestSession struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Source          IngestSource `gorm:"type:varchar(16);not null" json:"source"`
	Status          IngestStatus `gorm:"type:varchar(16);not null;default:received" json:"status"`
	RecordsIngested int          `gorm:"not null;default:0" json:"records_ingested"`
	ErrorMessage    *string      `gorm:"size:500" json:"error_message,omitempty"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (IngestSession) TableName() string { return "ingest_sessions" }
