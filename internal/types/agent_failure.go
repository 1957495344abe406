package types

import (
	"time"

	"gorm.io/datatypes"
)

type AgentFailure struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	AgentName     string         `gorm:"size:64;not null;uniqueIndex:ux_agent_failures_agent_trace" json:"agent_name"`
	TraceID       string         `gorm:"size:64;not null;uniqueIndex:ux_agent_failures_agent_trace" json:"trace_id"`
	ErrorPayload  datatypes.JSON `gorm:"type:jsonb" json:"error_payload,omitempty"`
	RetryCount    int            `gorm:"not null;default:0" json:"retry_count"`
	LastAttemptAt time.Time      `gorm:"not null" json:"last_attempt_at"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (AgentFailure) TableName() string { return "agent_failures" }
