package types

import (
	"fmt"
	"time"
)

type AgentStatus string

const (
	AgentStatusPending  AgentStatus = "pending"
	AgentStatusComplete AgentStatus = "complete"
	AgentStatusError    AgentStatus = "error"
)

// ParseAgentStatus coerces an optional status token. An empty token maps to
// "complete" so agents that only report success stay terse on the wire.
func ParseAgentStatus(raw string) (AgentStatus, error) {
	if raw == "" {
		return AgentStatusComplete, nil
	}
	switch AgentStatus(raw) {
	case AgentStatusPending, AgentStatusComplete, AgentStatusError:
		return AgentStatus(raw), nil
	default:
		return "", fmt.Errorf("invalid agent status %q", raw)
	}
}

// Pipeline order is fixed: compliance -> fraud_detection -> routing -> explainability.
const (
	AgentCompliance     = "compliance"
	AgentFraudDetection = "fraud_detection"
	AgentRouting        = "routing"
	AgentExplainability = "explainability"
	NextAgentNone       = "none"
)

// AgentLifecycle carries the fields every stage record shares. Each stage
// record embeds its own copy; only the data shape varies per stage.
type AgentLifecycle struct {
	Status    AgentStatus `gorm:"type:varchar(16);not null;default:complete" json:"status"`
	NextAgent string      `gorm:"size:64;not null" json:"next_agent"`
	CreatedAt time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time   `gorm:"not null" json:"updated_at"`
}
