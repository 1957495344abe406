package types

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ComplianceCheck struct {
	ID                uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID           string         `gorm:"size:64;uniqueIndex;not null" json:"trace_id"`
	SessionID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	Session           *IngestSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	RawInput          datatypes.JSON `gorm:"type:jsonb" json:"raw_input,omitempty"`
	ComplianceSummary datatypes.JSON `gorm:"type:jsonb" json:"compliance_summary,omitempty"`
	RiskScore         *float64       `gorm:"check:ck_compliance_risk_range,risk_score IS NULL OR (risk_score >= 0.0 AND risk_score <= 1.0)" json:"risk_score,omitempty"`
	AgentLifecycle    `gorm:"embedded"`
}

func (ComplianceCheck) TableName() string { return "compliance_checks" }

// DefaultNextAgent is the fixed hand-off hint for a freshly recorded stage.
func (ComplianceCheck) DefaultNextAgent() string { return AgentFraudDetection }
