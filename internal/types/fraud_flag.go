package types

import (
	"gorm.io/datatypes"
)

type FraudFlag struct {
	ID               uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID          string           `gorm:"size:64;uniqueIndex;not null" json:"trace_id"`
	ComplianceCheck  *ComplianceCheck `gorm:"constraint:OnDelete:CASCADE;foreignKey:TraceID;references:TraceID" json:"compliance_check,omitempty"`
	ProbabilityScore float64          `gorm:"not null;check:ck_fraud_probability_range,probability_score >= 0.0 AND probability_score <= 1.0" json:"probability_score"`
	FlaggedFeatures  datatypes.JSON   `gorm:"type:jsonb" json:"flagged_features,omitempty"`
	ExplanatoryNotes *string          `gorm:"type:text" json:"explanatory_notes,omitempty"`
	AgentLifecycle   `gorm:"embedded"`
}

func (FraudFlag) TableName() string { return "fraud_flags" }

func (FraudFlag) DefaultNextAgent() string { return AgentRouting }
