package types

import (
	"gorm.io/datatypes"
)

type ExplainabilityCache struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID            string          `gorm:"size:64;uniqueIndex;not null" json:"trace_id"`
	RouteSelection     *RouteSelection `gorm:"constraint:OnDelete:CASCADE;foreignKey:TraceID;references:TraceID" json:"route_selection,omitempty"`
	Explanation        string          `gorm:"type:text;not null" json:"explanation"`
	SupportingEvidence datatypes.JSON  `gorm:"type:jsonb" json:"supporting_evidence,omitempty"`
	// Embedding holds the derived vector as little-endian float32 bytes,
	// dimension * 4 bytes long. Regenerated whenever Explanation changes.
	Embedding      []byte `gorm:"type:bytea" json:"-"`
	AgentLifecycle `gorm:"embedded"`
}

func (ExplainabilityCache) TableName() string { return "explainability_cache" }

func (ExplainabilityCache) DefaultNextAgent() string { return NextAgentNone }
