package types

import (
	"gorm.io/datatypes"
)

type RouteSelection struct {
	ID               uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID          string         `gorm:"size:64;uniqueIndex;not null" json:"trace_id"`
	FraudFlag        *FraudFlag     `gorm:"constraint:OnDelete:CASCADE;foreignKey:TraceID;references:TraceID" json:"fraud_flag,omitempty"`
	RecommendedRoute datatypes.JSON `gorm:"type:jsonb" json:"recommended_route,omitempty"`
	Alternatives     datatypes.JSON `gorm:"type:jsonb" json:"alternatives,omitempty"`
	Confidence       float64        `gorm:"not null;check:ck_route_confidence_range,confidence >= 0.0 AND confidence <= 1.0" json:"confidence"`
	AgentLifecycle   `gorm:"embedded"`
}

func (RouteSelection) TableName() string { return "route_selection" }

func (RouteSelection) DefaultNextAgent() string { return AgentExplainability }
