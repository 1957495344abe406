package types

import (
	"time"

	"github.com/google/uuid"
)

type Transaction struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	Session          *IngestSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	Date             time.Time      `gorm:"type:date;not null" json:"date"`
	VendorID         string         `gorm:"size:64;not null" json:"vendor_id"`
	VendorName       string         `gorm:"size:255;not null" json:"vendor_name"`
	Amount           float64        `gorm:"type:numeric(18,2);not null" json:"amount"`
	Currency         string         `gorm:"size:16;not null" json:"currency"`
	PaymentMethod    string         `gorm:"size:32;not null" json:"payment_method"`
	BankName         string         `gorm:"size:64;not null" json:"bank_name"`
	GSTNumber        *string        `gorm:"size:32" json:"gst_number,omitempty"`
	PANNumber        *string        `gorm:"size:32" json:"pan_number,omitempty"`
	PaymentPurpose   *string        `gorm:"size:255" json:"payment_purpose,omitempty"`
	ReceivingBank    string         `gorm:"size:64;not null" json:"receiving_bank"`
	ReceivingAccount string         `gorm:"size:64;not null" json:"receiving_account"`
	Country          string         `gorm:"size:64;not null" json:"country"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }
