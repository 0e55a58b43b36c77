package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment is one initiated STK push and its observed outcome. The processor
// does not remember outcomes for us, so this row is the system of record for
// reconciliation.
type Payment struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	PhoneNumber       string         `gorm:"size:15;not null;index" json:"phone_number"`
	Amount            int64          `gorm:"not null" json:"amount"`
	Currency          string         `gorm:"size:3;default:'KES'" json:"currency"`
	AccountReference  string         `gorm:"size:32;uniqueIndex" json:"account_reference"`
	MerchantRequestID string         `gorm:"size:64" json:"merchant_request_id"`
	CheckoutRequestID string         `gorm:"size:64;uniqueIndex" json:"checkout_request_id"`
	Status            string         `gorm:"size:20;not null;index" json:"status"` // PENDING, COMPLETED, CANCELLED, TIMEOUT, FAILED
	ResultCode        *int           `json:"result_code"`
	ResultDesc        string         `gorm:"size:255" json:"result_desc"`
	ReceiptNumber     string         `gorm:"size:32" json:"receipt_number"`
	TransactionDate   string         `gorm:"size:20" json:"transaction_date"`
	CompletedAt       *time.Time     `json:"completed_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}
