package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/enums"
)

// PaymentRecord is one installment paid against an order.
type PaymentRecord struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	PaymentNo     string              `gorm:"column:payment_no;not null;uniqueIndex:ux_payment_records_payment_no"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	PayerID       uuid.UUID           `gorm:"column:payer_id;type:uuid;not null"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Stage         enums.PaymentStage  `gorm:"column:payment_stage;type:text;not null;default:'full'"`
	Method        enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'bank_transfer'"`
	ReferenceNo   *string             `gorm:"column:reference_no"`
	VoucherURL    *string             `gorm:"column:voucher_url"`
	FailureReason *string             `gorm:"column:failure_reason"`
	PaymentTime   *time.Time          `gorm:"column:payment_time"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

func (p *PaymentRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
