package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/enums"
	"github.com/agritrade/agritrade-backend/pkg/types"
)

// Contract is the purchase agreement produced from an agreed docking record.
type Contract struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ContractNo        string                `gorm:"column:contract_no;not null;uniqueIndex:ux_purchase_contracts_contract_no"`
	DockingID         uuid.UUID             `gorm:"column:docking_id;type:uuid;not null;uniqueIndex:ux_purchase_contracts_docking_id"`
	FarmerID          uuid.UUID             `gorm:"column:farmer_id;type:uuid;not null;index"`
	PurchaserID       uuid.UUID             `gorm:"column:purchaser_id;type:uuid;not null;index"`
	ProductID         uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	ProductInfo       types.ProductSnapshot `gorm:"column:product_info;type:jsonb;not null"`
	Quantity          int                   `gorm:"column:quantity;not null"`
	UnitPrice         decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalAmount       decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	PaymentTerms      string                `gorm:"column:payment_terms;not null;default:''"`
	DeliveryTime      *time.Time            `gorm:"column:delivery_time"`
	DeliveryAddress   string                `gorm:"column:delivery_address;not null;default:''"`
	QualityStandards  string                `gorm:"column:quality_standards;not null;default:''"`
	BreachTerms       string                `gorm:"column:breach_terms;not null;default:''"`
	FarmerSignURL     *string               `gorm:"column:farmer_sign_url"`
	PurchaserSignURL  *string               `gorm:"column:purchaser_sign_url"`
	FarmerSignedAt    *time.Time            `gorm:"column:farmer_signed_at"`
	PurchaserSignedAt *time.Time            `gorm:"column:purchaser_signed_at"`
	TerminationReason *string               `gorm:"column:termination_reason"`
	Status            enums.ContractStatus  `gorm:"column:status;type:text;not null;default:'draft'"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Contract) TableName() string { return "purchase_contracts" }

func (c *Contract) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// BothSigned reports whether farmer and purchaser signatures are on file.
func (c Contract) BothSigned() bool {
	return c.FarmerSignURL != nil && c.PurchaserSignURL != nil
}
