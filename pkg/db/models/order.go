package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/enums"
	"github.com/agritrade/agritrade-backend/pkg/types"
)

// Order fulfils exactly one contract.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNo          string                `gorm:"column:order_no;not null;uniqueIndex:ux_purchase_orders_order_no"`
	ContractID       uuid.UUID             `gorm:"column:contract_id;type:uuid;not null;uniqueIndex:ux_purchase_orders_contract_id"`
	FarmerID         uuid.UUID             `gorm:"column:farmer_id;type:uuid;not null;index"`
	PurchaserID      uuid.UUID             `gorm:"column:purchaser_id;type:uuid;not null;index"`
	ProductID        uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	ProductInfo      types.ProductSnapshot `gorm:"column:product_info;type:jsonb;not null"`
	Quantity         int                   `gorm:"column:quantity;not null"`
	TotalAmount      decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	ActualQuantity   *int                  `gorm:"column:actual_quantity"`
	ActualAmount     *decimal.Decimal      `gorm:"column:actual_amount;type:numeric(12,2)"`
	InspectionResult *string               `gorm:"column:inspection_result"`
	DeliveryTime     *time.Time            `gorm:"column:delivery_time"`
	CancelReason     *string               `gorm:"column:cancel_reason"`
	PaidAt           *time.Time            `gorm:"column:paid_at"`
	CompletedAt      *time.Time            `gorm:"column:completed_at"`
	CancelledAt      *time.Time            `gorm:"column:cancelled_at"`
	Status           enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "purchase_orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
