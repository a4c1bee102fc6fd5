package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/enums"
)

// DockingRecord is a negotiation between a purchaser demand and a farmer product.
type DockingRecord struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	DemandID    *uuid.UUID          `gorm:"column:demand_id;type:uuid"`
	ProductID   uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	FarmerID    uuid.UUID           `gorm:"column:farmer_id;type:uuid;not null"`
	PurchaserID uuid.UUID           `gorm:"column:purchaser_id;type:uuid;not null"`
	QuotePrice  decimal.Decimal     `gorm:"column:quote_price;type:numeric(12,2);not null"`
	Quantity    int                 `gorm:"column:quantity;not null"`
	Remark      *string             `gorm:"column:remark"`
	Status      enums.DockingStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (DockingRecord) TableName() string { return "docking_records" }

func (d *DockingRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
