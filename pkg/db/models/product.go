package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/enums"
)

// Product is a farmer listing. Stock only drops when a reservation is confirmed;
// ReservedStock counts units held by outstanding reservations.
type Product struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	FarmerID      uuid.UUID           `gorm:"column:farmer_id;type:uuid;not null;index"`
	CategoryID    *uuid.UUID          `gorm:"column:category_id;type:uuid"`
	Name          string              `gorm:"column:name;not null"`
	Spec          string              `gorm:"column:spec;not null;default:''"`
	Unit          string              `gorm:"column:unit;not null"`
	Price         decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	MinPurchase   int                 `gorm:"column:min_purchase;not null;default:1"`
	Stock         int                 `gorm:"column:stock;not null;default:0"`
	ReservedStock int                 `gorm:"column:reserved_stock;not null;default:0"`
	OriginRegion  string              `gorm:"column:origin_region;not null;default:''"`
	Status        enums.ProductStatus `gorm:"column:status;type:text;not null;default:'on_sale'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Available returns stock not yet promised to a reservation.
func (p Product) Available() int {
	return p.Stock - p.ReservedStock
}
