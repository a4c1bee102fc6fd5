package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/enums"
)

// StockReservation holds product stock for one order without deducting it.
// At most one reserved or confirmed row may exist per order; Postgres enforces
// this with the partial index ux_stock_reservations_active_order.
type StockReservation struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	ReservedQuantity int                     `gorm:"column:reserved_quantity;not null"`
	Status           enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'reserved'"`
	ExpiresAt        time.Time               `gorm:"column:expires_at;not null"`
	ReleaseReason    *string                 `gorm:"column:release_reason"`
	ConfirmedAt      *time.Time              `gorm:"column:confirmed_at"`
	ReleasedAt       *time.Time              `gorm:"column:released_at"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (StockReservation) TableName() string { return "stock_reservations" }

func (r *StockReservation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
