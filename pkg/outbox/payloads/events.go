package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agritrade/agritrade-backend/pkg/enums"
)

// ContractEvent is emitted on every contract transition.
type ContractEvent struct {
	ContractID  uuid.UUID            `json:"contract_id"`
	ContractNo  string               `json:"contract_no"`
	DockingID   uuid.UUID            `json:"docking_id"`
	FarmerID    uuid.UUID            `json:"farmer_id"`
	PurchaserID uuid.UUID            `json:"purchaser_id"`
	Status      enums.ContractStatus `json:"status"`
	Reason      string               `json:"reason,omitempty"`
}

// OrderEvent is emitted on every order transition.
type OrderEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNo     string            `json:"order_no"`
	ContractID  uuid.UUID         `json:"contract_id"`
	FarmerID    uuid.UUID         `json:"farmer_id"`
	PurchaserID uuid.UUID         `json:"purchaser_id"`
	Status      enums.OrderStatus `json:"status"`
	Reserved    *bool             `json:"reserved,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}

// PaymentEvent is emitted when a payment succeeds or fails.
type PaymentEvent struct {
	PaymentID uuid.UUID           `json:"payment_id"`
	PaymentNo string              `json:"payment_no"`
	OrderID   uuid.UUID           `json:"order_id"`
	Amount    decimal.Decimal     `json:"amount"`
	Status    enums.PaymentStatus `json:"status"`
	Reason    string              `json:"reason,omitempty"`
}

// ReservationExpiredEvent is emitted by the expiry reaper.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int       `json:"quantity"`
}
