package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	"github.com/agritrade/agritrade-backend/pkg/types"
)

type inspectRequest struct {
	ActualQuantity int    `json:"actual_quantity" validate:"required,gt=0"`
	Notes          string `json:"notes" validate:"max=2000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// OrderResponse is the public shape of a purchase order.
type OrderResponse struct {
	ID               uuid.UUID             `json:"id"`
	OrderNo          string                `json:"order_no"`
	ContractID       uuid.UUID             `json:"contract_id"`
	FarmerID         uuid.UUID             `json:"farmer_id"`
	PurchaserID      uuid.UUID             `json:"purchaser_id"`
	ProductID        uuid.UUID             `json:"product_id"`
	ProductInfo      types.ProductSnapshot `json:"product_info"`
	Quantity         int                   `json:"quantity"`
	TotalAmount      decimal.Decimal       `json:"total_amount"`
	ActualQuantity   *int                  `json:"actual_quantity,omitempty"`
	ActualAmount     *decimal.Decimal      `json:"actual_amount,omitempty"`
	InspectionResult *string               `json:"inspection_result,omitempty"`
	DeliveryTime     *time.Time            `json:"delivery_time,omitempty"`
	CancelReason     *string               `json:"cancel_reason,omitempty"`
	PaidAt           *time.Time            `json:"paid_at,omitempty"`
	CompletedAt      *time.Time            `json:"completed_at,omitempty"`
	CancelledAt      *time.Time            `json:"cancelled_at,omitempty"`
	Status           enums.OrderStatus     `json:"status"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func ToResponse(o *models.Order) OrderResponse {
	return OrderResponse{
		ID:               o.ID,
		OrderNo:          o.OrderNo,
		ContractID:       o.ContractID,
		FarmerID:         o.FarmerID,
		PurchaserID:      o.PurchaserID,
		ProductID:        o.ProductID,
		ProductInfo:      o.ProductInfo,
		Quantity:         o.Quantity,
		TotalAmount:      o.TotalAmount,
		ActualQuantity:   o.ActualQuantity,
		ActualAmount:     o.ActualAmount,
		InspectionResult: o.InspectionResult,
		DeliveryTime:     o.DeliveryTime,
		CancelReason:     o.CancelReason,
		PaidAt:           o.PaidAt,
		CompletedAt:      o.CompletedAt,
		CancelledAt:      o.CancelledAt,
		Status:           o.Status,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toResponses(list []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(list))
	for i := range list {
		out = append(out, ToResponse(&list[i]))
	}
	return out
}
