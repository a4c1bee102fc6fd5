package contracts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	"github.com/agritrade/agritrade-backend/pkg/types"
)

type createRequest struct {
	DockingID        uuid.UUID  `json:"docking_id" validate:"required"`
	Quantity         int        `json:"quantity" validate:"omitempty,gt=0"`
	PaymentTerms     string     `json:"payment_terms" validate:"max=2000"`
	DeliveryTime     *time.Time `json:"delivery_time"`
	DeliveryAddress  string     `json:"delivery_address" validate:"max=500"`
	QualityStandards string     `json:"quality_standards" validate:"max=2000"`
	BreachTerms      string     `json:"breach_terms" validate:"max=2000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type contractResponse struct {
	ID                uuid.UUID             `json:"id"`
	ContractNo        string                `json:"contract_no"`
	DockingID         uuid.UUID             `json:"docking_id"`
	FarmerID          uuid.UUID             `json:"farmer_id"`
	PurchaserID       uuid.UUID             `json:"purchaser_id"`
	ProductID         uuid.UUID             `json:"product_id"`
	ProductInfo       types.ProductSnapshot `json:"product_info"`
	Quantity          int                   `json:"quantity"`
	UnitPrice         decimal.Decimal       `json:"unit_price"`
	TotalAmount       decimal.Decimal       `json:"total_amount"`
	PaymentTerms      string                `json:"payment_terms"`
	DeliveryTime      *time.Time            `json:"delivery_time,omitempty"`
	DeliveryAddress   string                `json:"delivery_address"`
	QualityStandards  string                `json:"quality_standards"`
	BreachTerms       string                `json:"breach_terms"`
	FarmerSignURL     *string               `json:"farmer_sign_url,omitempty"`
	PurchaserSignURL  *string               `json:"purchaser_sign_url,omitempty"`
	FarmerSignedAt    *time.Time            `json:"farmer_signed_at,omitempty"`
	PurchaserSignedAt *time.Time            `json:"purchaser_signed_at,omitempty"`
	TerminationReason *string               `json:"termination_reason,omitempty"`
	Status            enums.ContractStatus  `json:"status"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

func toResponse(c *models.Contract) contractResponse {
	return contractResponse{
		ID:                c.ID,
		ContractNo:        c.ContractNo,
		DockingID:         c.DockingID,
		FarmerID:          c.FarmerID,
		PurchaserID:       c.PurchaserID,
		ProductID:         c.ProductID,
		ProductInfo:       c.ProductInfo,
		Quantity:          c.Quantity,
		UnitPrice:         c.UnitPrice,
		TotalAmount:       c.TotalAmount,
		PaymentTerms:      c.PaymentTerms,
		DeliveryTime:      c.DeliveryTime,
		DeliveryAddress:   c.DeliveryAddress,
		QualityStandards:  c.QualityStandards,
		BreachTerms:       c.BreachTerms,
		FarmerSignURL:     c.FarmerSignURL,
		PurchaserSignURL:  c.PurchaserSignURL,
		FarmerSignedAt:    c.FarmerSignedAt,
		PurchaserSignedAt: c.PurchaserSignedAt,
		TerminationReason: c.TerminationReason,
		Status:            c.Status,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func toResponses(list []models.Contract) []contractResponse {
	out := make([]contractResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	return out
}
