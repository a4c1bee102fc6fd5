package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
)

type pendingRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Stage       string          `json:"payment_stage" validate:"omitempty,oneof=full deposit balance"`
	Method      string          `json:"payment_method" validate:"omitempty,oneof=bank_transfer online offline"`
	ReferenceNo string          `json:"reference_no" validate:"max=128"`
}

type confirmRequest struct {
	ReferenceNo string `json:"reference_no" validate:"max=128"`
}

type failRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type paymentResponse struct {
	ID            uuid.UUID           `json:"id"`
	PaymentNo     string              `json:"payment_no"`
	OrderID       uuid.UUID           `json:"order_id"`
	PayerID       uuid.UUID           `json:"payer_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Stage         enums.PaymentStage  `json:"payment_stage"`
	Method        enums.PaymentMethod `json:"payment_method"`
	ReferenceNo   *string             `json:"reference_no,omitempty"`
	VoucherURL    *string             `json:"voucher_url,omitempty"`
	FailureReason *string             `json:"failure_reason,omitempty"`
	PaymentTime   *time.Time          `json:"payment_time,omitempty"`
	Status        enums.PaymentStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toResponse(p *models.PaymentRecord) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		PaymentNo:     p.PaymentNo,
		OrderID:       p.OrderID,
		PayerID:       p.PayerID,
		Amount:        p.Amount,
		Stage:         p.Stage,
		Method:        p.Method,
		ReferenceNo:   p.ReferenceNo,
		VoucherURL:    p.VoucherURL,
		FailureReason: p.FailureReason,
		PaymentTime:   p.PaymentTime,
		Status:        p.Status,
		CreatedAt:     p.CreatedAt,
	}
}

func toResponses(list []models.PaymentRecord) []paymentResponse {
	out := make([]paymentResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	return out
}
