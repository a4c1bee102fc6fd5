package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
	"github.com/agritrade/agritrade-backend/pkg/outbox/payloads"
)

// Lifecycle applies the order transitions driven by payments. It runs on the
// caller's transaction.
type Lifecycle struct {
	repo   Repository
	outbox outboxPublisher
}

func NewLifecycle(repo Repository, outbox outboxPublisher) (*Lifecycle, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Lifecycle{repo: repo, outbox: outbox}, nil
}

// Find loads the order inside tx.
func (l *Lifecycle) Find(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := l.repo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// MarkPaid moves a pending or delivered order to paid and reports whether
// this call made the transition.
func (l *Lifecycle) MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order, paidAt time.Time, actor *outbox.ActorRef) (bool, error) {
	won, err := l.repo.WithTx(tx).Transition(ctx, order.ID,
		[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusDelivered},
		map[string]any{"status": enums.OrderStatusPaid, "paid_at": paidAt},
	)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if !won {
		return false, nil
	}
	order.Status = enums.OrderStatusPaid
	order.PaidAt = &paidAt
	return true, l.emit(ctx, tx, enums.EventOrderPaid, order, actor, "", nil)
}

func (l *Lifecycle) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, actor *outbox.ActorRef, reason string, reserved *bool) error {
	return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderEvent{
			OrderID:     order.ID,
			OrderNo:     order.OrderNo,
			ContractID:  order.ContractID,
			FarmerID:    order.FarmerID,
			PurchaserID: order.PurchaserID,
			Status:      order.Status,
			Reserved:    reserved,
			Reason:      reason,
		},
	})
}
