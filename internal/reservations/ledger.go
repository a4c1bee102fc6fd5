package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/internal/catalog"
	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
	"github.com/agritrade/agritrade-backend/pkg/outbox/payloads"
)

const defaultTTL = 24 * time.Hour

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger owns every change to product stock. Reserve only holds units;
// Confirm is the single path that deducts physical stock.
//
// All methods run on the caller's transaction so a reservation commits or
// rolls back together with the order transition that caused it.
type Ledger struct {
	repo    Repository
	catalog catalog.Repository
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.WorkflowMetrics
	ttl     time.Duration
	now     func() time.Time
}

// LedgerParams wires the ledger dependencies.
type LedgerParams struct {
	Repo    Repository
	Catalog catalog.Repository
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics *metrics.WorkflowMetrics
	TTL     time.Duration
	Now     func() time.Time
}

func NewLedger(params LedgerParams) (*Ledger, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		repo:    params.Repo,
		catalog: params.Catalog,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		ttl:     ttl,
		now:     now,
	}, nil
}

// Reserve holds quantity units of the product for the order and returns the
// reservation id. Stock is not deducted.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, quantity int) (uuid.UUID, error) {
	if orderID == uuid.Nil || productID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and product id required")
	}
	if quantity <= 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}

	repo := l.repo.WithTx(tx)
	products := l.catalog.WithTx(tx)

	existing, err := repo.FindActiveByOrder(ctx, orderID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active reservation")
	}
	if existing != nil {
		return uuid.Nil, pkgerrors.Rule(pkgerrors.ReasonDuplicateReservation, "order already has an active reservation")
	}

	held, err := products.Hold(ctx, productID, quantity)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hold stock")
	}
	if !held {
		product, err := products.FindByID(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		return uuid.Nil, pkgerrors.Rule(
			pkgerrors.ReasonInsufficientStock,
			fmt.Sprintf("requested %d, available %d", quantity, product.Available()),
		)
	}

	now := l.now().UTC()
	reservation := &models.StockReservation{
		OrderID:          orderID,
		ProductID:        productID,
		ReservedQuantity: quantity,
		Status:           enums.ReservationStatusReserved,
		ExpiresAt:        now.Add(l.ttl),
	}
	if err := repo.Create(ctx, reservation); err != nil {
		if db.IsUniqueViolation(err, "ux_stock_reservations_active_order") {
			return uuid.Nil, pkgerrors.Rule(pkgerrors.ReasonDuplicateReservation, "order already has an active reservation")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
	}

	l.metrics.IncReservation(string(enums.ReservationStatusReserved))
	return reservation.ID, nil
}

// Confirm turns a reserved hold into a stock deduction. Calling it for a
// reservation that is not reserved fails without touching stock.
func (l *Ledger) Confirm(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	repo := l.repo.WithTx(tx)

	reservation, err := repo.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	if reservation.Status != enums.ReservationStatusReserved {
		return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("reservation is %s", reservation.Status))
	}

	now := l.now().UTC()
	won, err := repo.Transition(ctx, reservation.ID, enums.ReservationStatusReserved, map[string]any{
		"status":       enums.ReservationStatusConfirmed,
		"confirmed_at": now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm reservation")
	}
	if !won {
		return pkgerrors.Rule(pkgerrors.ReasonInvalidState, "reservation changed concurrently")
	}

	deducted, err := l.catalog.WithTx(tx).DecrementStock(ctx, reservation.ProductID, reservation.ReservedQuantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct stock")
	}
	if !deducted {
		return pkgerrors.Rule(
			pkgerrors.ReasonInsufficientStock,
			fmt.Sprintf("stock no longer covers %d units", reservation.ReservedQuantity),
		)
	}

	l.metrics.IncReservation(string(enums.ReservationStatusConfirmed))
	return nil
}

// ConfirmForOrder confirms the order's reserved hold. It is a no-op when the
// hold is already confirmed and logs when the order never got one.
func (l *Ledger) ConfirmForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	reservation, err := l.ActiveForOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if reservation == nil {
		l.logg.Warn(l.logg.WithOrderID(ctx, orderID.String()), "no active reservation to confirm")
		return nil
	}
	if reservation.Status == enums.ReservationStatusConfirmed {
		return nil
	}
	return l.Confirm(ctx, tx, reservation.ID)
}

// Release frees the order's reserved hold. Missing or confirmed reservations
// are left alone so the call can be repeated safely.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error {
	logCtx := l.logg.WithOrderID(ctx, orderID.String())
	repo := l.repo.WithTx(tx)

	reservation, err := repo.FindActiveByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active reservation")
	}
	if reservation == nil {
		l.logg.Info(logCtx, "no active reservation to release")
		return nil
	}
	if reservation.Status == enums.ReservationStatusConfirmed {
		l.logg.Info(logCtx, "reservation already confirmed, nothing to release")
		return nil
	}

	now := l.now().UTC()
	won, err := repo.Transition(ctx, reservation.ID, enums.ReservationStatusReserved, map[string]any{
		"status":         enums.ReservationStatusReleased,
		"release_reason": reason,
		"released_at":    now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
	}
	if !won {
		l.logg.Info(logCtx, "reservation left reserved state before release")
		return nil
	}
	if err := l.catalog.WithTx(tx).Unhold(ctx, reservation.ProductID, reservation.ReservedQuantity); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop stock hold")
	}

	l.metrics.IncReservation(string(enums.ReservationStatusReleased))
	return nil
}

// ActiveForOrder returns the order's reserved or confirmed reservation, or nil.
func (l *Ledger) ActiveForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.StockReservation, error) {
	reservation, err := l.repo.WithTx(tx).FindActiveByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active reservation")
	}
	return reservation, nil
}

// ExpireDue expires up to limit reserved rows whose window ended before now.
// Each row is expired in its own savepoint; failures are collected and the
// remaining rows still run. Order status is never changed here.
func (l *Ledger) ExpireDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	now = now.UTC()

	due, err := l.repo.WithTx(tx).ListDue(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due reservations")
	}

	var (
		expired int
		errs    error
	)
	for i := range due {
		reservation := due[i]
		err := tx.Transaction(func(sp *gorm.DB) error {
			won, err := l.expireOne(ctx, sp, reservation, now)
			if err == nil && won {
				expired++
			}
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire reservation %s: %w", reservation.ID, err))
		}
	}
	return expired, errs
}

func (l *Ledger) expireOne(ctx context.Context, tx *gorm.DB, reservation models.StockReservation, now time.Time) (bool, error) {
	won, err := l.repo.WithTx(tx).Transition(ctx, reservation.ID, enums.ReservationStatusReserved, map[string]any{
		"status":         enums.ReservationStatusExpired,
		"release_reason": "reservation expired",
		"released_at":    now,
	})
	if err != nil || !won {
		return false, err
	}
	if err := l.catalog.WithTx(tx).Unhold(ctx, reservation.ProductID, reservation.ReservedQuantity); err != nil {
		return false, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventReservationExpired,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservation.ID,
		OccurredAt:    now,
		Data: payloads.ReservationExpiredEvent{
			ReservationID: reservation.ID,
			OrderID:       reservation.OrderID,
			ProductID:     reservation.ProductID,
			Quantity:      reservation.ReservedQuantity,
		},
	}
	if err := l.outbox.Emit(ctx, tx, event); err != nil {
		return false, err
	}

	l.metrics.IncReservation(string(enums.ReservationStatusExpired))
	return true, nil
}
