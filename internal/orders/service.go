package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
	"github.com/agritrade/agritrade-backend/pkg/numbering"
)

const orderNumberAttempts = 3

// Service runs the order state machine: pending, delivered, paid, then
// completed, or cancelled from any non-terminal state.
type Service interface {
	CreateFromContract(ctx context.Context, actor auth.Actor, contractID uuid.UUID) (*models.Order, error)
	Inspect(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input InspectInput) (*models.Order, error)
	Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	Complete(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	ListForActor(ctx context.Context, actor auth.Actor) ([]models.Order, error)

	OpenOrdersForContract(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) ([]models.Order, error)
	CancelInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor auth.Actor) error
}

// ServiceParams wires the order service. Activity is optional.
type ServiceParams struct {
	Repo      Repository
	Lifecycle *Lifecycle
	Contracts ContractLifecycle
	Ledger    StockLedger
	Activity  ActivityRecorder
	Tx        txRunner
	Logger    *logger.Logger
	Metrics   *metrics.WorkflowMetrics
	Now       func() time.Time
}

type service struct {
	repo      Repository
	lifecycle *Lifecycle
	contracts ContractLifecycle
	ledger    StockLedger
	activity  ActivityRecorder
	tx        txRunner
	logg      *logger.Logger
	metrics   *metrics.WorkflowMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Lifecycle == nil:
		return nil, fmt.Errorf("order lifecycle required")
	case params.Contracts == nil:
		return nil, fmt.Errorf("contract lifecycle required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("stock ledger required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		lifecycle: params.Lifecycle,
		contracts: params.Contracts,
		ledger:    params.Ledger,
		activity:  params.Activity,
		tx:        params.Tx,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// CreateFromContract opens the order for a signed contract. The stock hold is
// best-effort: a failed reservation is logged and the order is still created.
func (s *service) CreateFromContract(ctx context.Context, actor auth.Actor, contractID uuid.UUID) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	var created *models.Order
	err := s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		contract, err := s.contracts.Find(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := actor.RequireCounterpart(enums.ActorRolePurchaser, contract.FarmerID, contract.PurchaserID); err != nil {
			return err
		}
		if contract.Status != enums.ContractStatusSigned {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("contract is %s, not signed", contract.Status))
		}
		existing, err := s.repo.WithTx(tx).FindByContract(ctx, contract.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing order")
		}
		if existing != nil {
			return pkgerrors.Rule(pkgerrors.ReasonDuplicateOrder, "an order already exists for this contract")
		}

		order := &models.Order{
			ContractID:  contract.ID,
			FarmerID:    contract.FarmerID,
			PurchaserID: contract.PurchaserID,
			ProductID:   contract.ProductID,
			ProductInfo: contract.ProductInfo,
			Quantity:    contract.Quantity,
			TotalAmount: contract.TotalAmount,
			Status:      enums.OrderStatusPending,
		}
		if err := s.insertNumbered(ctx, tx, order); err != nil {
			return err
		}
		if err := s.contracts.MarkExecuting(ctx, tx, contract); err != nil {
			return err
		}

		reserved := s.reserve(ctx, tx, order)
		if err := s.lifecycle.emit(ctx, tx, enums.EventOrderCreated, order, actor.Ref(), "", &reserved); err != nil {
			return err
		}

		region := order.ProductInfo.OriginRegion
		scope.AfterCommit(func(context.Context) {
			s.recordActivity(region)
		})
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, created.ID.String()), "order created")
	return created, nil
}

func (s *service) insertNumbered(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		err := tx.Transaction(func(sp *gorm.DB) error {
			order.ID = uuid.Nil
			order.OrderNo = numbering.Timestamped(numbering.OrderPrefix, s.now())
			return s.repo.WithTx(sp).Create(ctx, order)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		existing, findErr := s.repo.WithTx(tx).FindByContract(ctx, order.ContractID)
		if findErr == nil && existing != nil {
			return pkgerrors.Rule(pkgerrors.ReasonDuplicateOrder, "an order already exists for this contract")
		}
		lastErr = err
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate an order number")
}

func (s *service) reserve(ctx context.Context, tx *gorm.DB, order *models.Order) bool {
	err := tx.Transaction(func(sp *gorm.DB) error {
		_, err := s.ledger.Reserve(ctx, sp, order.ID, order.ProductID, order.Quantity)
		return err
	})
	if err != nil {
		s.metrics.IncCompensationFailure(metrics.StepReserveStock)
		s.logg.WarnErr(s.logg.WithOrderID(ctx, order.ID.String()), "stock reservation failed, order created without hold", err)
		return false
	}
	return true
}

func (s *service) recordActivity(region string) {
	if s.activity == nil {
		return
	}
	if region == "" {
		region = "unknown"
	}
	s.activity.Record(region, s.now())
}

// Inspect records a delivery and its inspected quantity. Either party on the
// order may record it: the farmer delivers, the purchaser accepts. Stock is
// not touched; it moves when the payment confirms the reservation.
func (s *service) Inspect(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input InspectInput) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if input.ActualQuantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actual quantity must be positive")
	}

	var inspected *models.Order
	err := s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		order, err := s.lifecycle.Find(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !actor.IsCounterpart(order.FarmerID, order.PurchaserID) {
			return pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "caller is not a party to this order")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("order is %s, not pending", order.Status))
		}
		contract, err := s.contracts.Find(ctx, tx, order.ContractID)
		if err != nil {
			return err
		}
		if contract.Status != enums.ContractStatusExecuting {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("contract is %s, not executing", contract.Status))
		}

		now := s.now().UTC()
		amount := order.ProductInfo.AmountFor(input.ActualQuantity)
		notes := strings.TrimSpace(input.Notes)
		won, err := s.repo.WithTx(tx).Transition(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, map[string]any{
			"status":            enums.OrderStatusDelivered,
			"actual_quantity":   input.ActualQuantity,
			"actual_amount":     amount,
			"inspection_result": notes,
			"delivery_time":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inspection")
		}
		if !won {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, "order changed concurrently")
		}

		order.Status = enums.OrderStatusDelivered
		order.ActualQuantity = &input.ActualQuantity
		order.ActualAmount = &amount
		order.InspectionResult = &notes
		order.DeliveryTime = &now
		if err := s.lifecycle.emit(ctx, tx, enums.EventOrderDelivered, order, actor.Ref(), "", nil); err != nil {
			return err
		}
		inspected = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inspected, nil
}

func (s *service) Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	var cancelled *models.Order
	err := s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		order, err := s.lifecycle.Find(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if actor.Role != enums.ActorRoleAdmin && !actor.IsCounterpart(order.FarmerID, order.PurchaserID) {
			return pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "caller is not a party to this order")
		}
		if err := s.CancelInTx(ctx, tx, orderID, reason, actor); err != nil {
			return err
		}
		cancelled, err = s.lifecycle.Find(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// CancelInTx cancels a non-terminal order on the caller's transaction and
// releases its reservation. A failed release is logged and swallowed.
func (s *service) CancelInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor auth.Actor) error {
	order, err := s.lifecycle.Find(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("order is already %s", order.Status))
	}

	note := strings.TrimSpace(reason)
	if note == "" {
		note = "cancelled"
	}
	now := s.now().UTC()
	won, err := s.repo.WithTx(tx).Transition(ctx, order.ID, enums.NonTerminalOrderStatuses, map[string]any{
		"status":        enums.OrderStatusCancelled,
		"cancel_reason": note,
		"cancelled_at":  now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !won {
		return pkgerrors.Rule(pkgerrors.ReasonInvalidState, "order changed concurrently")
	}
	order.Status = enums.OrderStatusCancelled
	order.CancelReason = &note
	order.CancelledAt = &now
	if err := s.lifecycle.emit(ctx, tx, enums.EventOrderCancelled, order, actor.Ref(), note, nil); err != nil {
		return err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	err = tx.Transaction(func(sp *gorm.DB) error {
		return s.ledger.Release(ctx, sp, order.ID, note)
	})
	if err != nil {
		s.metrics.IncCompensationFailure(metrics.StepReleaseReservation)
		s.logg.WarnErr(logCtx, "release reservation of cancelled order failed", err)
	}
	s.logg.Info(logCtx, "order cancelled")
	return nil
}

func (s *service) OpenOrdersForContract(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) ([]models.Order, error) {
	rows, err := s.repo.WithTx(tx).ListOpenByContract(ctx, contractID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open orders")
	}
	return rows, nil
}

// Complete closes a paid order after the purchaser confirmed receipt, or on
// admin action, and completes the contract with it.
func (s *service) Complete(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	var completed *models.Order
	err := s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		order, err := s.lifecycle.Find(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if actor.Role != enums.ActorRoleAdmin {
			if err := actor.RequireCounterpart(enums.ActorRolePurchaser, order.FarmerID, order.PurchaserID); err != nil {
				return err
			}
		}
		if order.Status != enums.OrderStatusPaid {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("order is %s, not paid", order.Status))
		}

		now := s.now().UTC()
		won, err := s.repo.WithTx(tx).Transition(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPaid}, map[string]any{
			"status":       enums.OrderStatusCompleted,
			"completed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		if !won {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, "order changed concurrently")
		}
		order.Status = enums.OrderStatusCompleted
		order.CompletedAt = &now
		if err := s.lifecycle.emit(ctx, tx, enums.EventOrderCompleted, order, actor.Ref(), "", nil); err != nil {
			return err
		}
		if err := s.contracts.Complete(ctx, tx, order.ContractID, actor.Ref()); err != nil {
			return err
		}
		completed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, completed.ID.String()), "order completed")
	return completed, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	order, err := s.lifecycle.Find(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(order.FarmerID, order.PurchaserID) {
		return nil, pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "caller is not a party to this order")
	}
	return order, nil
}

func (s *service) ListForActor(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	filter := ListFilter{Limit: ListLimit}
	switch actor.Role {
	case enums.ActorRoleFarmer:
		filter.FarmerID = &actor.PartyID
	case enums.ActorRolePurchaser:
		filter.PurchaserID = &actor.PartyID
	case enums.ActorRoleAdmin:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("unknown role %q", actor.Role))
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}
