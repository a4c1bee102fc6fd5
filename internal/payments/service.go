package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
	"github.com/agritrade/agritrade-backend/pkg/numbering"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
	"github.com/agritrade/agritrade-backend/pkg/outbox/payloads"
	"github.com/agritrade/agritrade-backend/pkg/storage"
)

const (
	// ListLimit caps payment listings.
	ListLimit = 100

	paymentNumberAttempts = 3
)

type txRunner interface {
	InScope(ctx context.Context, fn func(scope *db.Scope) error) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderProgress loads orders and moves them to paid.
type OrderProgress interface {
	Find(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, order *models.Order, paidAt time.Time, actor *outbox.ActorRef) (bool, error)
}

// StockLedger settles the order's reservation once money moved.
type StockLedger interface {
	ConfirmForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error
}

// Service records installments against orders and drives the order to paid.
type Service interface {
	SubmitPayment(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input SubmitInput) (*models.PaymentRecord, error)
	RecordPendingPayment(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input PendingInput) (*models.PaymentRecord, error)
	ConfirmPayment(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, referenceNo string) (*models.PaymentRecord, error)
	MarkFailed(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, reason string) (*models.PaymentRecord, error)
	ListByOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]models.PaymentRecord, error)
	ListForActor(ctx context.Context, actor auth.Actor) ([]models.PaymentRecord, error)
}

// SubmitInput is a purchaser payment settled at submission time. Voucher is optional.
type SubmitInput struct {
	Amount      decimal.Decimal
	Stage       enums.PaymentStage
	Method      enums.PaymentMethod
	ReferenceNo string
	Voucher     *storage.File
}

// PendingInput declares an offline installment an admin confirms later.
type PendingInput struct {
	Amount      decimal.Decimal
	Stage       enums.PaymentStage
	Method      enums.PaymentMethod
	ReferenceNo string
}

// ServiceParams wires the payment service.
type ServiceParams struct {
	Repo    Repository
	Orders  OrderProgress
	Ledger  StockLedger
	Storage storage.Store
	Tx      txRunner
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics *metrics.WorkflowMetrics
	Now     func() time.Time
}

type service struct {
	repo    Repository
	orders  OrderProgress
	ledger  StockLedger
	storage storage.Store
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.WorkflowMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order progress required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("stock ledger required")
	case params.Storage == nil:
		return nil, fmt.Errorf("storage required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		ledger:  params.Ledger,
		storage: params.Storage,
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// SubmitPayment uploads the voucher before the transaction opens; a rollback
// deletes the upload again.
func (s *service) SubmitPayment(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input SubmitInput) (*models.PaymentRecord, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	stage, method, err := normalizeTerms(input.Amount, input.Stage, input.Method)
	if err != nil {
		return nil, err
	}

	var voucherURL *string
	if !input.Voucher.Empty() {
		url, err := s.storage.Upload(ctx, input.Voucher, storage.CategoryPaymentVoucher)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload payment voucher")
		}
		voucherURL = &url
	}

	var cleanup db.Hook
	if voucherURL != nil {
		url := *voucherURL
		cleanup = db.Once(func(ctx context.Context) {
			s.deleteVoucher(ctx, url)
		})
	}

	var created *models.PaymentRecord
	err = s.tx.InScope(ctx, func(scope *db.Scope) error {
		scope.OnRollback(cleanup)
		tx := scope.Tx()

		order, err := s.payableOrder(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		record := &models.PaymentRecord{
			OrderID:     order.ID,
			PayerID:     actor.PartyID,
			Amount:      input.Amount.Round(2),
			Stage:       stage,
			Method:      method,
			ReferenceNo: optionalString(input.ReferenceNo),
			VoucherURL:  voucherURL,
			PaymentTime: &now,
			Status:      enums.PaymentStatusSuccess,
		}
		if err := s.insertNumbered(ctx, tx, record); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventPaymentRecorded, record, actor.Ref(), ""); err != nil {
			return err
		}
		if err := s.advanceOrderAfterPayment(ctx, scope, order.ID, actor); err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		// the scope may have failed before the rollback hook was registered
		if cleanup != nil {
			cleanup(context.WithoutCancel(ctx))
		}
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "payment recorded")
	return created, nil
}

func (s *service) RecordPendingPayment(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input PendingInput) (*models.PaymentRecord, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	stage, method, err := normalizeTerms(input.Amount, input.Stage, input.Method)
	if err != nil {
		return nil, err
	}

	var created *models.PaymentRecord
	err = s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		order, err := s.payableOrder(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		record := &models.PaymentRecord{
			OrderID:     order.ID,
			PayerID:     actor.PartyID,
			Amount:      input.Amount.Round(2),
			Stage:       stage,
			Method:      method,
			ReferenceNo: optionalString(input.ReferenceNo),
			Status:      enums.PaymentStatusPending,
		}
		if err := s.insertNumbered(ctx, tx, record); err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ConfirmPayment settles a pending record and advances its order.
func (s *service) ConfirmPayment(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, referenceNo string) (*models.PaymentRecord, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var confirmed *models.PaymentRecord
	err := s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		record, err := s.find(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		switch record.Status {
		case enums.PaymentStatusSuccess:
			return pkgerrors.Rule(pkgerrors.ReasonAlreadyConfirmed, "payment already confirmed")
		case enums.PaymentStatusFailed:
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, "payment already failed")
		case enums.PaymentStatusPending:
		default:
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("unknown payment status %q", record.Status))
		}

		now := s.now().UTC()
		updates := map[string]any{"status": enums.PaymentStatusSuccess, "payment_time": now}
		if ref := strings.TrimSpace(referenceNo); ref != "" {
			updates["reference_no"] = ref
			record.ReferenceNo = &ref
		}
		won, err := s.repo.WithTx(tx).Transition(ctx, record.ID, enums.PaymentStatusPending, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
		}
		if !won {
			return pkgerrors.Rule(pkgerrors.ReasonAlreadyConfirmed, "payment changed concurrently")
		}
		record.Status = enums.PaymentStatusSuccess
		record.PaymentTime = &now

		if err := s.emit(ctx, tx, enums.EventPaymentRecorded, record, actor.Ref(), ""); err != nil {
			return err
		}
		if err := s.advanceOrderAfterPayment(ctx, scope, record.OrderID, actor); err != nil {
			return err
		}
		confirmed = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// advanceOrderAfterPayment moves a pending or delivered order to paid. Paid
// and completed orders are left alone; any other status is logged and
// skipped. The reservation is confirmed after the scope commits, in its own
// transaction, and a failed confirmation never undoes the payment.
func (s *service) advanceOrderAfterPayment(ctx context.Context, scope *db.Scope, orderID uuid.UUID, actor auth.Actor) error {
	tx := scope.Tx()
	order, err := s.orders.Find(ctx, tx, orderID)
	if err != nil {
		return err
	}
	logCtx := s.logg.WithOrderID(ctx, orderID.String())

	switch order.Status {
	case enums.OrderStatusPaid, enums.OrderStatusCompleted:
		s.logg.Info(s.logg.WithField(logCtx, "status", order.Status), "order already paid, not advanced again")
		return nil
	case enums.OrderStatusPending, enums.OrderStatusDelivered:
	default:
		s.logg.Warn(s.logg.WithField(logCtx, "status", order.Status), "payment recorded for order that cannot advance")
		return nil
	}

	won, err := s.orders.MarkPaid(ctx, tx, order, s.now().UTC(), actor.Ref())
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	scope.AfterCommit(func(ctx context.Context) {
		s.confirmReservation(ctx, orderID)
	})
	return nil
}

func (s *service) confirmReservation(ctx context.Context, orderID uuid.UUID) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ledger.ConfirmForOrder(ctx, tx, orderID)
	})
	if err != nil {
		s.metrics.IncCompensationFailure(metrics.StepConfirmReservation)
		s.logg.WarnErr(s.logg.WithOrderID(ctx, orderID.String()), "confirm reservation after payment failed", err)
	}
}

// MarkFailed fails a pending record. The order's reservation is released and
// the voucher deleted; both are best-effort.
func (s *service) MarkFailed(ctx context.Context, actor auth.Actor, paymentID uuid.UUID, reason string) (*models.PaymentRecord, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(reason)
	if note == "" {
		note = "payment failed"
	}

	var failed *models.PaymentRecord
	err := s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		record, err := s.find(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if record.Status != enums.PaymentStatusPending {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("payment is %s, not pending", record.Status))
		}
		won, err := s.repo.WithTx(tx).Transition(ctx, record.ID, enums.PaymentStatusPending, map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": note,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !won {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, "payment changed concurrently")
		}
		record.Status = enums.PaymentStatusFailed
		record.FailureReason = &note
		if err := s.emit(ctx, tx, enums.EventPaymentFailed, record, actor.Ref(), note); err != nil {
			return err
		}

		err = tx.Transaction(func(sp *gorm.DB) error {
			return s.ledger.Release(ctx, sp, record.OrderID, "payment failed: "+note)
		})
		if err != nil {
			s.metrics.IncCompensationFailure(metrics.StepReleaseReservation)
			s.logg.WarnErr(s.logg.WithOrderID(ctx, record.OrderID.String()), "release reservation after failed payment failed", err)
		}

		if record.VoucherURL != nil {
			url := *record.VoucherURL
			scope.AfterCommit(func(ctx context.Context) {
				s.deleteVoucher(ctx, url)
			})
		}
		failed = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func (s *service) ListByOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]models.PaymentRecord, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	order, err := s.orders.Find(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(order.FarmerID, order.PurchaserID) {
		return nil, pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "caller is not a party to this order")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID, ListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

// ListForActor returns the payments on the caller's orders, newest first.
// Admins see every payment.
func (s *service) ListForActor(ctx context.Context, actor auth.Actor) ([]models.PaymentRecord, error) {
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

// payableOrder loads the order for its purchaser and rejects closed orders.
func (s *service) payableOrder(ctx context.Context, tx *gorm.DB, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.Find(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireCounterpart(enums.ActorRolePurchaser, order.FarmerID, order.PurchaserID); err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.Rule(pkgerrors.ReasonInvalidState, "order is cancelled")
	}
	return order, nil
}

func (s *service) insertNumbered(ctx context.Context, tx *gorm.DB, record *models.PaymentRecord) error {
	var lastErr error
	for attempt := 0; attempt < paymentNumberAttempts; attempt++ {
		err := tx.Transaction(func(sp *gorm.DB) error {
			record.ID = uuid.Nil
			record.PaymentNo = numbering.Timestamped(numbering.PaymentPrefix, s.now())
			return s.repo.WithTx(sp).Create(ctx, record)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment record")
		}
		lastErr = err
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a payment number")
}

func (s *service) find(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) (*models.PaymentRecord, error) {
	record, err := s.repo.WithTx(tx).FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return record, nil
}

func (s *service) deleteVoucher(ctx context.Context, url string) {
	if err := s.storage.Delete(ctx, url); err != nil {
		s.metrics.IncCompensationFailure(metrics.StepDeleteUpload)
		s.logg.WarnErr(s.logg.WithField(ctx, "url", url), "delete payment voucher failed", err)
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, record *models.PaymentRecord, actor *outbox.ActorRef, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   record.ID,
		Actor:         actor,
		Data: payloads.PaymentEvent{
			PaymentID: record.ID,
			PaymentNo: record.PaymentNo,
			OrderID:   record.OrderID,
			Amount:    record.Amount,
			Status:    record.Status,
			Reason:    reason,
		},
	})
}

func normalizeTerms(amount decimal.Decimal, stage enums.PaymentStage, method enums.PaymentMethod) (enums.PaymentStage, enums.PaymentMethod, error) {
	if !amount.IsPositive() {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if stage == "" {
		stage = enums.PaymentStageFull
	}
	if !stage.IsValid() {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment stage %q", stage))
	}
	if method == "" {
		method = enums.PaymentMethodBankTransfer
	}
	if !method.IsValid() {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
	}
	return stage, method, nil
}

func requireAdmin(actor auth.Actor) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if actor.Role != enums.ActorRoleAdmin {
		return pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "only admins can settle payments")
	}
	return nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
