package contracts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/internal/catalog"
	"github.com/agritrade/agritrade-backend/internal/docking"
	"github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
	"github.com/agritrade/agritrade-backend/pkg/storage"
	"github.com/agritrade/agritrade-backend/pkg/types"
)

// ListLimit caps role-filtered listings.
const ListLimit = 100

type txRunner interface {
	InScope(ctx context.Context, fn func(scope *db.Scope) error) error
}

// orderCanceller is implemented by the orders service. Termination cancels
// open orders that have not been paid through it.
type orderCanceller interface {
	OpenOrdersForContract(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) ([]models.Order, error)
	CancelInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor auth.Actor) error
}

// reservationReleaser drops the stock hold of an order. Release is a no-op
// for orders without an active hold and never touches confirmed stock.
type reservationReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error
}

// Service runs the contract state machine: draft, signed, executing, then
// completed or terminated.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Contract, error)
	Sign(ctx context.Context, actor auth.Actor, contractID uuid.UUID, signature *storage.File) (*models.Contract, error)
	Withdraw(ctx context.Context, actor auth.Actor, contractID uuid.UUID, reason string) (*models.Contract, error)
	Reject(ctx context.Context, actor auth.Actor, contractID uuid.UUID, reason string) (*models.Contract, error)
	Terminate(ctx context.Context, actor auth.Actor, contractID uuid.UUID, reason string) (*models.Contract, error)
	Get(ctx context.Context, actor auth.Actor, contractID uuid.UUID) (*models.Contract, error)
	ListForActor(ctx context.Context, actor auth.Actor) ([]models.Contract, error)
}

// CreateInput carries the commercial terms captured on a new contract.
// Quantity defaults to the negotiated docking quantity.
type CreateInput struct {
	DockingID        uuid.UUID
	Quantity         int
	PaymentTerms     string
	DeliveryTime     *time.Time
	DeliveryAddress  string
	QualityStandards string
	BreachTerms      string
}

// ServiceParams wires the contract service.
type ServiceParams struct {
	Repo          Repository
	Lifecycle     *Lifecycle
	Docking       docking.Service
	Catalog       catalog.Service
	Storage       storage.Store
	Orders        orderCanceller
	Ledger        reservationReleaser
	Tx            txRunner
	Logger        *logger.Logger
	Metrics       *metrics.WorkflowMetrics
	NumberRetries int
	Now           func() time.Time
}

type service struct {
	repo          Repository
	lifecycle     *Lifecycle
	docking       docking.Service
	catalog       catalog.Service
	storage       storage.Store
	orders        orderCanceller
	ledger        reservationReleaser
	tx            txRunner
	logg          *logger.Logger
	metrics       *metrics.WorkflowMetrics
	numberRetries int
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("contracts repository required")
	case params.Lifecycle == nil:
		return nil, fmt.Errorf("contract lifecycle required")
	case params.Docking == nil:
		return nil, fmt.Errorf("docking service required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog service required")
	case params.Storage == nil:
		return nil, fmt.Errorf("storage required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order canceller required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("reservation ledger required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	retries := params.NumberRetries
	if retries <= 0 {
		retries = 3
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		lifecycle:     params.Lifecycle,
		docking:       params.Docking,
		catalog:       params.Catalog,
		storage:       params.Storage,
		orders:        params.Orders,
		ledger:        params.Ledger,
		tx:            params.Tx,
		logg:          params.Logger,
		metrics:       params.Metrics,
		numberRetries: retries,
		now:           now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Contract, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	record, err := s.docking.GetAgreed(ctx, nil, input.DockingID)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireCounterpart(enums.ActorRolePurchaser, record.FarmerID, record.PurchaserID); err != nil {
		return nil, err
	}

	product, err := s.catalog.Get(ctx, record.ProductID)
	if err != nil {
		return nil, err
	}
	if product.Status != enums.ProductStatusOnSale {
		return nil, pkgerrors.Rule(pkgerrors.ReasonInvalidState, "product is not on sale")
	}

	quantity := input.Quantity
	if quantity == 0 {
		quantity = record.Quantity
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if quantity < product.MinPurchase {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity below minimum purchase of %d", product.MinPurchase))
	}

	now := s.now().UTC()
	snapshot := types.ProductSnapshot{
		Version:      types.ProductSnapshotVersion,
		ProductID:    product.ID,
		FarmerID:     product.FarmerID,
		CategoryID:   product.CategoryID,
		Name:         product.Name,
		Spec:         product.Spec,
		Unit:         product.Unit,
		UnitPrice:    product.Price,
		Quantity:     quantity,
		OriginRegion: product.OriginRegion,
		CapturedAt:   now,
	}

	contract := &models.Contract{
		DockingID:        record.ID,
		FarmerID:         record.FarmerID,
		PurchaserID:      record.PurchaserID,
		ProductID:        product.ID,
		ProductInfo:      snapshot,
		Quantity:         quantity,
		UnitPrice:        snapshot.UnitPrice,
		TotalAmount:      snapshot.Total(),
		PaymentTerms:     strings.TrimSpace(input.PaymentTerms),
		DeliveryTime:     input.DeliveryTime,
		DeliveryAddress:  strings.TrimSpace(input.DeliveryAddress),
		QualityStandards: strings.TrimSpace(input.QualityStandards),
		BreachTerms:      strings.TrimSpace(input.BreachTerms),
		Status:           enums.ContractStatusDraft,
	}

	err = s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		existing, err := s.repo.WithTx(tx).FindByDocking(ctx, record.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing contract")
		}
		if existing != nil {
			return pkgerrors.Rule(pkgerrors.ReasonDuplicateContract, "a contract already exists for this docking record")
		}
		if err := s.insertNumbered(ctx, tx, contract, now); err != nil {
			return err
		}
		return s.lifecycle.emit(ctx, tx, enums.EventContractCreated, contract, actor.Ref(), "")
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithContractID(ctx, contract.ID.String()), "contract created")
	return contract, nil
}

// insertNumbered assigns the next daily contract number and inserts the row,
// retrying in a fresh savepoint when a concurrent insert took the number.
func (s *service) insertNumbered(ctx context.Context, tx *gorm.DB, contract *models.Contract, now time.Time) error {
	prefix := contractNumberPrefix(now)
	var lastErr error
	for attempt := 0; attempt <= s.numberRetries; attempt++ {
		err := tx.Transaction(func(sp *gorm.DB) error {
			repo := s.repo.WithTx(sp)
			latest, err := repo.LatestNumberWithPrefix(ctx, prefix)
			if err != nil {
				return err
			}
			number, err := nextContractNumber(prefix, latest)
			if err != nil {
				return err
			}
			contract.ID = uuid.Nil
			contract.ContractNo = number
			return repo.Create(ctx, contract)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create contract")
		}
		existing, findErr := s.repo.WithTx(tx).FindByDocking(ctx, contract.DockingID)
		if findErr == nil && existing != nil {
			return pkgerrors.Rule(pkgerrors.ReasonDuplicateContract, "a contract already exists for this docking record")
		}
		lastErr = err
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a contract number")
}

func (s *service) Sign(ctx context.Context, actor auth.Actor, contractID uuid.UUID, signature *storage.File) (*models.Contract, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if signature.Empty() {
		return nil, pkgerrors.Rule(pkgerrors.ReasonMissingArtifact, "a signature file is required to sign")
	}

	current, err := s.lifecycle.Find(ctx, nil, contractID)
	if err != nil {
		return nil, err
	}
	if err := checkSignable(actor, current); err != nil {
		return nil, err
	}

	url, err := s.storage.Upload(ctx, signature, storage.CategoryContractSign)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload signature")
	}

	cleanup := db.Once(func(ctx context.Context) {
		s.deleteUpload(ctx, url)
	})

	var signed *models.Contract
	err = s.tx.InScope(ctx, func(scope *db.Scope) error {
		scope.OnRollback(cleanup)
		tx := scope.Tx()

		contract, err := s.lifecycle.Find(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := checkSignable(actor, contract); err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{}
		switch actor.Role {
		case enums.ActorRoleFarmer:
			contract.FarmerSignURL = &url
			contract.FarmerSignedAt = &now
			updates["farmer_sign_url"] = url
			updates["farmer_signed_at"] = now
		case enums.ActorRolePurchaser:
			contract.PurchaserSignURL = &url
			contract.PurchaserSignedAt = &now
			updates["purchaser_sign_url"] = url
			updates["purchaser_signed_at"] = now
		default:
			return pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "only contract parties can sign")
		}
		if contract.BothSigned() {
			contract.Status = enums.ContractStatusSigned
			updates["status"] = enums.ContractStatusSigned
		}

		won, err := s.repo.WithTx(tx).Transition(ctx, contract.ID, []enums.ContractStatus{enums.ContractStatusDraft}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record signature")
		}
		if !won {
			return pkgerrors.Rule(pkgerrors.ReasonAlreadySigned, "contract changed while signing")
		}
		if err := s.lifecycle.emit(ctx, tx, enums.EventContractSigned, contract, actor.Ref(), ""); err != nil {
			return err
		}
		signed = contract
		return nil
	})
	if err != nil {
		// covers scopes that failed before the rollback hook was registered
		cleanup(context.WithoutCancel(ctx))
		return nil, err
	}
	return signed, nil
}

// checkSignable enforces that the caller is the party for its role, the
// contract is still a draft and the role has not signed yet.
func checkSignable(actor auth.Actor, contract *models.Contract) error {
	var alreadySigned bool
	switch actor.Role {
	case enums.ActorRoleFarmer:
		alreadySigned = contract.FarmerSignURL != nil
	case enums.ActorRolePurchaser:
		alreadySigned = contract.PurchaserSignURL != nil
	case enums.ActorRoleAdmin:
		return pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "only contract parties can sign")
	default:
		return pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, fmt.Sprintf("unknown role %q", actor.Role))
	}
	if err := actor.RequireCounterpart(actor.Role, contract.FarmerID, contract.PurchaserID); err != nil {
		return err
	}
	if contract.Status == enums.ContractStatusSigned || alreadySigned {
		return pkgerrors.Rule(pkgerrors.ReasonAlreadySigned, "contract already signed")
	}
	if contract.Status != enums.ContractStatusDraft {
		return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("contract is %s", contract.Status))
	}
	return nil
}

func (s *service) deleteUpload(ctx context.Context, url string) {
	if err := s.storage.Delete(ctx, url); err != nil {
		s.metrics.IncCompensationFailure(metrics.StepDeleteUpload)
		s.logg.WarnErr(s.logg.WithField(ctx, "url", url), "delete uploaded signature failed", err)
	}
}

func (s *service) Withdraw(ctx context.Context, actor auth.Actor, contractID uuid.UUID, reason string) (*models.Contract, error) {
	return s.terminateFrom(ctx, actor, contractID, reason, terminateRule{
		from: []enums.ContractStatus{enums.ContractStatusDraft},
		allowed: func(a auth.Actor, c *models.Contract) error {
			return a.RequireCounterpart(enums.ActorRolePurchaser, c.FarmerID, c.PurchaserID)
		},
		defaultNote:  "withdrawn by purchaser",
		stateMessage: "only draft contracts can be withdrawn",
	})
}

func (s *service) Reject(ctx context.Context, actor auth.Actor, contractID uuid.UUID, reason string) (*models.Contract, error) {
	return s.terminateFrom(ctx, actor, contractID, reason, terminateRule{
		from:         []enums.ContractStatus{enums.ContractStatusSigned},
		allowed:      requireAnyCounterpart,
		defaultNote:  "rejected",
		stateMessage: "only signed contracts can be rejected",
	})
}

// Terminate ends a non-terminal contract and releases the stock hold of every
// open order, each in its own savepoint. Orders not yet paid are cancelled as
// well; paid orders keep their status so they can still be completed. A
// failing order is logged and the remaining orders still run.
func (s *service) Terminate(ctx context.Context, actor auth.Actor, contractID uuid.UUID, reason string) (*models.Contract, error) {
	return s.terminateFrom(ctx, actor, contractID, reason, terminateRule{
		from: []enums.ContractStatus{
			enums.ContractStatusDraft,
			enums.ContractStatusSigned,
			enums.ContractStatusExecuting,
		},
		allowed: func(a auth.Actor, c *models.Contract) error {
			if a.Role == enums.ActorRoleAdmin {
				return nil
			}
			return requireAnyCounterpart(a, c)
		},
		defaultNote:   "terminated",
		stateMessage:  "completed or terminated contracts cannot be terminated",
		cascadeOrders: true,
	})
}

type terminateRule struct {
	from          []enums.ContractStatus
	allowed       func(auth.Actor, *models.Contract) error
	defaultNote   string
	stateMessage  string
	cascadeOrders bool
}

func requireAnyCounterpart(actor auth.Actor, contract *models.Contract) error {
	if !actor.IsCounterpart(contract.FarmerID, contract.PurchaserID) {
		return pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "caller is not a party to this contract")
	}
	return nil
}

func (s *service) terminateFrom(ctx context.Context, actor auth.Actor, contractID uuid.UUID, reason string, rule terminateRule) (*models.Contract, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(reason)
	if note == "" {
		note = rule.defaultNote
	}
	logCtx := s.logg.WithContractID(ctx, contractID.String())

	var result *models.Contract
	err := s.tx.InScope(ctx, func(scope *db.Scope) error {
		tx := scope.Tx()
		contract, err := s.lifecycle.Find(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := rule.allowed(actor, contract); err != nil {
			return err
		}
		if !containsStatus(rule.from, contract.Status) {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, rule.stateMessage)
		}

		won, err := s.repo.WithTx(tx).Transition(ctx, contract.ID, rule.from, map[string]any{
			"status":             enums.ContractStatusTerminated,
			"termination_reason": note,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "terminate contract")
		}
		if !won {
			return pkgerrors.Rule(pkgerrors.ReasonInvalidState, "contract changed concurrently")
		}
		contract.Status = enums.ContractStatusTerminated
		contract.TerminationReason = &note

		if err := s.lifecycle.emit(ctx, tx, enums.EventContractTerminated, contract, actor.Ref(), note); err != nil {
			return err
		}

		if rule.cascadeOrders {
			s.releaseOpenOrders(logCtx, tx, contract.ID, note, actor)
		}
		result = contract
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(logCtx, "contract terminated")
	return result, nil
}

func (s *service) releaseOpenOrders(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, reason string, actor auth.Actor) {
	var open []models.Order
	err := tx.Transaction(func(sp *gorm.DB) error {
		var err error
		open, err = s.orders.OpenOrdersForContract(ctx, sp, contractID)
		return err
	})
	if err != nil {
		s.metrics.IncCompensationFailure(metrics.StepTerminateOrder)
		s.logg.WarnErr(ctx, "list open orders for terminated contract failed", err)
		return
	}
	note := "contract terminated: " + reason
	for _, order := range open {
		orderID := order.ID
		logCtx := s.logg.WithOrderID(ctx, orderID.String())

		err := tx.Transaction(func(sp *gorm.DB) error {
			return s.ledger.Release(ctx, sp, orderID, note)
		})
		if err != nil {
			s.metrics.IncCompensationFailure(metrics.StepReleaseReservation)
			s.logg.WarnErr(logCtx, "release reservation of terminated contract failed", err)
		}

		if !cancellableOnTermination(order.Status) {
			continue
		}
		err = tx.Transaction(func(sp *gorm.DB) error {
			return s.orders.CancelInTx(ctx, sp, orderID, note, actor)
		})
		if err != nil {
			s.metrics.IncCompensationFailure(metrics.StepTerminateOrder)
			s.logg.WarnErr(logCtx, "cancel order of terminated contract failed", err)
		}
	}
}

func cancellableOnTermination(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPending || status == enums.OrderStatusDelivered
}

func (s *service) Get(ctx context.Context, actor auth.Actor, contractID uuid.UUID) (*models.Contract, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	contract, err := s.lifecycle.Find(ctx, nil, contractID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(contract.FarmerID, contract.PurchaserID) {
		return nil, pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, "caller is not a party to this contract")
	}
	return contract, nil
}

func (s *service) ListForActor(ctx context.Context, actor auth.Actor) ([]models.Contract, error) {
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contracts")
	}
	return rows, nil
}

func containsStatus(statuses []enums.ContractStatus, status enums.ContractStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
