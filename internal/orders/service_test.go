package orders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/internal/catalog"
	"github.com/agritrade/agritrade-backend/internal/contracts"
	"github.com/agritrade/agritrade-backend/internal/reservations"
	"github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/db/dbtest"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
)

type recordedActivity struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordedActivity) Record(key string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

// flakyLedger forwards to the real ledger unless a failure is configured.
type flakyLedger struct {
	next       StockLedger
	reserveErr error
	releaseErr error
}

func (f *flakyLedger) Reserve(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, quantity int) (uuid.UUID, error) {
	if f.reserveErr != nil {
		return uuid.Nil, f.reserveErr
	}
	return f.next.Reserve(ctx, tx, orderID, productID, quantity)
}

func (f *flakyLedger) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	return f.next.Release(ctx, tx, orderID, reason)
}

type orderFixture struct {
	client    *db.Client
	svc       Service
	lifecycle *Lifecycle
	ledger    *flakyLedger
	activity  *recordedActivity
	metrics   *metrics.WorkflowMetrics
	now       time.Time
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	publisher := outbox.NewService(outbox.NewRepository(client.DB()), logg)

	f := &orderFixture{
		client:   client,
		activity: &recordedActivity{},
		metrics:  metrics.NewWorkflowMetrics(prometheus.NewRegistry()),
		now:      time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	realLedger, err := reservations.NewLedger(reservations.LedgerParams{
		Repo:    reservations.NewRepository(client.DB()),
		Catalog: catalog.NewRepository(client.DB()),
		Outbox:  publisher,
		Logger:  logg,
		Metrics: f.metrics,
		Now:     clock,
	})
	require.NoError(t, err)
	f.ledger = &flakyLedger{next: realLedger}

	contractLifecycle, err := contracts.NewLifecycle(contracts.NewRepository(client.DB()), publisher)
	require.NoError(t, err)
	repo := NewRepository(client.DB())
	f.lifecycle, err = NewLifecycle(repo, publisher)
	require.NoError(t, err)

	f.svc, err = NewService(ServiceParams{
		Repo:      repo,
		Lifecycle: f.lifecycle,
		Contracts: contractLifecycle,
		Ledger:    f.ledger,
		Activity:  f.activity,
		Tx:        client,
		Logger:    logg,
		Metrics:   f.metrics,
		Now:       clock,
	})
	require.NoError(t, err)
	return f
}

func purchaserFor(contract *models.Contract) auth.Actor {
	return auth.Actor{UserID: uuid.New(), PartyID: contract.PurchaserID, Role: enums.ActorRolePurchaser}
}

func farmerFor(contract *models.Contract) auth.Actor {
	return auth.Actor{UserID: uuid.New(), PartyID: contract.FarmerID, Role: enums.ActorRoleFarmer}
}

func adminActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
}

func (f *orderFixture) signedContract(t *testing.T, stock, qty int) (*models.Product, *models.Contract) {
	t.Helper()
	product := dbtest.SeedProduct(t, f.client.DB(), stock, "2.50")
	return product, dbtest.SeedContract(t, f.client.DB(), product, qty, enums.ContractStatusSigned)
}

func (f *orderFixture) reservation(t *testing.T, orderID uuid.UUID) *models.StockReservation {
	t.Helper()
	var rows []models.StockReservation
	require.NoError(t, f.client.DB().Where("order_id = ?", orderID).Find(&rows).Error)
	if len(rows) == 0 {
		return nil
	}
	require.Len(t, rows, 1)
	return &rows[0]
}

func (f *orderFixture) contractStatus(t *testing.T, id uuid.UUID) enums.ContractStatus {
	t.Helper()
	var contract models.Contract
	require.NoError(t, f.client.DB().First(&contract, "id = ?", id).Error)
	return contract.Status
}

func (f *orderFixture) markPaid(t *testing.T, order *models.Order) {
	t.Helper()
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		won, err := f.lifecycle.MarkPaid(context.Background(), tx, order, f.now, nil)
		require.True(t, won)
		return err
	}))
}

func TestCreateFromContractReservesStock(t *testing.T) {
	f := newOrderFixture(t)
	product, contract := f.signedContract(t, 500, 100)

	order, err := f.svc.CreateFromContract(context.Background(), purchaserFor(contract), contract.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Regexp(t, `^ORD20260301093000[1-9][0-9]{3}$`, order.OrderNo)
	assert.Equal(t, 100, order.Quantity)
	assert.True(t, contract.TotalAmount.Equal(order.TotalAmount))
	assert.Equal(t, contract.ProductInfo.Name, order.ProductInfo.Name)
	assert.Equal(t, enums.ContractStatusExecuting, f.contractStatus(t, contract.ID))

	reservation := f.reservation(t, order.ID)
	require.NotNil(t, reservation)
	assert.Equal(t, enums.ReservationStatusReserved, reservation.Status)
	assert.Equal(t, 100, reservation.ReservedQuantity)

	stored := dbtest.ReloadProduct(t, f.client.DB(), product.ID)
	assert.Equal(t, 500, stored.Stock, "reservation must not deduct stock")
	assert.Equal(t, 100, stored.ReservedStock)
	assert.Equal(t, []string{"shaanxi"}, f.activity.keys)
}

func TestCreateFromContractSucceedsWhenReservationFails(t *testing.T) {
	f := newOrderFixture(t)
	product, contract := f.signedContract(t, 50, 100)

	order, err := f.svc.CreateFromContract(context.Background(), purchaserFor(contract), contract.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Nil(t, f.reservation(t, order.ID))

	stored := dbtest.ReloadProduct(t, f.client.DB(), product.ID)
	assert.Equal(t, 50, stored.Stock)
	assert.Equal(t, 0, stored.ReservedStock)
	assert.Equal(t, float64(1), f.metrics.CompensationFailures(metrics.StepReserveStock))
	assert.Equal(t, enums.ContractStatusExecuting, f.contractStatus(t, contract.ID))
}

func TestCreateFromContractSurvivesLedgerOutage(t *testing.T) {
	f := newOrderFixture(t)
	f.ledger.reserveErr = errors.New("ledger unavailable")
	_, contract := f.signedContract(t, 500, 10)

	order, err := f.svc.CreateFromContract(context.Background(), purchaserFor(contract), contract.ID)
	require.NoError(t, err)
	assert.Nil(t, f.reservation(t, order.ID))
}

func TestCreateFromContractRules(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, contract := f.signedContract(t, 500, 10)

	_, err := f.svc.CreateFromContract(ctx, farmerFor(contract), contract.ID)
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonUnauthorizedActor), "got %v", err)

	_, err = f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	assert.Error(t, err, "second order for the same contract must fail")

	draftProduct := dbtest.SeedProduct(t, f.client.DB(), 100, "1.00")
	draft := dbtest.SeedContract(t, f.client.DB(), draftProduct, 10, enums.ContractStatusDraft)
	_, err = f.svc.CreateFromContract(ctx, purchaserFor(draft), draft.ID)
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonInvalidState), "got %v", err)

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Order{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateFromContractRejectsExistingOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, contract := f.signedContract(t, 500, 10)
	_, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)

	// contract back to signed so only the order check can stop the second create
	require.NoError(t, f.client.DB().Model(&models.Contract{}).Where("id = ?", contract.ID).
		Update("status", enums.ContractStatusSigned).Error)
	_, err = f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonDuplicateOrder), "got %v", err)
}

func TestInspectRecordsDeliveryWithoutTouchingStock(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	product, contract := f.signedContract(t, 500, 100)
	order, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)

	stranger := auth.Actor{UserID: uuid.New(), PartyID: uuid.New(), Role: enums.ActorRoleFarmer}
	_, err = f.svc.Inspect(ctx, stranger, order.ID, InspectInput{ActualQuantity: 98})
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonUnauthorizedActor), "got %v", err)
	_, err = f.svc.Inspect(ctx, auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}, order.ID, InspectInput{ActualQuantity: 98})
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonUnauthorizedActor), "got %v", err)

	_, err = f.svc.Inspect(ctx, purchaserFor(contract), order.ID, InspectInput{ActualQuantity: 0})
	require.Error(t, err)

	inspected, err := f.svc.Inspect(ctx, purchaserFor(contract), order.ID, InspectInput{ActualQuantity: 98, Notes: " good quality "})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, inspected.Status)
	require.NotNil(t, inspected.ActualAmount)
	assert.Equal(t, "245", inspected.ActualAmount.String())
	assert.Equal(t, "good quality", *inspected.InspectionResult)

	var stored models.Order
	require.NoError(t, f.client.DB().First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
	require.NotNil(t, stored.ActualQuantity)
	assert.Equal(t, 98, *stored.ActualQuantity)
	require.NotNil(t, stored.DeliveryTime)

	reloaded := dbtest.ReloadProduct(t, f.client.DB(), product.ID)
	assert.Equal(t, 500, reloaded.Stock)
	assert.Equal(t, 100, reloaded.ReservedStock)

	_, err = f.svc.Inspect(ctx, purchaserFor(contract), order.ID, InspectInput{ActualQuantity: 98})
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonInvalidState), "got %v", err)
}

func TestFarmerRecordsDelivery(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, contract := f.signedContract(t, 500, 100)
	order, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)

	delivered, err := f.svc.Inspect(ctx, farmerFor(contract), order.ID, InspectInput{ActualQuantity: 100, Notes: "unloaded at dock 3"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.ActualQuantity)
	assert.Equal(t, 100, *delivered.ActualQuantity)

	_, err = f.svc.Inspect(ctx, purchaserFor(contract), order.ID, InspectInput{ActualQuantity: 100})
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonInvalidState), "got %v", err)
}

func TestCancelBeforePaymentReleasesReservation(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	product, contract := f.signedContract(t, 500, 100)
	order, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, purchaserFor(contract), order.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "no longer needed", *cancelled.CancelReason)

	reservation := f.reservation(t, order.ID)
	require.NotNil(t, reservation)
	assert.Equal(t, enums.ReservationStatusReleased, reservation.Status)

	reloaded := dbtest.ReloadProduct(t, f.client.DB(), product.ID)
	assert.Equal(t, 500, reloaded.Stock)
	assert.Equal(t, 0, reloaded.ReservedStock)

	_, err = f.svc.Cancel(ctx, purchaserFor(contract), order.ID, "")
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonInvalidState), "got %v", err)
}

func TestCancelSwallowsReleaseFailure(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, contract := f.signedContract(t, 500, 10)
	order, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)
	f.ledger.releaseErr = errors.New("release failed")

	cancelled, err := f.svc.Cancel(ctx, farmerFor(contract), order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, float64(1), f.metrics.CompensationFailures(metrics.StepReleaseReservation))
	assert.Equal(t, enums.ReservationStatusReserved, f.reservation(t, order.ID).Status)
}

func TestCancelRejectsStrangers(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, contract := f.signedContract(t, 500, 10)
	order, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)

	stranger := auth.Actor{UserID: uuid.New(), PartyID: uuid.New(), Role: enums.ActorRoleFarmer}
	_, err = f.svc.Cancel(ctx, stranger, order.ID, "")
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonUnauthorizedActor), "got %v", err)

	_, err = f.svc.Cancel(ctx, adminActor(), order.ID, "fraud")
	require.NoError(t, err)
}

func TestCompleteRequiresPaidAndCompletesContract(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, contract := f.signedContract(t, 500, 10)
	order, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, purchaserFor(contract), order.ID)
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonInvalidState), "got %v", err)

	f.markPaid(t, order)

	_, err = f.svc.Complete(ctx, farmerFor(contract), order.ID)
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonUnauthorizedActor), "got %v", err)

	completed, err := f.svc.Complete(ctx, purchaserFor(contract), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, enums.ContractStatusCompleted, f.contractStatus(t, contract.ID))
}

func TestAdminCompletesPaidOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, contract := f.signedContract(t, 500, 10)
	order, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)
	f.markPaid(t, order)

	_, err = f.svc.Complete(ctx, adminActor(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusCompleted, f.contractStatus(t, contract.ID))
}

func TestMarkPaidOnlyFromPendingOrDelivered(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, contract := f.signedContract(t, 500, 10)
	order, err := f.svc.CreateFromContract(ctx, purchaserFor(contract), contract.ID)
	require.NoError(t, err)
	f.markPaid(t, order)

	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := f.lifecycle.MarkPaid(ctx, tx, order, f.now, nil)
		assert.False(t, won)
		return err
	}))
}

func TestGetAndListForActor(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	_, first := f.signedContract(t, 500, 10)
	_, second := f.signedContract(t, 500, 10)
	mine, err := f.svc.CreateFromContract(ctx, purchaserFor(first), first.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateFromContract(ctx, purchaserFor(second), second.ID)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, farmerFor(first), mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = f.svc.Get(ctx, purchaserFor(second), mine.ID)
	assert.True(t, pkgerrors.IsRule(err, pkgerrors.ReasonUnauthorizedActor), "got %v", err)

	rows, err := f.svc.ListForActor(ctx, purchaserFor(first))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, mine.ID, rows[0].ID)

	all, err := f.svc.ListForActor(ctx, adminActor())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.ListForActor(ctx, auth.Actor{UserID: uuid.New(), PartyID: uuid.New(), Role: "broker"})
	require.Error(t, err)
}
