package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db/dbtest"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
)

func seedOrder(t *testing.T, conn *gorm.DB, contract *models.Contract, status enums.OrderStatus, createdAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNo:     "ORD" + uuid.NewString()[:12],
		ContractID:  contract.ID,
		FarmerID:    contract.FarmerID,
		PurchaserID: contract.PurchaserID,
		ProductID:   contract.ProductID,
		ProductInfo: contract.ProductInfo,
		Quantity:    contract.Quantity,
		TotalAmount: contract.TotalAmount,
		Status:      status,
		CreatedAt:   createdAt,
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func TestRepositoryFindByContract(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := NewRepository(conn)
	ctx := context.Background()
	product := dbtest.SeedProduct(t, conn, 100, "3.00")
	contract := dbtest.SeedContract(t, conn, product, 10, enums.ContractStatusExecuting)

	missing, err := repo.FindByContract(ctx, contract.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	order := seedOrder(t, conn, contract, enums.OrderStatusPending, time.Now().UTC())
	found, err := repo.FindByContract(ctx, contract.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.ID, found.ID)
	assert.Equal(t, contract.ProductInfo.Name, found.ProductInfo.Name)
}

func TestRepositoryOneOrderPerContract(t *testing.T) {
	conn := dbtest.Open(t).DB()
	product := dbtest.SeedProduct(t, conn, 100, "3.00")
	contract := dbtest.SeedContract(t, conn, product, 10, enums.ContractStatusExecuting)
	seedOrder(t, conn, contract, enums.OrderStatusPending, time.Now().UTC())

	second := &models.Order{
		OrderNo:     "ORD-second",
		ContractID:  contract.ID,
		FarmerID:    contract.FarmerID,
		PurchaserID: contract.PurchaserID,
		ProductID:   contract.ProductID,
		ProductInfo: contract.ProductInfo,
		Quantity:    1,
		TotalAmount: contract.TotalAmount,
	}
	assert.Error(t, NewRepository(conn).Create(context.Background(), second))
}

func TestRepositoryListOpenByContractSkipsTerminal(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := NewRepository(conn)
	product := dbtest.SeedProduct(t, conn, 100, "3.00")
	open := dbtest.SeedContract(t, conn, product, 10, enums.ContractStatusExecuting)
	closed := dbtest.SeedContract(t, conn, product, 10, enums.ContractStatusExecuting)
	order := seedOrder(t, conn, open, enums.OrderStatusPaid, time.Now().UTC())
	seedOrder(t, conn, closed, enums.OrderStatusCancelled, time.Now().UTC())

	rows, err := repo.ListOpenByContract(context.Background(), open.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, order.ID, rows[0].ID)

	rows, err = repo.ListOpenByContract(context.Background(), closed.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryListFiltersAndOrdersNewestFirst(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := NewRepository(conn)
	product := dbtest.SeedProduct(t, conn, 100, "3.00")
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first := dbtest.SeedContract(t, conn, product, 10, enums.ContractStatusExecuting)
	second := dbtest.SeedContract(t, conn, product, 10, enums.ContractStatusExecuting)
	older := seedOrder(t, conn, first, enums.OrderStatusPending, base)
	newer := seedOrder(t, conn, second, enums.OrderStatusPending, base.Add(time.Hour))

	all, err := repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)

	purchaser := first.PurchaserID
	mine, err := repo.List(context.Background(), ListFilter{PurchaserID: &purchaser})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, older.ID, mine[0].ID)

	farmer := product.FarmerID
	limited, err := repo.List(context.Background(), ListFilter{FarmerID: &farmer, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)
}

func TestRepositoryTransitionIsConditional(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := NewRepository(conn)
	ctx := context.Background()
	product := dbtest.SeedProduct(t, conn, 100, "3.00")
	contract := dbtest.SeedContract(t, conn, product, 10, enums.ContractStatusExecuting)
	order := seedOrder(t, conn, contract, enums.OrderStatusPending, time.Now().UTC())

	won, err := repo.Transition(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending},
		map[string]any{"status": enums.OrderStatusDelivered})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Transition(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending},
		map[string]any{"status": enums.OrderStatusCancelled})
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
}
