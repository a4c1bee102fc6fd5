package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/agritrade/agritrade-backend/pkg/db/dbtest"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
)

func TestHoldRespectsAvailableStock(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	product := dbtest.SeedProduct(t, client.DB(), 10, "4.50")

	ok, err := repo.Hold(ctx, product.ID, 6)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Hold(ctx, product.ID, 5)
	require.NoError(t, err)
	require.False(t, ok, "second hold exceeds stock minus held units")

	ok, err = repo.Hold(ctx, product.ID, 4)
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 10, reloaded.Stock)
	require.Equal(t, 10, reloaded.ReservedStock)
	require.Equal(t, 0, reloaded.Available())
}

func TestDecrementStockDropsHold(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	product := dbtest.SeedProduct(t, client.DB(), 10, "4.50")

	ok, err := repo.Hold(ctx, product.ID, 4)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.DecrementStock(ctx, product.ID, 4)
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 6, reloaded.Stock)
	require.Equal(t, 0, reloaded.ReservedStock)

	ok, err = repo.DecrementStock(ctx, product.ID, 7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnholdNeverGoesNegative(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	product := dbtest.SeedProduct(t, client.DB(), 10, "4.50")

	require.NoError(t, repo.Unhold(ctx, product.ID, 3))

	reloaded, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 10, reloaded.Stock)
	require.Equal(t, 0, reloaded.ReservedStock)
}

func TestServiceReads(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()
	product := dbtest.SeedProduct(t, client.DB(), 12, "4.50")

	stock, err := svc.GetStock(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 12, stock)

	price, err := svc.GetPrice(ctx, product.ID)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("4.5")))

	_, err = svc.Get(ctx, uuid.New())
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
