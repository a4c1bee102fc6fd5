package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
)

// Service exposes read access to farmer products.
type Service interface {
	Get(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	GetStock(ctx context.Context, productID uuid.UUID) (int, error)
	GetPrice(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo Repository
}

// NewService builds the catalog read service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

// GetStock returns the physical stock of the product.
func (s *service) GetStock(ctx context.Context, productID uuid.UUID) (int, error) {
	product, err := s.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.Stock, nil
}

func (s *service) GetPrice(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	product, err := s.Get(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.Price, nil
}
