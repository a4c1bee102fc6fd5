package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
)

// Repository reads products and applies stock holds. Hold, DecrementStock and
// Unhold are only called by the reservation ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Hold(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	Unhold(ctx context.Context, id uuid.UUID, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Hold promises qty units to a reservation when enough unheld stock remains.
// It reports false when the product is missing or short.
func (r *repository) Hold(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock - reserved_stock >= ?", id, qty).
		Updates(map[string]any{
			"reserved_stock": gorm.Expr("reserved_stock + ?", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DecrementStock deducts qty units and drops the matching hold. It reports
// false when physical stock no longer covers qty.
func (r *repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Updates(map[string]any{
			"stock":          gorm.Expr("stock - ?", qty),
			"reserved_stock": releasedHold(qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Unhold drops a hold without touching physical stock.
func (r *repository) Unhold(ctx context.Context, id uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reserved_stock": releasedHold(qty),
		}).Error
}

func releasedHold(qty int) clause.Expr {
	return gorm.Expr("CASE WHEN reserved_stock >= ? THEN reserved_stock - ? ELSE 0 END", qty, qty)
}
