package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
)

// Repository persists payment records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.PaymentRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID, limit int) ([]models.PaymentRecord, error)
	List(ctx context.Context, filter ListFilter) ([]models.PaymentRecord, error)
	Transition(ctx context.Context, id uuid.UUID, from enums.PaymentStatus, updates map[string]any) (bool, error)
}

// ListFilter narrows payments by the parties of their order. Nil fields
// match every order.
type ListFilter struct {
	FarmerID    *uuid.UUID
	PurchaserID *uuid.UUID
	Limit       int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID, limit int) ([]models.PaymentRecord, error) {
	query := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.PaymentRecord
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.PaymentRecord, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Select("payment_records.*").
		Joins("JOIN purchase_orders ON purchase_orders.id = payment_records.order_id")
	if filter.FarmerID != nil {
		query = query.Where("purchase_orders.farmer_id = ?", *filter.FarmerID)
	}
	if filter.PurchaserID != nil {
		query = query.Where("purchase_orders.purchaser_id = ?", *filter.PurchaserID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []models.PaymentRecord
	err := query.Order("payment_records.created_at DESC").Order("payment_records.id DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition applies updates while the record is still in from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from enums.PaymentStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
