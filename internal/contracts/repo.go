package contracts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
)

// ListFilter narrows contract listings to one party. A zero filter lists everything.
type ListFilter struct {
	FarmerID    *uuid.UUID
	PurchaserID *uuid.UUID
	Limit       int
}

// Repository persists purchase contracts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contract *models.Contract) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	FindByDocking(ctx context.Context, dockingID uuid.UUID) (*models.Contract, error)
	LatestNumberWithPrefix(ctx context.Context, prefix string) (string, error)
	List(ctx context.Context, filter ListFilter) ([]models.Contract, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.ContractStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a contract repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contract *models.Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// FindByDocking returns the contract generated from the docking record, or nil.
func (r *repository) FindByDocking(ctx context.Context, dockingID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	err := r.db.WithContext(ctx).Where("docking_id = ?", dockingID).First(&contract).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// LatestNumberWithPrefix returns the highest contract number starting with
// prefix, or an empty string.
func (r *repository) LatestNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("contract_no LIKE ?", prefix+"%").
		Order("contract_no DESC").
		Limit(1).
		Pluck("contract_no", &numbers).Error
	if err != nil {
		return "", err
	}
	if len(numbers) == 0 {
		return "", nil
	}
	return numbers[0], nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Contract, error) {
	query := r.db.WithContext(ctx).Model(&models.Contract{})
	if filter.FarmerID != nil {
		query = query.Where("farmer_id = ?", *filter.FarmerID)
	}
	if filter.PurchaserID != nil {
		query = query.Where("purchaser_id = ?", *filter.PurchaserID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []models.Contract
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition applies updates while the contract is in one of the from
// statuses and reports whether the row changed.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.ContractStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
