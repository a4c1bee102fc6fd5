package docking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
)

// Service gives the contract workflow read access to negotiations.
type Service interface {
	GetAgreed(ctx context.Context, tx *gorm.DB, dockingID uuid.UUID) (*models.DockingRecord, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("docking repository required")
	}
	return &service{repo: repo}, nil
}

// GetAgreed returns the negotiation only when both parties agreed on its terms.
func (s *service) GetAgreed(ctx context.Context, tx *gorm.DB, dockingID uuid.UUID) (*models.DockingRecord, error) {
	if dockingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "docking id required")
	}
	record, err := s.repo.WithTx(tx).FindByID(ctx, dockingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "docking record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load docking record")
	}
	if record.Status != enums.DockingStatusAgreed {
		return nil, pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("docking record is %s, not agreed", record.Status))
	}
	return record, nil
}
