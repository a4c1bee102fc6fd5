package contracts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
	"github.com/agritrade/agritrade-backend/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Lifecycle applies the contract transitions driven by its order. It runs on
// the caller's transaction.
type Lifecycle struct {
	repo   Repository
	outbox outboxPublisher
}

func NewLifecycle(repo Repository, outbox outboxPublisher) (*Lifecycle, error) {
	if repo == nil {
		return nil, fmt.Errorf("contracts repository required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Lifecycle{repo: repo, outbox: outbox}, nil
}

// Find loads the contract inside tx.
func (l *Lifecycle) Find(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) (*models.Contract, error) {
	contract, err := l.repo.WithTx(tx).FindByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contract")
	}
	return contract, nil
}

// MarkExecuting moves a signed contract to executing once its order exists.
func (l *Lifecycle) MarkExecuting(ctx context.Context, tx *gorm.DB, contract *models.Contract) error {
	won, err := l.repo.WithTx(tx).Transition(ctx, contract.ID,
		[]enums.ContractStatus{enums.ContractStatusSigned},
		map[string]any{"status": enums.ContractStatusExecuting},
	)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark contract executing")
	}
	if !won {
		return pkgerrors.Rule(pkgerrors.ReasonInvalidState, "contract is no longer signed")
	}
	contract.Status = enums.ContractStatusExecuting
	return nil
}

// Complete closes an executing contract after its order completed. Calling it
// for an already completed contract is a no-op, and so is a terminated one:
// an order paid before termination may still be completed.
func (l *Lifecycle) Complete(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, actor *outbox.ActorRef) error {
	repo := l.repo.WithTx(tx)
	won, err := repo.Transition(ctx, contractID,
		[]enums.ContractStatus{enums.ContractStatusExecuting},
		map[string]any{"status": enums.ContractStatusCompleted},
	)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete contract")
	}

	contract, err := l.Find(ctx, tx, contractID)
	if err != nil {
		return err
	}
	if !won {
		switch contract.Status {
		case enums.ContractStatusCompleted, enums.ContractStatusTerminated:
			return nil
		}
		return pkgerrors.Rule(pkgerrors.ReasonInvalidState, fmt.Sprintf("contract is %s, not executing", contract.Status))
	}
	return l.emit(ctx, tx, enums.EventContractCompleted, contract, actor, "")
}

func (l *Lifecycle) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, contract *models.Contract, actor *outbox.ActorRef, reason string) error {
	return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateContract,
		AggregateID:   contract.ID,
		Actor:         actor,
		Data: payloads.ContractEvent{
			ContractID:  contract.ID,
			ContractNo:  contract.ContractNo,
			DockingID:   contract.DockingID,
			FarmerID:    contract.FarmerID,
			PurchaserID: contract.PurchaserID,
			Status:      contract.Status,
			Reason:      reason,
		},
	})
}
