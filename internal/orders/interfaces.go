package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
)

// Repository persists purchase orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByContract(ctx context.Context, contractID uuid.UUID) (*models.Order, error)
	ListOpenByContract(ctx context.Context, contractID uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, updates map[string]any) (bool, error)
}

type txRunner interface {
	InScope(ctx context.Context, fn func(scope *db.Scope) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ContractLifecycle moves the parent contract along with its order.
type ContractLifecycle interface {
	Find(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) (*models.Contract, error)
	MarkExecuting(ctx context.Context, tx *gorm.DB, contract *models.Contract) error
	Complete(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, actor *outbox.ActorRef) error
}

// StockLedger holds and frees product stock for an order.
type StockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, orderID, productID uuid.UUID, quantity int) (uuid.UUID, error)
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error
}

// ActivityRecorder counts order creations per origin region.
type ActivityRecorder interface {
	Record(key string, at time.Time)
}
