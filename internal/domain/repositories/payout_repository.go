package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"offramp.backend/internal/domain/entities"
)

// PayoutRepository defines payout persistence
type PayoutRepository interface {
	Create(ctx context.Context, payout *entities.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Payout, error)
	GetByQuoteID(ctx context.Context, quoteID uuid.UUID) (*entities.Payout, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Payout, int64, error)
	// ListReconcilable returns non-terminal payouts created within [createdAfter, createdBefore].
	ListReconcilable(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*entities.Payout, error)
	ListAnomalies(ctx context.Context, limit int) ([]*entities.Payout, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from []entities.PayoutStatus, to entities.PayoutStatus) (bool, error)
	SetProviderReference(ctx context.Context, id uuid.UUID, reference string) error
	FlagAnomaly(ctx context.Context, id uuid.UUID, reason string) error
	Resolve(ctx context.Context, id uuid.UUID, status entities.PayoutStatus, note string) (bool, error)
}
