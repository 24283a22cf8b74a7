package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"offramp.backend/internal/domain/entities"
)

// QuoteRepository defines quote persistence
type QuoteRepository interface {
	Create(ctx context.Context, quote *entities.Quote) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Quote, error)
	// MarkExecuted succeeds only for an active quote whose lock has not lapsed at now.
	MarkExecuted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	ExpireBefore(ctx context.Context, now time.Time, limit int) (int64, error)
}
