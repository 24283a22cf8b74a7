package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"offramp.backend/internal/domain/entities"
)

// OnchainDepositRepository defines deposit persistence. Status changes are conditional on the current status.
type OnchainDepositRepository interface {
	Create(ctx context.Context, deposit *entities.OnchainDeposit) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.OnchainDeposit, error)
	GetByTxRef(ctx context.Context, depositAddressID uuid.UUID, txRef string) (*entities.OnchainDeposit, error)
	ListByStatus(ctx context.Context, statuses []entities.DepositStatus, limit int) ([]*entities.OnchainDeposit, error)
	ListSweepable(ctx context.Context, limit int) ([]*entities.OnchainDeposit, error)
	// ListSweepableByAddress returns the confirmed, unflagged deposits of one asset sitting on an address.
	ListSweepableByAddress(ctx context.Context, depositAddressID uuid.UUID, token string) ([]*entities.OnchainDeposit, error)
	ListByDepositAddresses(ctx context.Context, addressIDs []uuid.UUID, limit, offset int) ([]*entities.OnchainDeposit, int64, error)
	ListNeedsReview(ctx context.Context, limit int) ([]*entities.OnchainDeposit, error)

	UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int64) error
	Transition(ctx context.Context, id uuid.UUID, from []entities.DepositStatus, to entities.DepositStatus, at time.Time) (bool, error)
	// MarkSwept moves every listed confirmed deposit to swept under one transfer and returns how many it moved.
	MarkSwept(ctx context.Context, ids []uuid.UUID, sweepTxRef string, at time.Time) (int, error)
	RecordSweepFailure(ctx context.Context, id uuid.UUID, lastError string) (int, error)
	FlagReview(ctx context.Context, id uuid.UUID, reason string) error
	ClearReview(ctx context.Context, id uuid.UUID) error
}
