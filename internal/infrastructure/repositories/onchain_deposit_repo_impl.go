package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/models"
	"offramp.backend/pkg/utils"
)

// onchainDepositRepo implements repositories.OnchainDepositRepository
type onchainDepositRepo struct {
	db *gorm.DB
}

// NewOnchainDepositRepository creates a new onchain deposit repository
func NewOnchainDepositRepository(db *gorm.DB) repositories.OnchainDepositRepository {
	return &onchainDepositRepo{db: db}
}

func (r *onchainDepositRepo) Create(ctx context.Context, d *entities.OnchainDeposit) error {
	now := time.Now()
	if d.ID == uuid.Nil {
		d.ID = utils.GenerateUUIDv7()
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = now
	}
	d.UpdatedAt = now

	m := &models.OnchainDeposit{
		ID:                    d.ID,
		DepositAddressID:      d.DepositAddressID,
		Chain:                 d.Chain,
		Asset:                 d.Asset,
		Token:                 d.Token,
		TxRef:                 d.TxRef,
		Initiator:             d.Initiator,
		Amount:                d.Amount,
		Confirmations:         d.Confirmations,
		RequiredConfirmations: d.RequiredConfirmations,
		Status:                string(d.Status),
		SweepAttempts:         d.SweepAttempts,
		SweepTxRef:            d.SweepTxRef.Ptr(),
		NeedsReview:           d.NeedsReview,
		ReviewReason:          d.ReviewReason.Ptr(),
		LastError:             d.LastError.Ptr(),
		DetectedAt:            d.DetectedAt,
		ConfirmedAt:           d.ConfirmedAt.Ptr(),
		SweptAt:               d.SweptAt.Ptr(),
		UpdatedAt:             d.UpdatedAt,
	}
	return translateError(GetDB(ctx, r.db).WithContext(ctx).Create(m).Error)
}

func (r *onchainDepositRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.OnchainDeposit, error) {
	var m models.OnchainDeposit
	if err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *onchainDepositRepo) GetByTxRef(ctx context.Context, depositAddressID uuid.UUID, txRef string) (*entities.OnchainDeposit, error) {
	var m models.OnchainDeposit
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("deposit_address_id = ? AND tx_ref = ?", depositAddressID, txRef).
		First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *onchainDepositRepo) ListByStatus(ctx context.Context, statuses []entities.DepositStatus, limit int) ([]*entities.OnchainDeposit, error) {
	return r.find(ctx, limit, "status IN ?", statusStrings(statuses))
}

func (r *onchainDepositRepo) ListSweepable(ctx context.Context, limit int) ([]*entities.OnchainDeposit, error) {
	return r.find(ctx, limit, "status = ? AND needs_review = ?", entities.DepositStatusConfirmed, false)
}

func (r *onchainDepositRepo) ListSweepableByAddress(ctx context.Context, depositAddressID uuid.UUID, token string) ([]*entities.OnchainDeposit, error) {
	return r.find(ctx, -1, "deposit_address_id = ? AND token = ? AND status = ? AND needs_review = ?",
		depositAddressID, token, entities.DepositStatusConfirmed, false)
}

func (r *onchainDepositRepo) ListNeedsReview(ctx context.Context, limit int) ([]*entities.OnchainDeposit, error) {
	return r.find(ctx, limit, "needs_review = ?", true)
}

func (r *onchainDepositRepo) ListByDepositAddresses(ctx context.Context, addressIDs []uuid.UUID, limit, offset int) ([]*entities.OnchainDeposit, int64, error) {
	if len(addressIDs) == 0 {
		return []*entities.OnchainDeposit{}, 0, nil
	}

	var total int64
	if err := GetDB(ctx, r.db).WithContext(ctx).Model(&models.OnchainDeposit{}).
		Where("deposit_address_id IN ?", addressIDs).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.OnchainDeposit
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("deposit_address_id IN ?", addressIDs).
		Order("detected_at DESC").
		Limit(limit).Offset(offset).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}
	return r.toEntities(ms), total, nil
}

func (r *onchainDepositRepo) UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int64) error {
	return r.update(ctx, id, map[string]interface{}{
		"confirmations": confirmations,
		"updated_at":    time.Now(),
	})
}

// Transition moves the deposit to `to` only if it is currently in one of `from`.
func (r *onchainDepositRepo) Transition(ctx context.Context, id uuid.UUID, from []entities.DepositStatus, to entities.DepositStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": at,
	}
	if to == entities.DepositStatusConfirmed {
		updates["confirmed_at"] = at
	}

	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.OnchainDeposit{}).
		Where("id = ? AND status IN ?", id, statusStrings(from)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkSwept is the single write that makes a sweep final; it matches only confirmed rows.
func (r *onchainDepositRepo) MarkSwept(ctx context.Context, ids []uuid.UUID, sweepTxRef string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.OnchainDeposit{}).
		Where("id IN ? AND status = ?", ids, entities.DepositStatusConfirmed).
		Updates(map[string]interface{}{
			"status":       string(entities.DepositStatusSwept),
			"sweep_tx_ref": sweepTxRef,
			"swept_at":     at,
			"last_error":   nil,
			"updated_at":   at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (r *onchainDepositRepo) RecordSweepFailure(ctx context.Context, id uuid.UUID, lastError string) (int, error) {
	db := GetDB(ctx, r.db).WithContext(ctx)
	result := db.Model(&models.OnchainDeposit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sweep_attempts": gorm.Expr("sweep_attempts + ?", 1),
			"last_error":     lastError,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, domainerrors.ErrNotFound
	}

	var attempts int
	if err := db.Model(&models.OnchainDeposit{}).
		Where("id = ?", id).
		Select("sweep_attempts").
		Scan(&attempts).Error; err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *onchainDepositRepo) FlagReview(ctx context.Context, id uuid.UUID, reason string) error {
	return r.update(ctx, id, map[string]interface{}{
		"needs_review":  true,
		"review_reason": reason,
		"updated_at":    time.Now(),
	})
}

// ClearReview also resets the attempt counter so the sweep job picks the deposit up again.
func (r *onchainDepositRepo) ClearReview(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, map[string]interface{}{
		"needs_review":   false,
		"review_reason":  nil,
		"sweep_attempts": 0,
		"updated_at":     time.Now(),
	})
}

func (r *onchainDepositRepo) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.OnchainDeposit{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *onchainDepositRepo) find(ctx context.Context, limit int, query string, args ...interface{}) ([]*entities.OnchainDeposit, error) {
	var ms []models.OnchainDeposit
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where(query, args...).
		Order("detected_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toEntities(ms), nil
}

func (r *onchainDepositRepo) toEntities(ms []models.OnchainDeposit) []*entities.OnchainDeposit {
	deposits := make([]*entities.OnchainDeposit, 0, len(ms))
	for i := range ms {
		deposits = append(deposits, r.toEntity(&ms[i]))
	}
	return deposits
}

func (r *onchainDepositRepo) toEntity(m *models.OnchainDeposit) *entities.OnchainDeposit {
	return &entities.OnchainDeposit{
		ID:                    m.ID,
		DepositAddressID:      m.DepositAddressID,
		Chain:                 m.Chain,
		Asset:                 m.Asset,
		Token:                 m.Token,
		TxRef:                 m.TxRef,
		Initiator:             m.Initiator,
		Amount:                m.Amount,
		Confirmations:         m.Confirmations,
		RequiredConfirmations: m.RequiredConfirmations,
		Status:                entities.DepositStatus(m.Status),
		SweepAttempts:         m.SweepAttempts,
		SweepTxRef:            null.StringFromPtr(m.SweepTxRef),
		NeedsReview:           m.NeedsReview,
		ReviewReason:          null.StringFromPtr(m.ReviewReason),
		LastError:             null.StringFromPtr(m.LastError),
		DetectedAt:            m.DetectedAt,
		ConfirmedAt:           null.TimeFromPtr(m.ConfirmedAt),
		SweptAt:               null.TimeFromPtr(m.SweptAt),
		UpdatedAt:             m.UpdatedAt,
	}
}

func statusStrings(statuses []entities.DepositStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
