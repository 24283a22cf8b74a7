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

// payoutRepo implements repositories.PayoutRepository
type payoutRepo struct {
	db *gorm.DB
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *gorm.DB) repositories.PayoutRepository {
	return &payoutRepo{db: db}
}

func (r *payoutRepo) Create(ctx context.Context, p *entities.Payout) error {
	now := time.Now()
	if p.ID == uuid.Nil {
		p.ID = utils.GenerateUUIDv7()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	m := &models.Payout{
		ID:                p.ID,
		QuoteID:           p.QuoteID,
		UserID:            p.UserID,
		BeneficiaryID:     p.BeneficiaryID,
		BankCode:          p.BankCode,
		AccountNumber:     p.AccountNumber,
		AccountName:       p.AccountName,
		FiatAmount:        p.FiatAmount,
		Currency:          p.Currency,
		Status:            string(p.Status),
		ProviderReference: p.ProviderReference.Ptr(),
		Anomaly:           p.Anomaly,
		AnomalyReason:     p.AnomalyReason.Ptr(),
		ResolutionNote:    p.ResolutionNote.Ptr(),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	return translateError(GetDB(ctx, r.db).WithContext(ctx).Create(m).Error)
}

func (r *payoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Payout, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *payoutRepo) GetByQuoteID(ctx context.Context, quoteID uuid.UUID) (*entities.Payout, error) {
	return r.first(ctx, "quote_id = ?", quoteID)
}

func (r *payoutRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Payout, int64, error) {
	var total int64
	if err := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Payout{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.Payout
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}
	return r.toEntities(ms), total, nil
}

func (r *payoutRepo) ListReconcilable(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*entities.Payout, error) {
	var ms []models.Payout
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("status IN ? AND created_at >= ? AND created_at <= ?",
			[]string{string(entities.PayoutStatusPending), string(entities.PayoutStatusProcessing)},
			createdAfter, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toEntities(ms), nil
}

func (r *payoutRepo) ListAnomalies(ctx context.Context, limit int) ([]*entities.Payout, error) {
	var ms []models.Payout
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("anomaly = ?", true).
		Order("created_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toEntities(ms), nil
}

// UpdateStatus applies a provider-confirmed status if the payout is still in one of `from`.
// A confirmed status also clears any anomaly flag.
func (r *payoutRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []entities.PayoutStatus, to entities.PayoutStatus) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	if to != entities.PayoutStatusPending {
		updates["anomaly"] = false
		updates["anomaly_reason"] = nil
	}

	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, payoutStatusStrings(from)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *payoutRepo) SetProviderReference(ctx context.Context, id uuid.UUID, reference string) error {
	return r.update(ctx, id, map[string]interface{}{
		"provider_reference": reference,
		"updated_at":         time.Now(),
	})
}

func (r *payoutRepo) FlagAnomaly(ctx context.Context, id uuid.UUID, reason string) error {
	return r.update(ctx, id, map[string]interface{}{
		"anomaly":        true,
		"anomaly_reason": reason,
		"updated_at":     time.Now(),
	})
}

// Resolve records an operator decision on a non-terminal payout.
func (r *payoutRepo) Resolve(ctx context.Context, id uuid.UUID, status entities.PayoutStatus, note string) (bool, error) {
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, []string{string(entities.PayoutStatusPending), string(entities.PayoutStatusProcessing)}).
		Updates(map[string]interface{}{
			"status":          string(status),
			"anomaly":         false,
			"resolution_note": note,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *payoutRepo) first(ctx context.Context, query string, args ...interface{}) (*entities.Payout, error) {
	var m models.Payout
	if err := GetDB(ctx, r.db).WithContext(ctx).Where(query, args...).First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *payoutRepo) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Payout{}).
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

func (r *payoutRepo) toEntities(ms []models.Payout) []*entities.Payout {
	payouts := make([]*entities.Payout, 0, len(ms))
	for i := range ms {
		payouts = append(payouts, r.toEntity(&ms[i]))
	}
	return payouts
}

func (r *payoutRepo) toEntity(m *models.Payout) *entities.Payout {
	return &entities.Payout{
		ID:                m.ID,
		QuoteID:           m.QuoteID,
		UserID:            m.UserID,
		BeneficiaryID:     m.BeneficiaryID,
		BankCode:          m.BankCode,
		AccountNumber:     m.AccountNumber,
		AccountName:       m.AccountName,
		FiatAmount:        m.FiatAmount,
		Currency:          m.Currency,
		Status:            entities.PayoutStatus(m.Status),
		ProviderReference: null.StringFromPtr(m.ProviderReference),
		Anomaly:           m.Anomaly,
		AnomalyReason:     null.StringFromPtr(m.AnomalyReason),
		ResolutionNote:    null.StringFromPtr(m.ResolutionNote),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func payoutStatusStrings(statuses []entities.PayoutStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
