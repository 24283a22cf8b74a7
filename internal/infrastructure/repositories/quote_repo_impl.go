package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/models"
	"offramp.backend/pkg/utils"
)

// quoteRepo implements repositories.QuoteRepository
type quoteRepo struct {
	db *gorm.DB
}

// NewQuoteRepository creates a new quote repository
func NewQuoteRepository(db *gorm.DB) repositories.QuoteRepository {
	return &quoteRepo{db: db}
}

func (r *quoteRepo) Create(ctx context.Context, q *entities.Quote) error {
	now := time.Now()
	if q.ID == uuid.Nil {
		q.ID = utils.GenerateUUIDv7()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = q.CreatedAt

	m := &models.Quote{
		ID:             q.ID,
		UserID:         q.UserID,
		Asset:          q.Asset,
		Chain:          q.Chain,
		Mode:           string(q.Mode),
		CryptoAmount:   q.CryptoAmount,
		SpotPrice:      q.SpotPrice,
		FxRate:         q.FxRate,
		SpreadBps:      q.SpreadBps,
		FlatFee:        q.FlatFee,
		VariableFeeBps: q.VariableFeeBps,
		GrossFiat:      q.GrossFiat,
		TotalFee:       q.TotalFee,
		FiatAmount:     q.FiatAmount,
		Currency:       q.Currency,
		LockExpiresAt:  q.LockExpiresAt,
		Status:         string(q.Status),
		CreatedAt:      q.CreatedAt,
		UpdatedAt:      q.UpdatedAt,
	}
	return translateError(GetDB(ctx, r.db).WithContext(ctx).Create(m).Error)
}

func (r *quoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Quote, error) {
	var m models.Quote
	if err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

// MarkExecuted flips active to executed only while the lock is still open at now.
func (r *quoteRepo) MarkExecuted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Quote{}).
		Where("id = ? AND status = ? AND lock_expires_at > ?", id, entities.QuoteStatusActive, now).
		Updates(map[string]interface{}{
			"status":     string(entities.QuoteStatusExecuted),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *quoteRepo) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Quote{}).
		Where("id = ? AND status = ?", id, entities.QuoteStatusActive).
		Updates(map[string]interface{}{
			"status":     string(entities.QuoteStatusCancelled),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ExpireBefore marks up to limit lapsed active quotes as expired.
func (r *quoteRepo) ExpireBefore(ctx context.Context, now time.Time, limit int) (int64, error) {
	db := GetDB(ctx, r.db).WithContext(ctx)

	var ids []uuid.UUID
	if err := db.Model(&models.Quote{}).
		Where("status = ? AND lock_expires_at <= ?", entities.QuoteStatusActive, now).
		Order("lock_expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := db.Model(&models.Quote{}).
		Where("id IN ? AND status = ?", ids, entities.QuoteStatusActive).
		Updates(map[string]interface{}{
			"status":     string(entities.QuoteStatusExpired),
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *quoteRepo) toEntity(m *models.Quote) *entities.Quote {
	return &entities.Quote{
		ID:             m.ID,
		UserID:         m.UserID,
		Asset:          m.Asset,
		Chain:          m.Chain,
		Mode:           entities.QuoteMode(m.Mode),
		CryptoAmount:   m.CryptoAmount,
		SpotPrice:      m.SpotPrice,
		FxRate:         m.FxRate,
		SpreadBps:      m.SpreadBps,
		FlatFee:        m.FlatFee,
		VariableFeeBps: m.VariableFeeBps,
		GrossFiat:      m.GrossFiat,
		TotalFee:       m.TotalFee,
		FiatAmount:     m.FiatAmount,
		Currency:       m.Currency,
		LockExpiresAt:  m.LockExpiresAt,
		Status:         entities.QuoteStatus(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
