package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/clinova/internal/hold/domain"
)

type holdRepository struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &holdRepository{db: db}
}

func (r *holdRepository) Insert(ctx context.Context, hold *domain.Hold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *holdRepository) FindByID(ctx context.Context, tenantID, holdID snowflake.ID) (*domain.Hold, error) {
	var hold domain.Hold
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM holds WHERE tenant_id = ? AND id = ?`, tenantID, holdID).
		First(&hold).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrHoldNotFound
		}
		return nil, err
	}
	return &hold, nil
}

func (r *holdRepository) FindByIdempotencyKey(ctx context.Context, tenantID, clinicID snowflake.ID, key string) (*domain.Hold, error) {
	var hold domain.Hold
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM holds WHERE tenant_id = ? AND clinic_id = ? AND idempotency_key = ?`,
			tenantID, clinicID, key).
		First(&hold).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

func (r *holdRepository) FindActiveOverlapsByProfessional(ctx context.Context, tenantID, professionalID snowflake.ID, start, end, now time.Time) ([]domain.Hold, error) {
	var holds []domain.Hold
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM holds
		     WHERE tenant_id = ? AND professional_id = ?
		       AND start_at < ? AND end_at > ?
		       AND (status = ? OR (status = ? AND ttl_expires_at > ?))
		     ORDER BY start_at ASC`,
			tenantID, professionalID, end, start,
			domain.StatusConfirmed, domain.StatusPending, now).
		Scan(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *holdRepository) FindActiveOverlapsByResources(ctx context.Context, tenantID, clinicID snowflake.ID, start, end, now time.Time, query domain.ResourceQuery) ([]domain.Hold, error) {
	// Resource lists are JSON documents, so candidates are narrowed in SQL
	// and matched in memory to stay portable across dialects.
	var candidates []domain.Hold
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM holds
		     WHERE tenant_id = ? AND clinic_id = ?
		       AND start_at < ? AND end_at > ?
		       AND (status = ? OR (status = ? AND ttl_expires_at > ?))
		     ORDER BY start_at ASC`,
			tenantID, clinicID, end, start,
			domain.StatusConfirmed, domain.StatusPending, now).
		Scan(&candidates).Error
	if err != nil {
		return nil, err
	}

	var matches []domain.Hold
	for _, candidate := range candidates {
		if matchesResources(candidate, query) {
			matches = append(matches, candidate)
		}
	}
	return matches, nil
}

func matchesResources(hold domain.Hold, query domain.ResourceQuery) bool {
	if query.LocationID != nil && hold.LocationID != nil && *query.LocationID == *hold.LocationID {
		return true
	}
	for _, wanted := range query.Resources {
		for _, held := range hold.Resources {
			if wanted == held {
				return true
			}
		}
	}
	if query.Strict && len(query.Resources) > 0 && hold.LocationID == nil && len(hold.Resources) == 0 {
		return true
	}
	return false
}
