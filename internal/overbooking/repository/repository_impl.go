package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/clinova/internal/overbooking/domain"
)

type snapshotRepository struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) FindSnapshots(ctx context.Context, tenantID, clinicID snowflake.ID, from, to time.Time) ([]domain.MetricSnapshot, error) {
	var snapshots []domain.MetricSnapshot
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM clinic_metric_snapshots
		     WHERE tenant_id = ? AND clinic_id = ?
		       AND period_start >= ? AND period_start < ?
		     ORDER BY period_start ASC`,
			tenantID, clinicID, from, to).
		Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
