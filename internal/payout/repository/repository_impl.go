package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/clinova/internal/observability/metrics"
	"github.com/smallbiznis/clinova/internal/payout/domain"
)

type payoutRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func Provide(db *gorm.DB, log *zap.Logger) domain.Repository {
	return &payoutRepository{
		db:  db,
		log: log.Named("payout.repository"),
	}
}

func (r *payoutRepository) ExistsByFingerprint(ctx context.Context, tenantID, clinicID snowflake.ID, fingerprint string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM payout_requests WHERE tenant_id = ? AND clinic_id = ? AND fingerprint = ?`,
			tenantID, clinicID, fingerprint).
		Scan(&count).Error
	return count > 0, err
}

func (r *payoutRepository) ExistsByTransaction(ctx context.Context, tenantID, clinicID snowflake.ID, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM payout_requests WHERE tenant_id = ? AND clinic_id = ? AND payment_transaction_id = ?`,
			tenantID, clinicID, transactionID).
		Scan(&count).Error
	return count > 0, err
}

func (r *payoutRepository) Insert(ctx context.Context, request *domain.PayoutRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// Lease claims due rows inside one transaction: the selection, the status
// flip and the attempts increment all observe the same criteria.Now
// snapshot. Concurrent workers skip rows each other has locked.
func (r *payoutRepository) Lease(ctx context.Context, criteria domain.LeaseCriteria) ([]domain.PayoutRequest, error) {
	now := criteria.Now.UTC()
	retryCutoff := now.Add(-criteria.RetryAfter)
	stuckCutoff := now.Add(-criteria.StuckAfter)

	var leased []domain.PayoutRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := `SELECT * FROM payout_requests
		 WHERE status = ?
		    OR (status = ? AND attempts < ? AND (last_attempted_at IS NULL OR last_attempted_at <= ?))
		    OR (status = ? AND last_attempted_at <= ?)
		 ORDER BY requested_at ASC
		 LIMIT ?` + lockSuffix(tx)

		lockStart := time.Now()
		var due []domain.PayoutRequest
		err := tx.Raw(query,
			domain.StatusPending,
			domain.StatusFailed, criteria.MaxAttempts, retryCutoff,
			domain.StatusProcessing, stuckCutoff,
			criteria.BatchSize,
		).Scan(&due).Error
		metrics.Worker().ObserveLockWait(time.Since(lockStart))
		if err != nil {
			return err
		}

		for i := range due {
			err := tx.Exec(
				`UPDATE payout_requests
				 SET status = ?, attempts = attempts + 1, last_attempted_at = ?, last_error = NULL
				 WHERE id = ?`,
				domain.StatusProcessing, now, due[i].ID,
			).Error
			if err != nil {
				return err
			}
			due[i].Status = domain.StatusProcessing
			due[i].Attempts++
			attemptedAt := now
			due[i].LastAttemptedAt = &attemptedAt
			due[i].LastError = nil
		}
		leased = due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// lockSuffix keeps the lease portable: sqlite has no row locks but also
// serializes writers, so the clause is only added on server databases.
func lockSuffix(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE SKIP LOCKED"
}

func (r *payoutRepository) Settle(ctx context.Context, requestID snowflake.ID, outcome domain.SettleOutcome) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE payout_requests
		 SET status = ?,
		     provider_payout_id = ?,
		     provider_status = ?,
		     provider_payload = ?,
		     processed_at = ?,
		     executed_at = ?,
		     last_error = ?
		 WHERE id = ?`,
		outcome.Status,
		outcome.ProviderPayoutID,
		outcome.ProviderStatus,
		jsonOrNil(outcome.ProviderPayload),
		outcome.ProcessedAt,
		outcome.ExecutedAt,
		outcome.LastError,
		requestID,
	).Error
}

func jsonOrNil(payload map[string]any) any {
	if payload == nil {
		return nil
	}
	return datatypes.JSONMap(payload)
}

func (r *payoutRepository) FindByID(ctx context.Context, tenantID, requestID snowflake.ID) (*domain.PayoutRequest, error) {
	var request domain.PayoutRequest
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM payout_requests WHERE tenant_id = ? AND id = ?`, tenantID, requestID).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, err
	}
	return &request, nil
}

func (r *payoutRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.PayoutRequest, error) {
	query := r.db.WithContext(ctx).
		Model(&domain.PayoutRequest{}).
		Where("tenant_id = ?", filter.TenantID)
	if filter.ClinicID != 0 {
		query = query.Where("clinic_id = ?", filter.ClinicID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"(requested_at < ?) OR (requested_at = ? AND id < ?)",
			filter.Cursor.RequestedAt, filter.Cursor.RequestedAt, filter.Cursor.ID,
		)
	}

	var requests []*domain.PayoutRequest
	err := query.
		Order("requested_at DESC").
		Order("id DESC").
		Limit(filter.Limit + 1).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}
