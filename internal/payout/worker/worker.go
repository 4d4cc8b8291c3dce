package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/smallbiznis/clinova/internal/audit/domain"
	"github.com/smallbiznis/clinova/internal/clock"
	"github.com/smallbiznis/clinova/internal/config"
	credentialsdomain "github.com/smallbiznis/clinova/internal/credentials/domain"
	"github.com/smallbiznis/clinova/internal/observability/metrics"
	"github.com/smallbiznis/clinova/internal/payout/domain"
	providers "github.com/smallbiznis/clinova/internal/providers/payout"
)

const maxLastErrorLen = 255

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	Repo        domain.Repository
	Credentials credentialsdomain.Service
	Gateways    *providers.Registry
	Audit       auditdomain.Service
}

// Worker drains the payout queue on a timer. One cycle leases a batch,
// executes each request and writes the outcome back; a cycle that is
// still running causes the next tick to be skipped rather than overlap.
type Worker struct {
	log         *zap.Logger
	clock       clock.Clock
	cfg         config.PayoutWorkerConfig
	repo        domain.Repository
	credentials credentialsdomain.Service
	gateways    *providers.Registry
	audit       auditdomain.Service

	running atomic.Bool
}

func New(p Params) *Worker {
	return &Worker{
		log:         p.Log.Named("payout.worker"),
		clock:       p.Clock,
		cfg:         p.Config.PayoutWorker,
		repo:        p.Repo,
		credentials: p.Credentials,
		gateways:    p.Gateways,
		audit:       p.Audit,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("payout cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle. It returns nil without doing work when
// a previous cycle has not finished yet.
func (w *Worker) RunOnce(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		metrics.Worker().IncCycleSkipped()
		w.log.Debug("payout cycle still running, skipping tick")
		return nil
	}
	defer w.running.Store(false)

	workerMetrics := metrics.Worker()
	workerMetrics.IncCycle()
	cycleStart := time.Now()
	defer func() {
		workerMetrics.ObserveCycleDuration(time.Since(cycleStart))
	}()

	leased, err := w.repo.Lease(ctx, domain.LeaseCriteria{
		Now:         w.clock.Now(),
		BatchSize:   w.cfg.BatchSize,
		MaxAttempts: w.cfg.MaxAttempts,
		RetryAfter:  w.cfg.RetryAfter,
		StuckAfter:  w.cfg.StuckAfter,
	})
	if err != nil {
		return fmt.Errorf("lease payout requests: %w", err)
	}
	if len(leased) == 0 {
		return nil
	}
	workerMetrics.AddLeased(len(leased))
	w.log.Info("payout requests leased", zap.Int("count", len(leased)))

	for i := range leased {
		w.settleOne(ctx, &leased[i])
	}
	return nil
}

func (w *Worker) settleOne(ctx context.Context, request *domain.PayoutRequest) {
	outcome, err := w.execute(ctx, request)
	if err != nil {
		w.markFailed(ctx, request, err)
		return
	}
	if err := w.repo.Settle(ctx, request.ID, *outcome); err != nil {
		w.log.Error("payout outcome write-back failed",
			zap.String("payout_request_id", request.ID.String()),
			zap.Error(err),
		)
	}
}

func (w *Worker) execute(ctx context.Context, request *domain.PayoutRequest) (*domain.SettleOutcome, error) {
	credentials, err := w.credentials.Resolve(ctx, request.TenantID, request.CredentialsID)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials %s: %w", request.CredentialsID, err)
	}

	amount := request.SettlementAmountCents()
	now := w.clock.Now()

	if amount <= 0 {
		providerStatus := domain.ProviderStatusZeroAmount
		outcome := &domain.SettleOutcome{
			Status:         domain.StatusCompleted,
			ProviderStatus: &providerStatus,
			ProcessedAt:    &now,
		}
		metrics.Worker().IncOutcome(metrics.PayoutOutcomeZeroAmount)
		w.registerAudit(ctx, request, outcome, 0)
		w.log.Info("payout skipped for zero amount",
			zap.String("payout_request_id", request.ID.String()),
		)
		return outcome, nil
	}

	if request.BankAccountID == nil || *request.BankAccountID == "" {
		metrics.Worker().IncOutcome(metrics.PayoutOutcomeMisconfigured)
		return nil, domain.ErrPayoutMisconfigured
	}

	gateway, err := w.gateways.Resolve(request.Provider)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", request.Provider, err)
	}

	result, err := gateway.ExecutePayout(ctx, providers.ExecutePayoutRequest{
		Provider:          request.Provider,
		APIKey:            credentials.APIKey(request.SandboxMode),
		SandboxMode:       request.SandboxMode,
		BankAccountID:     *request.BankAccountID,
		AmountCents:       amount,
		Currency:          request.Currency,
		Description:       fmt.Sprintf("Clinic settlement for appointment %s", request.AppointmentID),
		ExternalReference: request.ID.String(),
		Metadata: map[string]any{
			"appointment_id":         request.AppointmentID.String(),
			"payment_transaction_id": request.PaymentTransactionID,
			"clinic_id":              request.ClinicID.String(),
			"tenant_id":              request.TenantID.String(),
			"split":                  request.Split,
			"remainder_cents":        request.RemainderCents,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("execute payout: %w", err)
	}

	outcome := &domain.SettleOutcome{
		Status:           domain.StatusProcessing,
		ProviderPayoutID: result.PayoutID,
		ProviderStatus:   &result.Status,
		ProviderPayload:  result.ProviderResponse,
	}
	if result.Status == providers.StatusCompleted {
		outcome.Status = domain.StatusCompleted
		outcome.ProcessedAt = &now
		outcome.ExecutedAt = result.ExecutedAt
	}
	metrics.Worker().IncOutcome(metrics.PayoutOutcomeCompleted)
	w.registerAudit(ctx, request, outcome, amount)
	return outcome, nil
}

// markFailed records a failure without auditing it; only successes and
// zero-amount no-ops produce audit entries. Attempts stay as incremented
// at lease time, which is what bounds retries.
func (w *Worker) markFailed(ctx context.Context, request *domain.PayoutRequest, cause error) {
	if !errors.Is(cause, domain.ErrPayoutMisconfigured) {
		metrics.Worker().IncOutcome(metrics.PayoutOutcomeFailed)
	}

	message := cause.Error()
	if len(message) > maxLastErrorLen {
		message = message[:maxLastErrorLen]
	}
	providerStatus := domain.StatusFailed
	outcome := domain.SettleOutcome{
		Status:         domain.StatusFailed,
		ProviderStatus: &providerStatus,
		LastError:      &message,
	}
	if err := w.repo.Settle(ctx, request.ID, outcome); err != nil {
		w.log.Error("payout failure write-back failed",
			zap.String("payout_request_id", request.ID.String()),
			zap.Error(err),
		)
		return
	}
	w.log.Warn("payout request failed",
		zap.String("payout_request_id", request.ID.String()),
		zap.Int("attempts", request.Attempts),
		zap.String("last_error", message),
	)
}

func (w *Worker) registerAudit(ctx context.Context, request *domain.PayoutRequest, outcome *domain.SettleOutcome, amount int64) {
	detail := map[string]any{
		"payout_request_id":      request.ID.String(),
		"appointment_id":         request.AppointmentID.String(),
		"payment_transaction_id": request.PaymentTransactionID,
		"provider":               request.Provider,
		"sandbox_mode":           request.SandboxMode,
		"amount_cents":           amount,
		"currency":               request.Currency,
		"status":                 outcome.Status,
		"attempts":               request.Attempts,
	}
	if outcome.ProviderPayoutID != nil {
		detail["provider_payout_id"] = *outcome.ProviderPayoutID
	}
	if outcome.ProviderStatus != nil {
		detail["provider_status"] = *outcome.ProviderStatus
	}
	if err := w.audit.Register(ctx, "payout.settled", request.TenantID, request.ClinicID, detail); err != nil {
		w.log.Warn("audit write failed for payout outcome",
			zap.String("payout_request_id", request.ID.String()),
			zap.Error(err),
		)
	}
}
