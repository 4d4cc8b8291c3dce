package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	auditdomain "github.com/smallbiznis/clinova/internal/audit/domain"
	"github.com/smallbiznis/clinova/internal/clock"
	"github.com/smallbiznis/clinova/internal/observability/logger"
	"github.com/smallbiznis/clinova/internal/payout/domain"
)

type ProcessorParams struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
	Audit auditdomain.Service
}

type processor struct {
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
	audit auditdomain.Service
}

func NewProcessor(p ProcessorParams) domain.Processor {
	return &processor{
		log:   p.Log.Named("payout.processor"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

// Handle enqueues one settlement. Dedup runs fingerprint first and falls
// back to the payment transaction id because upstream events may omit
// the fingerprint.
func (p *processor) Handle(ctx context.Context, event domain.PayoutRequestedEvent) error {
	log := logger.WithContext(ctx, p.log)

	if event.TenantID == 0 || event.ClinicID == 0 || event.PaymentTransactionID == "" {
		return domain.ErrInvalidPayoutRequest
	}

	if event.Fingerprint != nil && *event.Fingerprint != "" {
		exists, err := p.repo.ExistsByFingerprint(ctx, event.TenantID, event.ClinicID, *event.Fingerprint)
		if err != nil {
			return fmt.Errorf("fingerprint dedup check: %w", err)
		}
		if exists {
			log.Info("payout request deduplicated by fingerprint",
				zap.String("fingerprint", *event.Fingerprint),
				zap.String("clinic_id", event.ClinicID.String()),
			)
			return nil
		}
	}

	exists, err := p.repo.ExistsByTransaction(ctx, event.TenantID, event.ClinicID, event.PaymentTransactionID)
	if err != nil {
		return fmt.Errorf("transaction dedup check: %w", err)
	}
	if exists {
		log.Info("payout request deduplicated by transaction",
			zap.String("payment_transaction_id", event.PaymentTransactionID),
			zap.String("clinic_id", event.ClinicID.String()),
		)
		return nil
	}

	request := &domain.PayoutRequest{
		ID:             p.genID.Generate(),
		TenantID:       event.TenantID,
		ClinicID:       event.ClinicID,
		AppointmentID:  event.AppointmentID,
		HoldID:         event.HoldID,
		ProfessionalID: event.ProfessionalID,
		PatientID:      event.PatientID,
		ServiceTypeID:  event.ServiceTypeID,

		PaymentTransactionID: event.PaymentTransactionID,
		Provider:             event.Provider,
		CredentialsID:        event.CredentialsID,
		SandboxMode:          event.SandboxMode,
		BankAccountID:        event.BankAccountID,

		BaseAmountCents: event.BaseAmountCents,
		NetAmountCents:  event.NetAmountCents,
		RemainderCents:  event.RemainderCents,
		Split:           datatypes.NewJSONSlice(event.Split),
		Currency:        event.Currency,

		GatewayStatus: event.GatewayStatus,
		EventType:     event.EventType,
		Fingerprint:   event.Fingerprint,
		PayloadID:     event.PayloadID,

		Status:      domain.StatusPending,
		Attempts:    0,
		RequestedAt: p.clock.Now(),
	}

	if err := p.repo.Insert(ctx, request); err != nil {
		return fmt.Errorf("enqueue payout request: %w", err)
	}

	p.registerAudit(ctx, request)
	log.Info("payout request enqueued",
		zap.String("payout_request_id", request.ID.String()),
		zap.String("payment_transaction_id", request.PaymentTransactionID),
		zap.Int64("base_amount_cents", request.BaseAmountCents),
	)
	return nil
}

func (p *processor) registerAudit(ctx context.Context, request *domain.PayoutRequest) {
	detail := map[string]any{
		"payout_request_id":      request.ID.String(),
		"appointment_id":         request.AppointmentID.String(),
		"hold_id":                request.HoldID.String(),
		"payment_transaction_id": request.PaymentTransactionID,
		"provider":               request.Provider,
		"sandbox_mode":           request.SandboxMode,
		"base_amount_cents":      request.BaseAmountCents,
		"remainder_cents":        request.RemainderCents,
		"currency":               request.Currency,
		"split":                  request.Split,
	}
	if request.NetAmountCents != nil {
		detail["net_amount_cents"] = *request.NetAmountCents
	}
	if err := p.audit.Register(ctx, "payout.requested", request.TenantID, request.ClinicID, detail); err != nil {
		logger.WithContext(ctx, p.log).Warn("audit write failed for payout request",
			zap.String("payout_request_id", request.ID.String()),
			zap.Error(err),
		)
	}
}
