package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	auditdomain "github.com/smallbiznis/clinova/internal/audit/domain"
	clinicdomain "github.com/smallbiznis/clinova/internal/clinic/domain"
	"github.com/smallbiznis/clinova/internal/clock"
	eventsdomain "github.com/smallbiznis/clinova/internal/events/domain"
	"github.com/smallbiznis/clinova/internal/hold/domain"
	"github.com/smallbiznis/clinova/internal/observability/logger"
	"github.com/smallbiznis/clinova/internal/observability/metrics"
	overbookingdomain "github.com/smallbiznis/clinova/internal/overbooking/domain"
	"github.com/smallbiznis/clinova/pkg/db"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Repo      domain.Repository
	Clinics   clinicdomain.Service
	Evaluator overbookingdomain.Service
	Audit     auditdomain.Service
	Events    eventsdomain.Publisher
}

type holdService struct {
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	repo      domain.Repository
	clinics   clinicdomain.Service
	evaluator overbookingdomain.Service
	audit     auditdomain.Service
	events    eventsdomain.Publisher
}

func NewService(p Params) domain.Service {
	return &holdService{
		log:       p.Log.Named("hold.service"),
		clock:     p.Clock,
		genID:     p.GenID,
		repo:      p.Repo,
		clinics:   p.Clinics,
		evaluator: p.Evaluator,
		audit:     p.Audit,
		events:    p.Events,
	}
}

func (s *holdService) GetHold(ctx context.Context, tenantID, holdID snowflake.ID) (*domain.Hold, error) {
	return s.repo.FindByID(ctx, tenantID, holdID)
}

func (s *holdService) CreateHold(ctx context.Context, req domain.CreateHoldRequest) (*domain.Hold, error) {
	log := logger.WithContext(ctx, s.log)

	existing, err := s.repo.FindByIdempotencyKey(ctx, req.TenantID, req.ClinicID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		log.Debug("hold creation replayed via idempotency key",
			zap.String("hold_id", existing.ID.String()),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		metrics.Worker().IncHoldAdmission(metrics.HoldAdmissionReplayed)
		return existing, nil
	}

	clinic, err := s.clinics.GetClinic(ctx, req.TenantID, req.ClinicID)
	if err != nil {
		return nil, err
	}
	serviceType, err := s.clinics.GetServiceType(ctx, req.TenantID, req.ClinicID, req.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	settings := clinic.HoldSettings()

	now := s.clock.Now()
	if err := validateWindow(req, settings, serviceType, now); err != nil {
		metrics.Worker().IncHoldAdmission(metrics.HoldAdmissionRejected)
		return nil, err
	}

	ttlExpiresAt := now.Add(time.Duration(settings.TTLMinutes) * time.Minute)
	if !ttlExpiresAt.Before(req.Start) {
		ttlExpiresAt = req.Start.Add(-time.Minute)
	}

	overlaps, err := s.repo.FindActiveOverlapsByProfessional(ctx, req.TenantID, req.ProfessionalID, req.Start, req.End, now)
	if err != nil {
		return nil, fmt.Errorf("professional overlap query: %w", err)
	}
	var pendingOverlaps int
	for _, overlap := range overlaps {
		if overlap.Status == domain.StatusConfirmed {
			metrics.Worker().IncHoldAdmission(metrics.HoldAdmissionRejected)
			return nil, domain.ErrHoldConflict
		}
		pendingOverlaps++
	}
	if pendingOverlaps > 0 && !settings.AllowOverbooking {
		metrics.Worker().IncHoldAdmission(metrics.HoldAdmissionRejected)
		return nil, domain.ErrHoldConflict
	}

	if req.LocationID != nil || len(req.Resources) > 0 {
		resourceOverlaps, err := s.repo.FindActiveOverlapsByResources(ctx, req.TenantID, req.ClinicID, req.Start, req.End, now, domain.ResourceQuery{
			LocationID: req.LocationID,
			Resources:  req.Resources,
			Strict:     settings.ResourceMatchingStrict,
		})
		if err != nil {
			return nil, fmt.Errorf("resource overlap query: %w", err)
		}
		if len(resourceOverlaps) > 0 {
			metrics.Worker().IncHoldAdmission(metrics.HoldAdmissionRejected)
			return nil, domain.ErrResourceConflict
		}
	}

	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	var evaluation *overbookingdomain.Evaluation
	if pendingOverlaps > 0 {
		eval := s.evaluator.Evaluate(ctx, overbookingdomain.EvaluateRequest{
			TenantID:       req.TenantID,
			ClinicID:       req.ClinicID,
			ProfessionalID: req.ProfessionalID,
			ServiceTypeID:  req.ServiceTypeID,
			Start:          req.Start,
			Overlaps:       pendingOverlaps,
		})
		eval.Resolve(settings.OverbookingThreshold, now)
		metadata[domain.MetadataOverbookingKey] = eval.AsMetadata()
		evaluation = &eval
	}

	hold := &domain.Hold{
		ID:             s.genID.Generate(),
		TenantID:       req.TenantID,
		ClinicID:       req.ClinicID,
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		ServiceTypeID:  req.ServiceTypeID,
		StartAt:        req.Start,
		EndAt:          req.End,
		TTLExpiresAt:   ttlExpiresAt,
		Status:         domain.StatusPending,
		IdempotencyKey: req.IdempotencyKey,
		LocationID:     req.LocationID,
		Resources:      datatypes.NewJSONSlice(req.Resources),
		Metadata:       metadata,
		CreatedBy:      req.RequestedBy,
		CreatedAt:      now,
	}

	if err := s.repo.Insert(ctx, hold); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// lost a concurrent race on the idempotency key; the winner's
			// row is the canonical hold
			winner, lookupErr := s.repo.FindByIdempotencyKey(ctx, req.TenantID, req.ClinicID, req.IdempotencyKey)
			if lookupErr == nil && winner != nil {
				metrics.Worker().IncHoldAdmission(metrics.HoldAdmissionReplayed)
				return winner, nil
			}
		}
		return nil, fmt.Errorf("persist hold: %w", err)
	}
	metrics.Worker().IncHoldAdmission(metrics.HoldAdmissionCreated)

	s.registerAudit(ctx, hold, evaluation)
	s.publishReviewEvent(ctx, hold, evaluation)

	log.Info("hold created",
		zap.String("hold_id", hold.ID.String()),
		zap.String("clinic_id", hold.ClinicID.String()),
		zap.String("professional_id", hold.ProfessionalID.String()),
		zap.Int("pending_overlaps", pendingOverlaps),
	)
	return hold, nil
}

func validateWindow(req domain.CreateHoldRequest, settings clinicdomain.HoldSettings, serviceType *clinicdomain.ServiceType, now time.Time) error {
	if !req.End.After(req.Start) {
		return domain.ErrInvalidHoldWindow
	}
	if !req.Start.After(now) {
		return domain.ErrHoldTooSoon
	}

	advance := req.Start.Sub(now)
	minAdvance := settings.MinAdvanceMinutes
	if serviceType.MinAdvanceMinutes > minAdvance {
		minAdvance = serviceType.MinAdvanceMinutes
	}
	if advance < time.Duration(minAdvance)*time.Minute {
		return domain.ErrHoldTooSoon
	}

	maxAdvance := settings.MaxAdvanceMinutes
	if serviceType.MaxAdvanceMinutes != nil {
		maxAdvance = serviceType.MaxAdvanceMinutes
	}
	if maxAdvance != nil && advance > time.Duration(*maxAdvance)*time.Minute {
		return domain.ErrHoldTooFarAhead
	}
	return nil
}

func (s *holdService) registerAudit(ctx context.Context, hold *domain.Hold, evaluation *overbookingdomain.Evaluation) {
	detail := map[string]any{
		"hold_id":         hold.ID.String(),
		"professional_id": hold.ProfessionalID.String(),
		"patient_id":      hold.PatientID.String(),
		"service_type_id": hold.ServiceTypeID.String(),
		"start_at":        hold.StartAt.UTC().Format(time.RFC3339),
		"end_at":          hold.EndAt.UTC().Format(time.RFC3339),
		"ttl_expires_at":  hold.TTLExpiresAt.UTC().Format(time.RFC3339),
		"idempotency_key": hold.IdempotencyKey,
	}
	if evaluation != nil {
		detail["overbooking"] = evaluation.AsMetadata()
	}
	if err := s.audit.Register(ctx, "hold.created", hold.TenantID, hold.ClinicID, detail); err != nil {
		logger.WithContext(ctx, s.log).Warn("audit write failed for hold",
			zap.String("hold_id", hold.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *holdService) publishReviewEvent(ctx context.Context, hold *domain.Hold, evaluation *overbookingdomain.Evaluation) {
	if evaluation == nil {
		return
	}

	eventType := eventsdomain.EventOverbookingReviewed
	if evaluation.Status == overbookingdomain.StatusPendingReview {
		eventType = eventsdomain.EventOverbookingReviewRequested
	}
	dedupeKey := fmt.Sprintf("%s:%s", eventType, hold.ID)
	err := s.events.Publish(ctx, eventsdomain.DomainEvent{
		TenantID:  hold.TenantID,
		ClinicID:  hold.ClinicID,
		EventType: eventType,
		DedupeKey: &dedupeKey,
		Payload: datatypes.JSONMap{
			"hold_id":    hold.ID.String(),
			"risk_score": evaluation.RiskScore,
			"threshold":  evaluation.Threshold,
			"approved":   evaluation.Status == overbookingdomain.StatusApproved,
			"reasons":    evaluation.Reasons,
		},
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("overbooking event publish failed",
			zap.String("hold_id", hold.ID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
