package service

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/clinova/internal/observability/logger"
	"github.com/smallbiznis/clinova/internal/overbooking/domain"
)

const (
	baseScore = 35
	minScore  = 10
	maxScore  = 95

	lookbackDays = 45
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type evaluator struct {
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &evaluator{
		log:  p.Log.Named("overbooking.evaluator"),
		repo: p.Repo,
	}
}

func (e *evaluator) Evaluate(ctx context.Context, req domain.EvaluateRequest) domain.Evaluation {
	from := req.Start.AddDate(0, 0, -lookbackDays)
	snapshots, err := e.repo.FindSnapshots(ctx, req.TenantID, req.ClinicID, from, req.Start)
	if err != nil {
		logger.WithContext(ctx, e.log).Warn("metric snapshot query failed, using fallback risk",
			zap.String("clinic_id", req.ClinicID.String()),
			zap.Error(err),
		)
		return fallbackEvaluation(req.Overlaps)
	}
	return score(snapshots, req.Overlaps)
}

func fallbackEvaluation(overlaps int) domain.Evaluation {
	return domain.Evaluation{
		RiskScore: 55,
		Reasons:   []string{domain.ReasonFallback},
		Context:   domain.EvaluationContext{OverlapCount: overlaps},
	}
}

func score(snapshots []domain.MetricSnapshot, overlaps int) domain.Evaluation {
	evalContext := aggregate(snapshots, overlaps)

	riskScore := baseScore
	reasons := make([]string, 0, 4)

	if evalContext.AverageOccupancy < 0.55 {
		riskScore += 25
		reasons = append(reasons, domain.ReasonLowOccupancy)
	} else if evalContext.AverageOccupancy < 0.70 {
		riskScore += 12
		reasons = append(reasons, domain.ReasonModerateOccupancy)
	}

	if evalContext.TotalAppointments >= 60 && evalContext.AverageOccupancy < 0.65 {
		riskScore += 8
		reasons = append(reasons, domain.ReasonHighVolumePressure)
	}

	if evalContext.AverageSatisfaction != nil && *evalContext.AverageSatisfaction < 4 {
		riskScore += 5
		reasons = append(reasons, domain.ReasonSatisfactionDrop)
	}

	if overlapWeight := min(overlaps*4, 12); overlapWeight > 0 {
		riskScore += overlapWeight
		if overlaps > 1 {
			reasons = append(reasons, domain.ReasonMultipleOverlaps)
		} else {
			reasons = append(reasons, domain.ReasonSingleOverlap)
		}
	}

	for _, snapshot := range snapshots {
		if snapshot.OccupancyRate < 0.6 {
			riskScore += 8
			reasons = append(reasons, domain.ReasonAlertLowOccupancy)
			break
		}
	}

	if riskScore < minScore {
		riskScore = minScore
	}
	if riskScore > maxScore {
		riskScore = maxScore
	}

	return domain.Evaluation{
		RiskScore: riskScore,
		Reasons:   reasons,
		Context:   evalContext,
	}
}

func aggregate(snapshots []domain.MetricSnapshot, overlaps int) domain.EvaluationContext {
	evalContext := domain.EvaluationContext{OverlapCount: overlaps}
	if len(snapshots) == 0 {
		return evalContext
	}

	var occupancySum float64
	var satisfactionSum float64
	var satisfactionCount int
	for _, snapshot := range snapshots {
		occupancySum += snapshot.OccupancyRate
		evalContext.TotalAppointments += snapshot.Appointments
		if snapshot.SatisfactionScore != nil {
			satisfactionSum += *snapshot.SatisfactionScore
			satisfactionCount++
		}
	}
	evalContext.AverageOccupancy = occupancySum / float64(len(snapshots))
	if satisfactionCount > 0 {
		avg := satisfactionSum / float64(satisfactionCount)
		evalContext.AverageSatisfaction = &avg
	}
	return evalContext
}
