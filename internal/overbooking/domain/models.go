package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusApproved      = "approved"
	StatusPendingReview = "pending_review"
)

// Risk reason codes, in the order the evaluator appends them.
const (
	ReasonLowOccupancy       = "low_occupancy"
	ReasonModerateOccupancy  = "moderate_occupancy"
	ReasonHighVolumePressure = "high_volume_pressure"
	ReasonSatisfactionDrop   = "satisfaction_pressure"
	ReasonMultipleOverlaps   = "multiple_overlaps"
	ReasonSingleOverlap      = "single_overlap"
	ReasonAlertLowOccupancy  = "alert_low_occupancy"
	ReasonFallback           = "fallback"
)

// MetricSnapshot is a per-period occupancy aggregate recorded by an upstream
// reporting job. SatisfactionScore is nullable, some clinics never collect it.
type MetricSnapshot struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID          snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	ClinicID          snowflake.ID `json:"clinic_id" gorm:"not null;index"`
	PeriodStart       time.Time    `json:"period_start" gorm:"not null"`
	OccupancyRate     float64      `json:"occupancy_rate" gorm:"not null"`
	SatisfactionScore *float64     `json:"satisfaction_score,omitempty"`
	Appointments      int          `json:"appointments" gorm:"not null;default:0"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MetricSnapshot) TableName() string { return "clinic_metric_snapshots" }

// EvaluationContext carries the aggregates an evaluation was computed from.
type EvaluationContext struct {
	AverageOccupancy    float64  `json:"average_occupancy"`
	AverageSatisfaction *float64 `json:"average_satisfaction,omitempty"`
	TotalAppointments   int      `json:"total_appointments"`
	OverlapCount        int      `json:"overlap_count"`
}

// Evaluation is a transient value embedded into a hold's metadata at
// creation time; it is never persisted on its own.
type Evaluation struct {
	RiskScore   int               `json:"risk_score"`
	Reasons     []string          `json:"reasons"`
	Context     EvaluationContext `json:"context"`
	Status      string            `json:"status"`
	Threshold   int               `json:"threshold"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// AsMetadata flattens the evaluation into a JSON-friendly map for embedding
// under a hold's metadata.overbooking key.
func (e Evaluation) AsMetadata() map[string]any {
	meta := map[string]any{
		"risk_score":   e.RiskScore,
		"reasons":      e.Reasons,
		"status":       e.Status,
		"threshold":    e.Threshold,
		"evaluated_at": e.EvaluatedAt.UTC().Format(time.RFC3339),
		"context": map[string]any{
			"average_occupancy":  e.Context.AverageOccupancy,
			"total_appointments": e.Context.TotalAppointments,
			"overlap_count":      e.Context.OverlapCount,
		},
	}
	if e.Context.AverageSatisfaction != nil {
		meta["context"].(map[string]any)["average_satisfaction"] = *e.Context.AverageSatisfaction
	}
	return meta
}

// Resolve sets Status against the clinic threshold. A score below the
// threshold goes to manual review.
func (e *Evaluation) Resolve(threshold int, now time.Time) {
	e.Threshold = threshold
	e.EvaluatedAt = now
	if e.RiskScore < threshold {
		e.Status = StatusPendingReview
	} else {
		e.Status = StatusApproved
	}
}
