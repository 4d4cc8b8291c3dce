package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type EvaluateRequest struct {
	TenantID       snowflake.ID
	ClinicID       snowflake.ID
	ProfessionalID snowflake.ID
	ServiceTypeID  snowflake.ID
	Start          time.Time
	Overlaps       int
}

type Service interface {
	// Evaluate never returns an error; metric read failures collapse into a
	// fixed fallback evaluation so hold admission is never blocked.
	Evaluate(ctx context.Context, req EvaluateRequest) Evaluation
}

type Repository interface {
	FindSnapshots(ctx context.Context, tenantID, clinicID snowflake.ID, from, to time.Time) ([]MetricSnapshot, error)
}
