package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/clinova/internal/overbooking/domain"
)

type fakeSnapshotRepo struct {
	snapshots []domain.MetricSnapshot
	err       error

	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeSnapshotRepo) FindSnapshots(_ context.Context, _, _ snowflake.ID, from, to time.Time) ([]domain.MetricSnapshot, error) {
	f.lastFrom = from
	f.lastTo = to
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots, nil
}

func newEvaluator(repo domain.Repository) domain.Service {
	return NewService(Params{Log: zap.NewNop(), Repo: repo})
}

func floatPtr(v float64) *float64 { return &v }

func snapshot(occupancy float64, satisfaction *float64, appointments int) domain.MetricSnapshot {
	return domain.MetricSnapshot{
		OccupancyRate:     occupancy,
		SatisfactionScore: satisfaction,
		Appointments:      appointments,
	}
}

func TestEvaluateHealthyClinicNoOverlap(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: []domain.MetricSnapshot{
		snapshot(0.85, floatPtr(4.6), 20),
		snapshot(0.90, floatPtr(4.4), 25),
	}}
	eval := newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{
		Start: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, 35, eval.RiskScore)
	assert.Empty(t, eval.Reasons)
	assert.InDelta(t, 0.875, eval.Context.AverageOccupancy, 1e-9)
	require.NotNil(t, eval.Context.AverageSatisfaction)
	assert.InDelta(t, 4.5, *eval.Context.AverageSatisfaction, 1e-9)
	assert.Equal(t, 45, eval.Context.TotalAppointments)
}

func TestEvaluateLookbackWindow(t *testing.T) {
	repo := &fakeSnapshotRepo{}
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{Start: start})

	assert.Equal(t, start, repo.lastTo)
	assert.Equal(t, start.AddDate(0, 0, -45), repo.lastFrom)
}

func TestEvaluateLowOccupancy(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: []domain.MetricSnapshot{
		snapshot(0.40, nil, 10),
	}}
	eval := newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{})

	// base 35 + low occupancy 25 + alert entry 8
	assert.Equal(t, 68, eval.RiskScore)
	assert.Equal(t, []string{domain.ReasonLowOccupancy, domain.ReasonAlertLowOccupancy}, eval.Reasons)
}

func TestEvaluateModerateOccupancy(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: []domain.MetricSnapshot{
		snapshot(0.68, nil, 10),
	}}
	eval := newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{})

	assert.Equal(t, 47, eval.RiskScore)
	assert.Equal(t, []string{domain.ReasonModerateOccupancy}, eval.Reasons)
}

func TestEvaluateHighVolumePressure(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: []domain.MetricSnapshot{
		snapshot(0.62, nil, 35),
		snapshot(0.64, nil, 30),
	}}
	eval := newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{})

	// moderate occupancy 12 + high volume 8
	assert.Equal(t, 55, eval.RiskScore)
	assert.Contains(t, eval.Reasons, domain.ReasonHighVolumePressure)
	assert.Equal(t, 65, eval.Context.TotalAppointments)
}

func TestEvaluateSatisfactionPressure(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: []domain.MetricSnapshot{
		snapshot(0.80, floatPtr(3.2), 10),
	}}
	eval := newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{})

	assert.Equal(t, 40, eval.RiskScore)
	assert.Equal(t, []string{domain.ReasonSatisfactionDrop}, eval.Reasons)
}

func TestEvaluateOverlapWeight(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: []domain.MetricSnapshot{
		snapshot(0.85, nil, 10),
	}}
	svc := newEvaluator(repo)

	single := svc.Evaluate(context.Background(), domain.EvaluateRequest{Overlaps: 1})
	assert.Equal(t, 39, single.RiskScore)
	assert.Equal(t, []string{domain.ReasonSingleOverlap}, single.Reasons)

	// overlap weight caps at 12
	many := svc.Evaluate(context.Background(), domain.EvaluateRequest{Overlaps: 7})
	assert.Equal(t, 47, many.RiskScore)
	assert.Equal(t, []string{domain.ReasonMultipleOverlaps}, many.Reasons)
	assert.Equal(t, 7, many.Context.OverlapCount)
}

func TestEvaluateWorstCaseStaysInBounds(t *testing.T) {
	repo := &fakeSnapshotRepo{snapshots: []domain.MetricSnapshot{
		snapshot(0.30, floatPtr(2.0), 40),
		snapshot(0.35, floatPtr(2.5), 40),
	}}
	eval := newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{Overlaps: 4})

	assert.Equal(t, 93, eval.RiskScore)
	assert.LessOrEqual(t, eval.RiskScore, 95)
	assert.GreaterOrEqual(t, eval.RiskScore, 10)
	assert.Equal(t, []string{
		domain.ReasonLowOccupancy,
		domain.ReasonHighVolumePressure,
		domain.ReasonSatisfactionDrop,
		domain.ReasonMultipleOverlaps,
		domain.ReasonAlertLowOccupancy,
	}, eval.Reasons)
}

func TestEvaluateNoSnapshots(t *testing.T) {
	repo := &fakeSnapshotRepo{}
	eval := newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{})

	// zero average occupancy reads as low occupancy
	assert.Equal(t, 60, eval.RiskScore)
	assert.Equal(t, []string{domain.ReasonLowOccupancy}, eval.Reasons)
	assert.Nil(t, eval.Context.AverageSatisfaction)
}

func TestEvaluateMetricFailureFallsBack(t *testing.T) {
	repo := &fakeSnapshotRepo{err: errors.New("connection reset")}
	eval := newEvaluator(repo).Evaluate(context.Background(), domain.EvaluateRequest{Overlaps: 2})

	assert.Equal(t, 55, eval.RiskScore)
	assert.Equal(t, []string{domain.ReasonFallback}, eval.Reasons)
	assert.Equal(t, 2, eval.Context.OverlapCount)
	assert.Zero(t, eval.Context.AverageOccupancy)
	assert.Zero(t, eval.Context.TotalAppointments)
}

func TestEvaluationResolve(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	below := domain.Evaluation{RiskScore: 55}
	below.Resolve(70, now)
	assert.Equal(t, domain.StatusPendingReview, below.Status)
	assert.Equal(t, 70, below.Threshold)
	assert.Equal(t, now, below.EvaluatedAt)

	atThreshold := domain.Evaluation{RiskScore: 70}
	atThreshold.Resolve(70, now)
	assert.Equal(t, domain.StatusApproved, atThreshold.Status)
}
