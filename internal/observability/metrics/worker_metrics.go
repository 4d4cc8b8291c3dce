package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PayoutOutcomeCompleted     = "completed"
	PayoutOutcomeFailed        = "failed"
	PayoutOutcomeZeroAmount    = "ignored_zero_amount"
	PayoutOutcomeMisconfigured = "misconfigured"
)

const (
	LeaseReasonPending = "pending"
	LeaseReasonRetry   = "retry"
	LeaseReasonStuck   = "stuck"
)

const (
	HoldAdmissionCreated  = "created"
	HoldAdmissionReplayed = "replayed"
	HoldAdmissionRejected = "rejected"
)

// WorkerMetrics captures payout worker health signals.
type WorkerMetrics struct {
	cycleRuns     prometheus.Counter
	cycleSkipped  prometheus.Counter
	cycleDuration prometheus.Observer
	leased        prometheus.Counter
	outcomes      *prometheus.CounterVec
	lockWait      prometheus.Observer
	holdAdmitted  *prometheus.CounterVec
}

// Config carries the constant labels stamped on every series.
type Config struct {
	ServiceName string
	Environment string
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Worker returns the singleton payout worker metrics registry.
func Worker() *WorkerMetrics {
	return WorkerWithConfig(Config{})
}

// WorkerWithConfig returns the singleton worker metrics registry using config labels.
func WorkerWithConfig(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = newWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

// ResetWorkerMetricsForTest resets the worker metrics singleton for tests.
func ResetWorkerMetricsForTest() {
	workerMetricsOnce = sync.Once{}
	workerMetrics = nil
}

func newWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "clinova"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	cycleRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "clinova_payout_worker_cycles_total",
		Help:        "Payout worker cycles started.",
		ConstLabels: constLabels,
	})
	cycleSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "clinova_payout_worker_cycles_skipped_total",
		Help:        "Payout worker ticks skipped because a cycle was still running.",
		ConstLabels: constLabels,
	})
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "clinova_payout_worker_cycle_duration_seconds",
		Help:        "Payout worker cycle latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	})
	leased := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "clinova_payout_requests_leased_total",
		Help:        "Payout requests claimed for processing.",
		ConstLabels: constLabels,
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "clinova_payout_requests_settled_total",
		Help:        "Payout request terminal outcomes per cycle.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "clinova_payout_lease_lock_wait_seconds",
		Help:        "Time spent acquiring the payout lease lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		ConstLabels: constLabels,
	})
	holdAdmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "clinova_hold_admissions_total",
		Help:        "Hold admission outcomes.",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	for _, collector := range []prometheus.Collector{
		cycleRuns, cycleSkipped, cycleDuration, leased, outcomes, lockWait, holdAdmitted,
	} {
		if err := registerer.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = already
				continue
			}
		}
	}

	return &WorkerMetrics{
		cycleRuns:     cycleRuns,
		cycleSkipped:  cycleSkipped,
		cycleDuration: cycleDuration,
		leased:        leased,
		outcomes:      outcomes,
		lockWait:      lockWait,
		holdAdmitted:  holdAdmitted,
	}
}

func (m *WorkerMetrics) IncCycle() {
	if m == nil {
		return
	}
	m.cycleRuns.Inc()
}

func (m *WorkerMetrics) IncCycleSkipped() {
	if m == nil {
		return
	}
	m.cycleSkipped.Inc()
}

func (m *WorkerMetrics) ObserveCycleDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *WorkerMetrics) AddLeased(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.leased.Add(float64(count))
}

func (m *WorkerMetrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *WorkerMetrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *WorkerMetrics) IncHoldAdmission(outcome string) {
	if m == nil {
		return
	}
	m.holdAdmitted.WithLabelValues(outcome).Inc()
}
