package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditrepository "github.com/smallbiznis/clinova/internal/audit/repository"
	auditservice "github.com/smallbiznis/clinova/internal/audit/service"
	"github.com/smallbiznis/clinova/internal/clock"
	"github.com/smallbiznis/clinova/internal/config"
	credentialsrepository "github.com/smallbiznis/clinova/internal/credentials/repository"
	credentialsservice "github.com/smallbiznis/clinova/internal/credentials/service"
	"github.com/smallbiznis/clinova/internal/payout/domain"
	payoutrepository "github.com/smallbiznis/clinova/internal/payout/repository"
	providers "github.com/smallbiznis/clinova/internal/providers/payout"
)

const workerTestSchema = `
CREATE TABLE payout_requests (
	id INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	clinic_id INTEGER NOT NULL,
	appointment_id INTEGER NOT NULL,
	hold_id INTEGER NOT NULL,
	professional_id INTEGER NOT NULL,
	patient_id INTEGER NOT NULL,
	service_type_id INTEGER NOT NULL,
	payment_transaction_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	credentials_id INTEGER NOT NULL,
	sandbox_mode INTEGER NOT NULL DEFAULT 0,
	bank_account_id TEXT,
	base_amount_cents INTEGER NOT NULL,
	net_amount_cents INTEGER,
	remainder_cents INTEGER NOT NULL DEFAULT 0,
	split TEXT,
	currency TEXT NOT NULL,
	gateway_status TEXT NOT NULL,
	event_type TEXT,
	fingerprint TEXT,
	payload_id TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	requested_at DATETIME NOT NULL,
	last_attempted_at DATETIME,
	processed_at DATETIME,
	provider_payout_id TEXT,
	provider_status TEXT,
	provider_payload TEXT,
	executed_at DATETIME
);
CREATE TABLE payout_credentials (
	id INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	production_api_key TEXT NOT NULL,
	sandbox_api_key TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	clinic_id INTEGER NOT NULL,
	actor_type TEXT NOT NULL,
	actor_id TEXT,
	event TEXT NOT NULL,
	detail TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const (
	testTenantID      = snowflake.ID(11)
	testClinicID      = snowflake.ID(21)
	testCredentialsID = snowflake.ID(81)
)

type fakeGateway struct {
	mu     sync.Mutex
	result *providers.ExecutePayoutResult
	err    error
	calls  []providers.ExecutePayoutRequest
}

func (g *fakeGateway) ExecutePayout(_ context.Context, req providers.ExecutePayoutRequest) (*providers.ExecutePayoutResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	if g.result != nil {
		return g.result, nil
	}
	payoutID := "po_123"
	executedAt := time.Date(2026, 4, 1, 8, 0, 5, 0, time.UTC)
	return &providers.ExecutePayoutResult{
		PayoutID:         &payoutID,
		Status:           providers.StatusCompleted,
		ExecutedAt:       &executedAt,
		ProviderResponse: map[string]any{"ok": true},
	}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type workerTestEnv struct {
	db      *gorm.DB
	worker  *Worker
	clock   *clock.FakeClock
	gateway *fakeGateway
	repo    domain.Repository
	node    *snowflake.Node
}

func setupWorkerTest(t *testing.T) *workerTestEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	for _, stmt := range strings.Split(workerTestSchema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	require.NoError(t, gdb.Exec(
		`INSERT INTO payout_credentials (id, tenant_id, provider, production_api_key, sandbox_api_key)
		 VALUES (?, ?, 'sandbox', 'pk_live', 'pk_test')`,
		testCredentialsID, testTenantID,
	).Error)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	gateway := &fakeGateway{}
	repo := payoutrepository.Provide(gdb, log)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    gdb,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	credentialsSvc := credentialsservice.NewService(credentialsservice.Params{
		Log:  log,
		Repo: credentialsrepository.Provide(gdb),
	})

	w := New(Params{
		Log:   log,
		Clock: fakeClock,
		Config: config.Config{
			PayoutWorker: config.PayoutWorkerConfig{
				Enabled:     true,
				Interval:    30 * time.Second,
				BatchSize:   10,
				MaxAttempts: 6,
				RetryAfter:  5 * time.Minute,
				StuckAfter:  15 * time.Minute,
			},
		},
		Repo:        repo,
		Credentials: credentialsSvc,
		Gateways:    providers.NewRegistry(map[string]providers.Gateway{"sandbox": gateway}),
		Audit:       auditSvc,
	})

	return &workerTestEnv{db: gdb, worker: w, clock: fakeClock, gateway: gateway, repo: repo, node: node}
}

func (env *workerTestEnv) insertRequest(t *testing.T, mutate func(*domain.PayoutRequest)) *domain.PayoutRequest {
	t.Helper()
	bankAccount := "ba-1"
	request := &domain.PayoutRequest{
		ID:                   env.node.Generate(),
		TenantID:             testTenantID,
		ClinicID:             testClinicID,
		AppointmentID:        snowflake.ID(31),
		HoldID:               snowflake.ID(41),
		ProfessionalID:       snowflake.ID(51),
		PatientID:            snowflake.ID(61),
		ServiceTypeID:        snowflake.ID(71),
		PaymentTransactionID: fmt.Sprintf("tx-%d", env.node.Generate()),
		Provider:             "sandbox",
		CredentialsID:        testCredentialsID,
		SandboxMode:          true,
		BankAccountID:        &bankAccount,
		BaseAmountCents:      20000,
		RemainderCents:       0,
		Currency:             "BRL",
		GatewayStatus:        "settled",
		Status:               domain.StatusPending,
		RequestedAt:          env.clock.Now(),
	}
	if mutate != nil {
		mutate(request)
	}
	require.NoError(t, env.db.Create(request).Error)
	return request
}

func (env *workerTestEnv) reload(t *testing.T, id snowflake.ID) domain.PayoutRequest {
	t.Helper()
	var request domain.PayoutRequest
	require.NoError(t, env.db.Raw(`SELECT * FROM payout_requests WHERE id = ?`, id).First(&request).Error)
	return request
}

func (env *workerTestEnv) auditCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.db.Raw(`SELECT COUNT(*) FROM audit_logs WHERE event = 'payout.settled'`).Scan(&count).Error)
	return count
}

func TestRunOnceSettlesPendingRequest(t *testing.T) {
	env := setupWorkerTest(t)
	request := env.insertRequest(t, nil)

	require.NoError(t, env.worker.RunOnce(context.Background()))

	settled := env.reload(t, request.ID)
	assert.Equal(t, domain.StatusCompleted, settled.Status)
	assert.Equal(t, 1, settled.Attempts)
	require.NotNil(t, settled.ProviderPayoutID)
	assert.Equal(t, "po_123", *settled.ProviderPayoutID)
	require.NotNil(t, settled.ProviderStatus)
	assert.Equal(t, "completed", *settled.ProviderStatus)
	assert.NotNil(t, settled.ProcessedAt)
	assert.NotNil(t, settled.ExecutedAt)
	assert.Nil(t, settled.LastError)
	assert.EqualValues(t, 1, env.auditCount(t))

	require.Equal(t, 1, env.gateway.callCount())
	call := env.gateway.calls[0]
	assert.Equal(t, "pk_test", call.APIKey)
	assert.Equal(t, request.ID.String(), call.ExternalReference)
	assert.EqualValues(t, 20000, call.AmountCents)
}

func TestAmountPrefersClinicSplit(t *testing.T) {
	env := setupWorkerTest(t)
	env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.Split = datatypes.NewJSONSlice([]domain.Split{
			{Recipient: "clinic", Percentage: 52, AmountCents: 10400},
			{Recipient: "professional", Percentage: 40, AmountCents: 8000},
		})
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))

	require.Equal(t, 1, env.gateway.callCount())
	assert.EqualValues(t, 10400, env.gateway.calls[0].AmountCents)
}

func TestAmountFallsThroughToBase(t *testing.T) {
	env := setupWorkerTest(t)
	zero := int64(0)
	env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.NetAmountCents = &zero
		r.RemainderCents = 20000
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))

	// base - remainder is 0, so the base amount is used as-is
	require.Equal(t, 1, env.gateway.callCount())
	assert.EqualValues(t, 20000, env.gateway.calls[0].AmountCents)
}

func TestAmountUsesNetWhenNoClinicSplit(t *testing.T) {
	env := setupWorkerTest(t)
	net := int64(18400)
	env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.NetAmountCents = &net
		r.Split = datatypes.NewJSONSlice([]domain.Split{
			{Recipient: "professional", Percentage: 40, AmountCents: 8000},
		})
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))

	require.Equal(t, 1, env.gateway.callCount())
	assert.EqualValues(t, 18400, env.gateway.calls[0].AmountCents)
}

func TestAmountSubtractsRemainder(t *testing.T) {
	env := setupWorkerTest(t)
	env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.RemainderCents = 1600
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))

	require.Equal(t, 1, env.gateway.callCount())
	assert.EqualValues(t, 18400, env.gateway.calls[0].AmountCents)
}

func TestZeroAmountCompletesWithoutGateway(t *testing.T) {
	env := setupWorkerTest(t)
	request := env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.BaseAmountCents = 0
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))

	settled := env.reload(t, request.ID)
	assert.Equal(t, domain.StatusCompleted, settled.Status)
	require.NotNil(t, settled.ProviderStatus)
	assert.Equal(t, domain.ProviderStatusZeroAmount, *settled.ProviderStatus)
	assert.Nil(t, settled.ProviderPayoutID)
	assert.NotNil(t, settled.ProcessedAt)
	assert.Zero(t, env.gateway.callCount())
	assert.EqualValues(t, 1, env.auditCount(t))
}

func TestMissingBankAccountFailsWithoutAudit(t *testing.T) {
	env := setupWorkerTest(t)
	request := env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.BankAccountID = nil
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))

	settled := env.reload(t, request.ID)
	assert.Equal(t, domain.StatusFailed, settled.Status)
	assert.Equal(t, 1, settled.Attempts)
	require.NotNil(t, settled.LastError)
	assert.Contains(t, *settled.LastError, "bank account")
	require.NotNil(t, settled.ProviderStatus)
	assert.Equal(t, "failed", *settled.ProviderStatus)
	assert.Zero(t, env.gateway.callCount())
	assert.Zero(t, env.auditCount(t))
}

func TestGatewayErrorTruncatedTo255(t *testing.T) {
	env := setupWorkerTest(t)
	env.gateway.err = errors.New(strings.Repeat("x", 400))
	request := env.insertRequest(t, nil)

	require.NoError(t, env.worker.RunOnce(context.Background()))

	settled := env.reload(t, request.ID)
	assert.Equal(t, domain.StatusFailed, settled.Status)
	require.NotNil(t, settled.LastError)
	assert.Len(t, *settled.LastError, 255)
	assert.Nil(t, settled.ProviderPayload)
	assert.Zero(t, env.auditCount(t))
}

func TestFailedRequestRetriedAfterBackoff(t *testing.T) {
	env := setupWorkerTest(t)
	env.gateway.err = errors.New("gateway down")
	request := env.insertRequest(t, nil)

	require.NoError(t, env.worker.RunOnce(context.Background()))
	require.Equal(t, domain.StatusFailed, env.reload(t, request.ID).Status)

	// not yet past retryAfter
	env.clock.Advance(time.Minute)
	require.NoError(t, env.worker.RunOnce(context.Background()))
	assert.Equal(t, 1, env.gateway.callCount())

	env.gateway.err = nil
	env.clock.Advance(5 * time.Minute)
	require.NoError(t, env.worker.RunOnce(context.Background()))

	settled := env.reload(t, request.ID)
	assert.Equal(t, domain.StatusCompleted, settled.Status)
	assert.Equal(t, 2, settled.Attempts)
}

func TestExhaustedAttemptsNeverReleased(t *testing.T) {
	env := setupWorkerTest(t)
	lastError := "gateway down"
	attemptedAt := env.clock.Now().Add(-time.Hour)
	request := env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.Status = domain.StatusFailed
		r.Attempts = 6
		r.LastError = &lastError
		r.LastAttemptedAt = &attemptedAt
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))

	unchanged := env.reload(t, request.ID)
	assert.Equal(t, domain.StatusFailed, unchanged.Status)
	assert.Equal(t, 6, unchanged.Attempts)
	assert.Zero(t, env.gateway.callCount())
}

func TestStuckProcessingRecoveredRegardlessOfAttempts(t *testing.T) {
	env := setupWorkerTest(t)
	attemptedAt := env.clock.Now().Add(-time.Hour)
	request := env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.Status = domain.StatusProcessing
		r.Attempts = 9
		r.LastAttemptedAt = &attemptedAt
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))

	settled := env.reload(t, request.ID)
	assert.Equal(t, domain.StatusCompleted, settled.Status)
	assert.Equal(t, 10, settled.Attempts)
}

func TestFreshProcessingRowNotReleased(t *testing.T) {
	env := setupWorkerTest(t)
	attemptedAt := env.clock.Now().Add(-time.Minute)
	env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.Status = domain.StatusProcessing
		r.Attempts = 1
		r.LastAttemptedAt = &attemptedAt
	})

	require.NoError(t, env.worker.RunOnce(context.Background()))
	assert.Zero(t, env.gateway.callCount())
}

func TestLeaseClearsLastErrorAndIncrementsOnce(t *testing.T) {
	env := setupWorkerTest(t)
	lastError := "previous failure"
	attemptedAt := env.clock.Now().Add(-10 * time.Minute)
	request := env.insertRequest(t, func(r *domain.PayoutRequest) {
		r.Status = domain.StatusFailed
		r.Attempts = 2
		r.LastError = &lastError
		r.LastAttemptedAt = &attemptedAt
	})

	leased, err := env.repo.Lease(context.Background(), domain.LeaseCriteria{
		Now:         env.clock.Now(),
		BatchSize:   10,
		MaxAttempts: 6,
		RetryAfter:  5 * time.Minute,
		StuckAfter:  15 * time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, leased, 1)
	assert.Equal(t, request.ID, leased[0].ID)
	assert.Equal(t, domain.StatusProcessing, leased[0].Status)
	assert.Equal(t, 3, leased[0].Attempts)
	assert.Nil(t, leased[0].LastError)

	row := env.reload(t, request.ID)
	assert.Equal(t, 3, row.Attempts)
	assert.Nil(t, row.LastError)
}

func TestLeaseExclusivity(t *testing.T) {
	env := setupWorkerTest(t)
	env.insertRequest(t, nil)
	env.insertRequest(t, nil)

	criteria := domain.LeaseCriteria{
		Now:         env.clock.Now(),
		BatchSize:   10,
		MaxAttempts: 6,
		RetryAfter:  5 * time.Minute,
		StuckAfter:  15 * time.Minute,
	}
	first, err := env.repo.Lease(context.Background(), criteria)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// rows already claimed stay invisible to the next lease
	second, err := env.repo.Lease(context.Background(), criteria)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRunOnceSingleFlight(t *testing.T) {
	env := setupWorkerTest(t)

	env.worker.running.Store(true)
	require.NoError(t, env.worker.RunOnce(context.Background()))
	assert.Zero(t, env.gateway.callCount())

	env.worker.running.Store(false)
	env.insertRequest(t, nil)
	require.NoError(t, env.worker.RunOnce(context.Background()))
	assert.Equal(t, 1, env.gateway.callCount())
}
