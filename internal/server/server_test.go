package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditrepository "github.com/smallbiznis/clinova/internal/audit/repository"
	auditservice "github.com/smallbiznis/clinova/internal/audit/service"
	clinicdomain "github.com/smallbiznis/clinova/internal/clinic/domain"
	clinicrepository "github.com/smallbiznis/clinova/internal/clinic/repository"
	clinicservice "github.com/smallbiznis/clinova/internal/clinic/service"
	"github.com/smallbiznis/clinova/internal/clock"
	"github.com/smallbiznis/clinova/internal/config"
	eventsservice "github.com/smallbiznis/clinova/internal/events/service"
	holdrepository "github.com/smallbiznis/clinova/internal/hold/repository"
	holdservice "github.com/smallbiznis/clinova/internal/hold/service"
	"github.com/smallbiznis/clinova/internal/observability"
	obsmetrics "github.com/smallbiznis/clinova/internal/observability/metrics"
	overbookingrepository "github.com/smallbiznis/clinova/internal/overbooking/repository"
	overbookingservice "github.com/smallbiznis/clinova/internal/overbooking/service"
	payoutrepository "github.com/smallbiznis/clinova/internal/payout/repository"
	payoutservice "github.com/smallbiznis/clinova/internal/payout/service"
)

const serverTestSchema = `
CREATE TABLE clinics (
	id INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	hold_ttl_minutes INTEGER NOT NULL DEFAULT 15,
	min_advance_minutes INTEGER NOT NULL DEFAULT 0,
	max_advance_minutes INTEGER,
	allow_overbooking INTEGER NOT NULL DEFAULT 0,
	overbooking_threshold INTEGER,
	resource_matching_strict INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE clinic_service_types (
	id INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	clinic_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 30,
	min_advance_minutes INTEGER NOT NULL DEFAULT 0,
	max_advance_minutes INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE clinic_metric_snapshots (
	id INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	clinic_id INTEGER NOT NULL,
	period_start DATETIME NOT NULL,
	occupancy_rate REAL NOT NULL,
	satisfaction_score REAL,
	appointments INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE holds (
	id INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	clinic_id INTEGER NOT NULL,
	professional_id INTEGER NOT NULL,
	patient_id INTEGER NOT NULL,
	service_type_id INTEGER NOT NULL,
	start_at DATETIME NOT NULL,
	end_at DATETIME NOT NULL,
	ttl_expires_at DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	idempotency_key TEXT NOT NULL,
	location_id INTEGER,
	resources TEXT,
	metadata TEXT,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	confirmed_by TEXT,
	confirmed_at DATETIME,
	cancelled_by TEXT,
	cancelled_at DATETIME,
	cancel_reason TEXT,
	UNIQUE (tenant_id, clinic_id, idempotency_key)
);
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
CREATE TABLE domain_events (
	id INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL,
	clinic_id INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	dedupe_key TEXT,
	published INTEGER NOT NULL DEFAULT 0,
	published_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (tenant_id, dedupe_key)
);
`

const (
	testTenantID       = snowflake.ID(1101)
	testClinicID       = snowflake.ID(1201)
	testProfessionalID = snowflake.ID(1301)
	testPatientID      = snowflake.ID(1401)
	testServiceTypeID  = snowflake.ID(1501)
)

type serverTestEnv struct {
	engine  *gin.Engine
	db      *gorm.DB
	clock   *clock.FakeClock
	baseNow time.Time
}

func setupServerTest(t *testing.T) *serverTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	for _, stmt := range strings.Split(serverTestSchema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	require.NoError(t, gdb.Create(&clinicdomain.Clinic{
		ID:       testClinicID,
		TenantID: testTenantID,
		Name:     "North Clinic",
	}).Error)
	require.NoError(t, gdb.Create(&clinicdomain.ServiceType{
		ID:       testServiceTypeID,
		TenantID: testTenantID,
		ClinicID: testClinicID,
		Name:     "Consultation",
	}).Error)

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: gdb, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	publisher := eventsservice.NewPublisher(eventsservice.Params{DB: gdb, Log: log, GenID: node})
	clinicSvc := clinicservice.NewService(clinicservice.Params{Log: log, Repo: clinicrepository.Provide(gdb)})
	evaluator := overbookingservice.NewService(overbookingservice.Params{Log: log, Repo: overbookingrepository.Provide(gdb)})
	holdSvc := holdservice.NewService(holdservice.Params{
		Log: log, Clock: fakeClock, GenID: node,
		Repo: holdrepository.Provide(gdb), Clinics: clinicSvc,
		Evaluator: evaluator, Audit: auditSvc, Events: publisher,
	})
	payoutRepo := payoutrepository.Provide(gdb, log)
	payoutSvc := payoutservice.NewService(payoutservice.Params{Log: log, Repo: payoutRepo})
	processor := payoutservice.NewProcessor(payoutservice.ProcessorParams{
		Log: log, Clock: fakeClock, GenID: node, Repo: payoutRepo, Audit: auditSvc,
	})

	engine := NewEngine(observability.Config{Environment: "test"}, obsmetrics.NewHTTPMetrics())
	NewServer(ServerParams{
		Gin:       engine,
		Cfg:       config.Config{Environment: "test"},
		DB:        gdb,
		GenID:     node,
		HoldSvc:   holdSvc,
		PayoutSvc: payoutSvc,
		Processor: processor,
		AuditSvc:  auditSvc,
	})

	return &serverTestEnv{engine: engine, db: gdb, clock: fakeClock, baseNow: fakeClock.Now()}
}

func (env *serverTestEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", testTenantID.String())
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func (env *serverTestEnv) holdPayload(key string) map[string]any {
	start := env.baseNow.Add(2 * time.Hour)
	return map[string]any{
		"clinic_id":       testClinicID.String(),
		"professional_id": testProfessionalID.String(),
		"patient_id":      testPatientID.String(),
		"service_type_id": testServiceTypeID.String(),
		"start":           start.Format(time.RFC3339),
		"end":             start.Add(30 * time.Minute).Format(time.RFC3339),
		"idempotency_key": key,
		"requested_by":    "patient-app",
	}
}

func payoutEventPayload(transactionID string) map[string]any {
	return map[string]any{
		"clinic_id":              testClinicID.String(),
		"appointment_id":         "2001",
		"hold_id":                "2101",
		"professional_id":        testProfessionalID.String(),
		"patient_id":             testPatientID.String(),
		"service_type_id":        testServiceTypeID.String(),
		"payment_transaction_id": transactionID,
		"provider":               "sandbox",
		"credentials_id":         "2201",
		"base_amount_cents":      20000,
		"currency":               "BRL",
		"gateway_status":         "settled",
	}
}

func TestCreateHoldEndpoint(t *testing.T) {
	env := setupServerTest(t)

	rec := env.do(t, http.MethodPost, "/v1/holds", env.holdPayload("key-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "pending", created.Status)
	require.NotEmpty(t, created.ID)

	got := env.do(t, http.MethodGet, "/v1/holds/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, got.Code)
}

func TestCreateHoldConflictMapsTo409(t *testing.T) {
	env := setupServerTest(t)

	first := env.do(t, http.MethodPost, "/v1/holds", env.holdPayload("key-1"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/v1/holds", env.holdPayload("key-2"))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "conflict")
}

func TestCreateHoldValidationMapsTo400(t *testing.T) {
	env := setupServerTest(t)

	payload := env.holdPayload("key-1")
	payload["end"] = env.baseNow.Add(90 * time.Minute).Format(time.RFC3339)
	rec := env.do(t, http.MethodPost, "/v1/holds", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestMissingTenantHeaderRejected(t *testing.T) {
	env := setupServerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/holds/123", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHoldNotFound(t *testing.T) {
	env := setupServerTest(t)

	rec := env.do(t, http.MethodGet, "/v1/holds/987654", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayoutEventAcceptedAndDeduped(t *testing.T) {
	env := setupServerTest(t)

	first := env.do(t, http.MethodPost, "/v1/payout-events", payoutEventPayload("tx-100"))
	require.Equal(t, http.StatusAccepted, first.Code, first.Body.String())

	second := env.do(t, http.MethodPost, "/v1/payout-events", payoutEventPayload("tx-100"))
	require.Equal(t, http.StatusAccepted, second.Code)

	var count int64
	require.NoError(t, env.db.Raw(`SELECT COUNT(*) FROM payout_requests`).Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestListPayoutRequests(t *testing.T) {
	env := setupServerTest(t)

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/v1/payout-events", payoutEventPayload(fmt.Sprintf("tx-%d", i)))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/v1/payout-requests?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Requests []struct {
			ID string `json:"id"`
		} `json:"payout_requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Requests, 3)

	single := env.do(t, http.MethodGet, "/v1/payout-requests/"+resp.Requests[0].ID, nil)
	assert.Equal(t, http.StatusOK, single.Code)
}

func TestListAuditLogsEndpoint(t *testing.T) {
	env := setupServerTest(t)

	rec := env.do(t, http.MethodPost, "/v1/holds", env.holdPayload("key-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	logs := env.do(t, http.MethodGet, "/v1/audit-logs?event=hold.created", nil)
	require.Equal(t, http.StatusOK, logs.Code)
	assert.Contains(t, logs.Body.String(), "hold.created")
}

func TestHealthz(t *testing.T) {
	env := setupServerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
