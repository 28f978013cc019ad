package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/internal/scans"
	"github.com/angelmondragon/parcel-intake-backend/internal/sessions"
	"github.com/angelmondragon/parcel-intake-backend/internal/stats"
	"github.com/angelmondragon/parcel-intake-backend/pkg/config"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/dbtest"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		HTTP: config.HTTPConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func newTestRouter(t *testing.T, dbPinger db.Pinger) http.Handler {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "routes-test", Output: &bytes.Buffer{}})
	tx := db.NewFromConn(conn)

	manifestRepo := manifests.NewRepository(conn)
	manifestSvc, err := manifests.NewService(manifestRepo, tx, logg)
	require.NoError(t, err)
	matcher, err := manifests.NewMatcher(manifestRepo)
	require.NoError(t, err)

	sessionSvc, err := sessions.NewService(sessions.NewRepository(conn), tx, logg)
	require.NoError(t, err)

	statsSvc, err := stats.NewService(stats.NewRepository(conn), 1)
	require.NoError(t, err)

	scheduler, err := propagation.NewScheduler(propagation.NewRepository(conn), logg, nil)
	require.NoError(t, err)
	// no logistics client: stage one is a logged no-op
	propagator, err := propagation.NewPropagator(propagation.PropagatorParams{Logger: logg})
	require.NoError(t, err)

	reconciler, err := scans.NewReconciler(scans.ReconcilerParams{
		Logger:        logg,
		Matcher:       matcher,
		Parcels:       manifestRepo,
		Sessions:      sessionSvc,
		Propagator:    propagator,
		Scheduler:     scheduler,
		StageTwoDelay: func() time.Duration { return 30 * time.Minute },
	})
	require.NoError(t, err)

	return NewRouter(RouterParams{
		Config:    testConfig(),
		Logger:    logg,
		DB:        dbPinger,
		Manifests: manifestSvc,
		Matcher:   matcher,
		Scans:     reconciler,
		Sessions:  sessionSvc,
		Stats:     statsSvc,
		Scheduler: scheduler,
		Metrics:   http.NotFoundHandler(),
	})
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func do(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var env envelope
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	}
	return resp, env
}

const ingestM1 = `{"manifestNumber":"M1","uploadedBy":"op1","parcels":[
	{"trackingNumber":"TN001","consigneeName":"Alice"},
	{"trackingNumber":"TN002","consigneeName":"Bob"}
]}`

func TestHealthLiveAndReady(t *testing.T) {
	router := newTestRouter(t, stubPinger{})

	resp, _ := do(t, router, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test", resp.Header().Get("X-Intake-Env"))

	resp, _ = do(t, router, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthReadyFailsWhenDatabaseDown(t *testing.T) {
	router := newTestRouter(t, stubPinger{err: errors.New("connection refused")})

	resp, env := do(t, router, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "database", env.Error.Details["dependency"])
}

func TestScanScenarioOverHTTP(t *testing.T) {
	router := newTestRouter(t, stubPinger{})

	resp, env := do(t, router, http.MethodPost, "/api/v1/manifest/ingest", ingestM1)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var ingest manifests.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &ingest))
	assert.Equal(t, 2, ingest.Created)
	assert.Equal(t, "M1", ingest.ManifestNumber)

	resp, env = do(t, router, http.MethodPost, "/api/v1/scan", `{"trackingNumber":"TN001","userId":"op1","userName":"Jane"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var scan scans.ScanResult
	require.NoError(t, json.Unmarshal(env.Data, &scan))
	assert.True(t, scan.Parcel.Received)
	assert.Equal(t, "Jane", scan.Parcel.ReceivedBy)
	assert.False(t, scan.Propagation.Success)
	require.NotNil(t, scan.NextStage)

	resp, env = do(t, router, http.MethodPost, "/api/v1/scan", `{"trackingNumber":"TN001","userId":"op2","userName":"Sam"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "Jane")

	resp, _ = do(t, router, http.MethodPost, "/api/v1/scan", `{"trackingNumber":"TN999","userId":"op1","userName":"Jane"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp, _ = do(t, router, http.MethodPost, "/api/v1/scan", `{"userId":"op1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, env = do(t, router, http.MethodGet, "/api/v1/parcels/TN001", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var lookup struct {
		ManifestNumber string `json:"manifestNumber"`
		ParcelIndex    int    `json:"parcelIndex"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lookup))
	assert.Equal(t, "M1", lookup.ManifestNumber)

	resp, env = do(t, router, http.MethodGet, "/api/v1/stats/customers?manifest=M1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var customerStats stats.CustomerStats
	require.NoError(t, json.Unmarshal(env.Data, &customerStats))
	assert.Equal(t, 2, customerStats.TotalParcels)
	require.Len(t, customerStats.Customers, 2)

	resp, env = do(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var health struct {
		ActiveSessions          *int   `json:"activeSessions"`
		RecentScans             *int64 `json:"recentScans"`
		PendingPropagationTasks *int   `json:"pendingPropagationTasks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &health))
	require.NotNil(t, health.ActiveSessions)
	assert.Equal(t, 2, *health.ActiveSessions)
	assert.Nil(t, health.RecentScans)
	require.NotNil(t, health.PendingPropagationTasks)
	assert.Equal(t, 1, *health.PendingPropagationTasks)

	resp, _ = do(t, router, http.MethodGet, "/api/v1/manifests/M1/report.csv", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Body.String(), "TN001")
}

func TestPropagationTaskCancelOverHTTP(t *testing.T) {
	router := newTestRouter(t, stubPinger{})

	resp, _ := do(t, router, http.MethodPost, "/api/v1/manifest/ingest", ingestM1)
	require.Equal(t, http.StatusOK, resp.Code)
	resp, _ = do(t, router, http.MethodPost, "/api/v1/scan", `{"trackingNumber":"TN002","userId":"op1","userName":"Jane"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp, env := do(t, router, http.MethodGet, "/api/v1/propagation/tasks?trackingNumber=TN002&status=pending", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var tasks []propagation.TaskDTO
	require.NoError(t, json.Unmarshal(env.Data, &tasks))
	require.Len(t, tasks, 1)

	path := "/api/v1/propagation/tasks/" + tasks[0].ID.String()
	resp, _ = do(t, router, http.MethodPost, path+"/cancel", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, env = do(t, router, http.MethodPost, path+"/cancel", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "STATE_CONFLICT", env.Error.Code)

	resp, _ = do(t, router, http.MethodGet, "/api/v1/propagation/tasks?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, _ = do(t, router, http.MethodGet, "/api/v1/propagation/tasks/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestScanSessionOverHTTP(t *testing.T) {
	router := newTestRouter(t, stubPinger{})

	resp, env := do(t, router, http.MethodPost, "/api/v1/scan/session", `{"userId":"op1","userName":"Jane","action":"start"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var started sessions.SessionDTO
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.True(t, started.IsActive)

	resp, env = do(t, router, http.MethodPost, "/api/v1/scan/session", `{"userId":"op1","action":"stop"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	var stopped struct {
		Closed []sessions.SessionDTO `json:"closed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stopped))
	require.Len(t, stopped.Closed, 1)
	assert.False(t, stopped.Closed[0].IsActive)

	resp, _ = do(t, router, http.MethodPost, "/api/v1/scan/session", `{"userId":"op1","action":"pause"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestManifestRoutes(t *testing.T) {
	router := newTestRouter(t, stubPinger{})

	resp, _ := do(t, router, http.MethodPost, "/api/v1/manifest/ingest", ingestM1)
	require.Equal(t, http.StatusOK, resp.Code)

	resp, env := do(t, router, http.MethodGet, "/api/v1/manifests/scan-stats", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var scanStats []manifests.ManifestScanStats
	require.NoError(t, json.Unmarshal(env.Data, &scanStats))
	require.Len(t, scanStats, 1)
	assert.Equal(t, 2, scanStats[0].Pending)

	resp, _ = do(t, router, http.MethodGet, "/api/v1/manifests/M1", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, _ = do(t, router, http.MethodGet, "/api/v1/manifests?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, _ = do(t, router, http.MethodDelete, "/api/v1/manifests/M1", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, _ = do(t, router, http.MethodGet, "/api/v1/manifests/M1", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp, _ = do(t, router, http.MethodGet, "/api/v1/parcels/TN001", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
