package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-chain-analyzer/internal/db"
	"mail-chain-analyzer/internal/mailbox"
	"mail-chain-analyzer/internal/metrics"
	"mail-chain-analyzer/internal/models"
	"mail-chain-analyzer/internal/repository"
	"mail-chain-analyzer/internal/scheduler"
)

const testSubject = "Chain Test"

type fixedState mailbox.State

func (s fixedState) State() mailbox.State { return mailbox.State(s) }

type failingFinder struct{}

func (failingFinder) FindByID(ctx context.Context, id uint) (*models.Email, error) {
	return nil, errors.New("connection refused")
}

type testEnv struct {
	repo   *repository.Repository
	sched  *scheduler.Scheduler
	router *gin.Engine
}

func newTestEnv(t *testing.T, state mailbox.State) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	repo := repository.New(conn)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	sched := scheduler.NewScheduler("0 0 * * * *", repo, m)
	t.Cleanup(func() { _ = sched.Stop() })

	h := NewHandlers(repo, repo, fixedState(state), sched, Options{
		Subject:     testSubject,
		TestAddress: "inbox@example.com",
	})
	router := gin.New()
	h.SetupRoutes(router)

	return &testEnv{repo: repo, sched: sched, router: router}
}

func (e *testEnv) seed(t *testing.T, subject, esp string, n int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		require.NoError(t, e.repo.Create(context.Background(), &models.Email{
			Subject:        subject,
			ESP:            esp,
			ReceivingChain: []string{"mx.example.com"},
			Text:           fmt.Sprintf("%s %d", esp, i),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestListEmailsDefaults(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)
	env.seed(t, testSubject, "Amazon SES", 25)
	env.seed(t, "Other", "SendGrid", 3)

	w := env.do(t, http.MethodGet, "/api/emails")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.EmailListResponse](t, w)
	assert.Equal(t, int64(25), resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 20, resp.Limit)
	require.Len(t, resp.Items, 20)
	assert.Equal(t, "Amazon SES 25", resp.Items[0].Text)
}

func TestListEmailsPaging(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)
	env.seed(t, testSubject, "Mailgun", 7)

	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
		wantItems int
	}{
		{"second page", "?limit=5&page=2", 2, 5, 2},
		{"limit capped", "?limit=500", 1, 100, 7},
		{"zero means default", "?limit=0&page=0", 1, 20, 7},
		{"negative clamped", "?limit=-3&page=-1", 1, 1, 1},
		{"garbage ignored", "?limit=abc&page=xyz", 1, 20, 7},
		{"past the end", "?page=9", 9, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/emails"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)

			resp := decode[models.EmailListResponse](t, w)
			assert.Equal(t, tt.wantPage, resp.Page)
			assert.Equal(t, tt.wantLimit, resp.Limit)
			assert.Len(t, resp.Items, tt.wantItems)
			assert.NotNil(t, resp.Items)
			assert.Equal(t, int64(7), resp.Total)
		})
	}
}

func TestListEmailsByESP(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)
	env.seed(t, testSubject, "Mailgun", 2)
	env.seed(t, testSubject, "Postmark", 4)

	w := env.do(t, http.MethodGet, "/api/emails?esp=Postmark")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.EmailListResponse](t, w)
	assert.Equal(t, int64(4), resp.Total)
	for _, item := range resp.Items {
		assert.Equal(t, "Postmark", item.ESP)
	}
}

func TestGetTestConfig(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)

	w := env.do(t, http.MethodGet, "/api/emails/test-config")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"testAddress":"inbox@example.com","subject":"Chain Test"}`, w.Body.String())
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)
	env.seed(t, testSubject, "SendGrid", 3)
	env.seed(t, testSubject, "Amazon SES", 5)
	env.seed(t, "Other", "Mailgun", 9)

	w := env.do(t, http.MethodGet, "/api/emails/stats")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.StatsResponse](t, w)
	assert.Equal(t, int64(8), resp.Total)
	assert.Equal(t, []models.ESPCount{
		{ESP: "Amazon SES", Count: 5},
		{ESP: "SendGrid", Count: 3},
	}, resp.Items)
}

func TestGetEmail(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)
	env.seed(t, testSubject, "Postmark", 1)

	w := env.do(t, http.MethodGet, "/api/emails/1")
	require.Equal(t, http.StatusOK, w.Code)

	email := decode[models.Email](t, w)
	assert.Equal(t, uint(1), email.ID)
	assert.Equal(t, "Postmark", email.ESP)
	assert.Equal(t, []string{"mx.example.com"}, email.ReceivingChain)
}

func TestGetEmailErrors(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)

	tests := []struct {
		path string
		code int
		err  string
	}{
		{"/api/emails/abc", http.StatusBadRequest, "invalid_id"},
		{"/api/emails/0", http.StatusBadRequest, "invalid_id"},
		{"/api/emails/-4", http.StatusBadRequest, "invalid_id"},
		{"/api/emails/42", http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.err, decode[models.ErrorResponse](t, w).Error)
		})
	}
}

func TestGetEmailStorageFailure(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)

	h := NewHandlers(env.repo, failingFinder{}, fixedState(mailbox.StateReady), env.sched, Options{})
	router := gin.New()
	h.SetupRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/emails/1", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "database_error", decode[models.ErrorResponse](t, w).Error)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, mailbox.StateConnecting)

	w := env.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Equal(t, "connecting", resp.Mailbox)
	assert.Equal(t, "stopped", resp.Metrics["scheduler"])
}

func TestLivenessAndReadiness(t *testing.T) {
	ready := newTestEnv(t, mailbox.StateReady)
	assert.Equal(t, http.StatusOK, ready.do(t, http.MethodGet, "/live").Code)
	assert.Equal(t, http.StatusOK, ready.do(t, http.MethodGet, "/ready").Code)

	reconnecting := newTestEnv(t, mailbox.StateEnded)
	assert.Equal(t, http.StatusOK, reconnecting.do(t, http.MethodGet, "/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, reconnecting.do(t, http.MethodGet, "/ready").Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)

	w := env.do(t, http.MethodGet, "/api/scheduler/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stopped", decode[map[string]any](t, w)["status"])

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scheduler/start").Code)
	assert.True(t, env.sched.IsRunning())
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/scheduler/start").Code)

	w = env.do(t, http.MethodGet, "/api/scheduler/status")
	assert.Equal(t, "running", decode[map[string]any](t, w)["status"])

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scheduler/run-once").Code)
	assert.NoError(t, env.sched.LastError())

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scheduler/stop").Code)
	assert.False(t, env.sched.IsRunning())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics").Code)
}

func TestBlankSubjectDisablesFilter(t *testing.T) {
	env := newTestEnv(t, mailbox.StateReady)
	env.seed(t, testSubject, "Mailgun", 2)
	env.seed(t, "Other", "Postmark", 3)

	h := NewHandlers(env.repo, env.repo, fixedState(mailbox.StateReady), env.sched, Options{Subject: "  "})
	router := gin.New()
	h.SetupRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/emails", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), decode[models.EmailListResponse](t, w).Total)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/emails/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), decode[models.StatsResponse](t, w).Total)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/emails/test-config", nil))
	assert.Equal(t, "", decode[models.TestConfigResponse](t, w).Subject)
}
