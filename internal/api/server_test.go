package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/hifz-notify/internal/api/handler"
	"github.com/albapepper/hifz-notify/internal/api/respond"
	"github.com/albapepper/hifz-notify/internal/config"
	"github.com/albapepper/hifz-notify/internal/jobs"
	"github.com/albapepper/hifz-notify/internal/metrics"
)

type fakeEvents struct {
	got []jobs.EventPayload
	res jobs.EventResult
	err error
}

func (f *fakeEvents) Handle(_ context.Context, p jobs.EventPayload) (jobs.EventResult, error) {
	f.got = append(f.got, p)
	return f.res, f.err
}

type fakeHomework struct {
	res jobs.HomeworkReminderResult
	err error
}

func (f fakeHomework) Run(context.Context) (jobs.HomeworkReminderResult, error) { return f.res, f.err }

type fakeSummaries struct {
	res jobs.TeacherSummaryResult
	err error
}

func (f fakeSummaries) Run(context.Context) (jobs.TeacherSummaryResult, error) { return f.res, f.err }

func testConfig() *config.Config {
	return &config.Config{
		CORSAllowOrigins:  []string{"http://localhost:3000"},
		RateLimitEnabled:  false,
		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,
	}
}

func newTestRouter(cfg *config.Config, d handler.Deps) http.Handler {
	if d.Events == nil {
		d.Events = &fakeEvents{}
	}
	if d.Homework == nil {
		d.Homework = fakeHomework{}
	}
	if d.Summaries == nil {
		d.Summaries = fakeSummaries{}
	}
	if d.DB == nil {
		d.DB = handler.PingFunc(func(context.Context) error { return nil })
	}
	return NewRouter(handler.New(d), cfg, nil, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4321"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) respond.ErrorBody {
	t.Helper()
	var body respond.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

const stickerPayload = `{"type":"INSERT","table":"student_stickers","record":{"student_id":"s1","sticker_id":"st1"}}`

func TestEventWebhook(t *testing.T) {
	events := &fakeEvents{res: jobs.EventResult{Success: true, Sent: 2, Skipped: 1}}
	router := newTestRouter(testConfig(), handler.Deps{Events: events})

	rec := do(t, router, http.MethodPost, "/api/v1/webhooks/events", stickerPayload, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res jobs.EventResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, jobs.EventResult{Success: true, Sent: 2, Skipped: 1}, res)

	require.Len(t, events.got, 1)
	assert.Equal(t, "student_stickers", events.got[0].Table)
	assert.Equal(t, "s1", events.got[0].Record.StudentID())
}

func TestEventWebhookErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"invalid json", `{"type":`, nil, http.StatusBadRequest, "INVALID_PAYLOAD"},
		{"unknown table", `{"type":"INSERT","table":"profiles","record":{}}`, fmt.Errorf("%w: %q", jobs.ErrUnknownTable, "profiles"), http.StatusBadRequest, "UNKNOWN_TABLE"},
		{"driver failure", stickerPayload, errors.New("no credentials"), http.StatusInternalServerError, "NOTIFICATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(testConfig(), handler.Deps{Events: &fakeEvents{err: tt.err}})
			rec := do(t, router, http.MethodPost, "/api/v1/webhooks/events", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestWebhookSecret(t *testing.T) {
	cfg := testConfig()
	cfg.WebhookSecret = "s3cret"
	router := newTestRouter(cfg, handler.Deps{Events: &fakeEvents{res: jobs.EventResult{Success: true}}})

	rec := do(t, router, http.MethodPost, "/api/v1/webhooks/events", stickerPayload, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/webhooks/events", stickerPayload, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/webhooks/events", stickerPayload, map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/jobs/homework-reminders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobTriggers(t *testing.T) {
	router := newTestRouter(testConfig(), handler.Deps{
		Homework:  fakeHomework{res: jobs.HomeworkReminderResult{Success: true, SchoolsProcessed: 2, RemindersSent: 5}},
		Summaries: fakeSummaries{err: errors.New("cannot list schools")},
	})

	rec := do(t, router, http.MethodPost, "/api/v1/jobs/homework-reminders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"schools_processed":2,"reminders_sent":5}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/v1/jobs/teacher-summaries", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "JOB_FAILED", body.Code)
	assert.Equal(t, "cannot list schools", body.Detail)

	rec = do(t, router, http.MethodGet, "/api/v1/jobs/teacher-summaries", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	healthy := newTestRouter(testConfig(), handler.Deps{})
	rec := do(t, healthy, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)

	rec = do(t, healthy, http.MethodGet, "/health/redis", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"disabled"`)

	down := handler.PingFunc(func(context.Context) error { return errors.New("refused") })
	unhealthy := newTestRouter(testConfig(), handler.Deps{DB: down, Redis: down})
	rec = do(t, unhealthy, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(t, unhealthy, http.MethodGet, "/health/redis", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"disconnected"`)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewJobMetrics(reg).IncSuccess("homework-reminders")

	h := handler.New(handler.Deps{})
	router := NewRouter(h, testConfig(), reg, nil)

	rec := do(t, router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `notifier_job_success_total{job="homework-reminders"} 1`)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimitRequests = 2
	router := newTestRouter(cfg, handler.Deps{})

	first := do(t, router, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := do(t, router, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeError(t, second).Code)
}

func TestWebhookBurstNotRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	events := &fakeEvents{res: jobs.EventResult{Success: true}}
	router := newTestRouter(cfg, handler.Deps{Events: events})

	// A bulk insert fires one webhook per row, all from the database host.
	const rows = 40
	for i := range rows {
		rec := do(t, router, http.MethodPost, "/api/v1/webhooks/events", stickerPayload, nil)
		require.Equal(t, http.StatusOK, rec.Code, "row %d", i)
	}
	assert.Len(t, events.got, rows)

	// Public routes on the same router stay limited.
	limited := 0
	for range rows {
		if do(t, router, http.MethodGet, "/health/db", "", nil).Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Positive(t, limited)
}
