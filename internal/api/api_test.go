package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cankoe/reporting-scheduler/internal/api"
	"github.com/cankoe/reporting-scheduler/internal/database"
	"github.com/cankoe/reporting-scheduler/internal/metrics"
	"github.com/cankoe/reporting-scheduler/internal/schedules"
	"github.com/cankoe/reporting-scheduler/internal/store"
	"github.com/cankoe/reporting-scheduler/internal/store/sqlstore"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	store  store.Store
}

func newTestServer(t *testing.T, rps float64, burst int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "reporting.db"))
	require.NoError(t, err)
	st, err := sqlstore.New(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(ctx) })

	clock := func() time.Time { return fixedNow }
	engine := schedules.NewEngine(st.Schedules(), zerolog.Nop(), schedules.WithClock(clock))
	recorder := metrics.NewRecorder(st.Metrics(), zerolog.Nop(), metrics.WithClock(clock))
	srv := api.NewServer(st, engine, recorder, api.WithClock(clock))
	return &testServer{router: api.NewRouter(srv, rps, burst), store: st}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
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
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (ts *testServer) template(t *testing.T) string {
	t.Helper()
	code, body := ts.do(t, http.MethodPost, "/templates", map[string]any{
		"template_name": "Contract Signing Report",
		"template_type": "contracts",
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func (ts *testServer) report(t *testing.T, templateID string) string {
	t.Helper()
	code, body := ts.do(t, http.MethodPost, "/reports", map[string]any{
		"user_id":          7,
		"template_id":      templateID,
		"report_name":      "February contracts",
		"date_range_start": "2024-02-01T00:00:00Z",
		"date_range_end":   "2024-02-29T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	code, body := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, api.ServiceName, body["service"])
	assert.Equal(t, "2024-03-01T10:00:00Z", body["timestamp"])
}

func TestTemplates(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	id := ts.template(t)

	code, body := ts.do(t, http.MethodGet, "/templates/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"pdf", "csv", "json"}, body["export_formats"])
	assert.Equal(t, true, body["is_active"])

	code, body = ts.do(t, http.MethodGet, "/templates/type/contracts", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, body = ts.do(t, http.MethodPost, "/templates", map[string]any{"template_type": "contracts"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, api.ErrCodeValidationFailed, errorCode(body))

	code, body = ts.do(t, http.MethodGet, "/templates/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, api.ErrCodeNotFound, errorCode(body))
}

func TestReportLifecycle(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	id := ts.report(t, ts.template(t))

	code, body := ts.do(t, http.MethodGet, "/reports/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, "manual", body["generated_by"])
	assert.Equal(t, "contracts", body["report_type"])

	code, body = ts.do(t, http.MethodPatch, "/reports/"+id+"/status", map[string]any{
		"status": "generating", "progress_percent": 40,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 40, body["progress"])

	code, body = ts.do(t, http.MethodPost, "/reports/"+id+"/complete", map[string]any{
		"total_records": 120, "generation_time_seconds": 3.5, "file_path": "/exports/feb.pdf",
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "ready", body["status"])
	assert.EqualValues(t, 100, body["progress_percent"])
	assert.EqualValues(t, 120, body["rows_generated"])
	assert.Equal(t, "2024-03-01T10:00:00Z", body["generated_at"])

	code, _ = ts.do(t, http.MethodGet, "/reports/"+id+"?user_id=8", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = ts.do(t, http.MethodGet, "/reports/user/7?status=ready", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, body = ts.do(t, http.MethodGet, "/reports/user/7?status=draft", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["total"])
}

func TestReportValidation(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	templateID := ts.template(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			name: "missing template",
			body: map[string]any{"user_id": 7, "template_id": "nope", "report_name": "x",
				"date_range_start": "2024-02-01T00:00:00Z", "date_range_end": "2024-02-02T00:00:00Z"},
			want: http.StatusNotFound,
		},
		{
			name: "inverted range",
			body: map[string]any{"user_id": 7, "template_id": templateID, "report_name": "x",
				"date_range_start": "2024-02-02T00:00:00Z", "date_range_end": "2024-02-01T00:00:00Z"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "missing name",
			body: map[string]any{"user_id": 7, "template_id": templateID,
				"date_range_start": "2024-02-01T00:00:00Z", "date_range_end": "2024-02-02T00:00:00Z"},
			want: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := ts.do(t, http.MethodPost, "/reports", tt.body)
			assert.Equal(t, tt.want, code)
		})
	}

	id := ts.report(t, templateID)
	code, _ := ts.do(t, http.MethodPatch, "/reports/"+id+"/status", map[string]any{"status": "exploded"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = ts.do(t, http.MethodPatch, "/reports/"+id+"/status", map[string]any{"status": "ready", "progress_percent": 101})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = ts.do(t, http.MethodPost, "/reports/"+id+"/fail", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestScheduleEndpoints(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	templateID := ts.template(t)

	code, body := ts.do(t, http.MethodPost, "/schedules", map[string]any{
		"user_id":       7,
		"template_id":   templateID,
		"schedule_name": "Daily contracts",
		"frequency":     "daily",
		"time_of_day":   "08:00",
		"recipients":    []string{"ops@example.com"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	id := body["id"].(string)
	assert.Equal(t, "2024-03-02T08:00:00Z", body["next_run_at"])
	assert.Equal(t, true, body["is_enabled"])

	code, body = ts.do(t, http.MethodGet, "/schedules/due", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["count"])

	code, body = ts.do(t, http.MethodPatch, "/schedules/"+id+"/execute?success=false", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["run_count"])
	assert.EqualValues(t, 1, body["failure_count"])
	assert.Equal(t, "2024-03-01T10:00:00Z", body["last_run_at"])

	code, body = ts.do(t, http.MethodPatch, "/schedules/"+id+"/execute", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["success_count"])

	code, _ = ts.do(t, http.MethodPatch, "/schedules/"+id+"/execute?success=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = ts.do(t, http.MethodPatch, "/schedules/"+id, map[string]any{"frequency": "weekly", "is_enabled": false})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "weekly", body["frequency"])
	assert.Equal(t, false, body["is_enabled"])
	assert.Equal(t, "2024-03-08T08:00:00Z", body["next_run_at"])

	code, body = ts.do(t, http.MethodGet, "/schedules/user/7", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, _ = ts.do(t, http.MethodDelete, "/schedules/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodGet, "/schedules/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestScheduleCreateRejectsUnknownTemplate(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	code, _ := ts.do(t, http.MethodPost, "/schedules", map[string]any{
		"user_id": 7, "template_id": "missing", "schedule_name": "x", "frequency": "daily", "time_of_day": "08:00",
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodPost, "/schedules", map[string]any{
		"user_id": 7, "schedule_name": "x", "frequency": "daily", "time_of_day": "08:00",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestExports(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	reportID := ts.report(t, ts.template(t))

	code, body := ts.do(t, http.MethodPost, "/exports", map[string]any{
		"report_id": reportID, "export_format": "PDF", "file_path": "/exports/feb.pdf",
	})
	require.Equal(t, http.StatusCreated, code, body)
	id := body["id"].(string)
	assert.Equal(t, "pdf", body["export_format"])
	assert.Equal(t, "pending", body["export_status"])

	for i := 0; i < 2; i++ {
		code, body = ts.do(t, http.MethodPatch, "/exports/"+id+"/download", nil)
		require.Equal(t, http.StatusOK, code)
	}
	assert.EqualValues(t, 2, body["download_count"])

	code, _ = ts.do(t, http.MethodPost, "/exports/"+id+"/complete", map[string]any{"file_size": 10, "file_hash": "abc"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	hash := strings.Repeat("ab", 32)
	code, body = ts.do(t, http.MethodPost, "/exports/"+id+"/complete", map[string]any{"file_size": 2048, "file_hash": hash})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "completed", body["export_status"])
	assert.Equal(t, hash, body["file_hash"])

	code, body = ts.do(t, http.MethodGet, "/exports/report/"+reportID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, _ = ts.do(t, http.MethodPost, "/exports", map[string]any{
		"report_id": "missing", "export_format": "pdf", "file_path": "/x",
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	for _, v := range []float64{10, 20} {
		code, body := ts.do(t, http.MethodPost, "/metrics", map[string]any{
			"report_id": "r-1", "metric_name": "generation_time", "metric_value": v, "metric_unit": "seconds",
		})
		require.Equal(t, http.StatusCreated, code, body)
		assert.Equal(t, "performance", body["metric_category"])
	}

	code, body := ts.do(t, http.MethodGet, "/metrics/average/generation_time?days=7", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 15, body["average"])
	assert.EqualValues(t, 2, body["count"])
	assert.EqualValues(t, 7, body["period_days"])

	code, _ = ts.do(t, http.MethodGet, "/metrics/average/generation_time?days=400", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = ts.do(t, http.MethodGet, "/metrics/category/performance", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])

	code, _ = ts.do(t, http.MethodPost, "/metrics", map[string]any{"report_id": "r-1", "metric_name": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestAccessLogs(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	for _, entry := range []map[string]any{
		{"report_id": "r-1", "user_id": 7, "access_type": "view"},
		{"report_id": "r-1", "user_id": 8, "access_type": "download", "access_status": "denied"},
	} {
		code, body := ts.do(t, http.MethodPost, "/access-logs", entry)
		require.Equal(t, http.StatusCreated, code, body)
	}

	code, body := ts.do(t, http.MethodGet, "/access-logs/report/r-1/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total_accesses"])
	assert.EqualValues(t, 1, body["successful"])
	assert.EqualValues(t, 1, body["failed"])
	assert.EqualValues(t, 2, body["unique_users"])

	code, body = ts.do(t, http.MethodGet, "/access-logs/user/7", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, _ = ts.do(t, http.MethodPost, "/access-logs", map[string]any{
		"report_id": "r-1", "user_id": 7, "access_type": "view", "access_status": "weird",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestPaginationBounds(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	for _, q := range []string{"limit=0", "limit=1001", "limit=abc", "offset=-1"} {
		code, body := ts.do(t, http.MethodGet, "/templates?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.Equal(t, api.ErrCodeInvalidRequest, errorCode(body), q)
	}
	code, body := ts.do(t, http.MethodGet, "/templates?limit=1000&offset=5", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1000, body["limit"])
	assert.EqualValues(t, 5, body["offset"])
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, 0.001, 1)
	code, _ := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	code, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", errorCode(body))
}

func TestStoreFailureMapsToDatabaseError(t *testing.T) {
	ts := newTestServer(t, 100, 100)
	require.NoError(t, ts.store.Close(context.Background()))

	code, body := ts.do(t, http.MethodGet, "/templates", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, api.ErrCodeDatabaseError, errorCode(body))

	code, body = ts.do(t, http.MethodGet, "/templates/missing", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, api.ErrCodeDatabaseError, errorCode(body))
}
