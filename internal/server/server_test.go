package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/TobiSchelling/emojidash/internal/aggregate"
	"github.com/TobiSchelling/emojidash/internal/config"
	"github.com/TobiSchelling/emojidash/internal/database"
	"github.com/TobiSchelling/emojidash/internal/dataset"
	"github.com/TobiSchelling/emojidash/internal/metrics"
	"github.com/TobiSchelling/emojidash/internal/pipeline"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type testServer struct {
	handler http.Handler
	cookie  *http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Normalize.Seed = 1
	cfg.Normalize.Timezone = "UTC"
	cfg.Server.MaxUploadMB = 1

	db, err := database.Open(database.MemoryPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New(prometheus.NewRegistry())
	pipe, err := pipeline.New(cfg, db, zap.NewNop(), m)
	require.NoError(t, err)
	srv, err := New(cfg, pipe, m, zap.NewNop())
	require.NoError(t, err)
	return &testServer{handler: srv.Handler()}
}

// do sends req, carrying the session cookie across calls.
func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	if ts.cookie != nil {
		req.AddCookie(ts.cookie)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			ts.cookie = c
		}
	}
	return rec
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (ts *testServer) upload(t *testing.T, name string, data []byte, accept string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return ts.do(req)
}

func festivalWorkbook(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, dataset.WriteRawXLSX(&buf, &dataset.RawTable{
		Columns: []string{"Festival", "Sentiment", "Emotion", "Emoji", "Tweet", "Date"},
		Rows: [][]string{
			{"Diwali", "Positive", "Joy", "🪔", "lights", "2026-10-12 09:00:00"},
			{"Diwali", "Negative", "Sad", "🪔", "smoke", "2026-10-13 20:00:00"},
			{"Holi", "Positive", "Joy", "🎉", "colours", "2026-10-13 11:00:00"},
		},
	}))
	return buf.Bytes()
}

func TestIndexShowsWelcomeWithoutDataset(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Welcome to Emoji Analytics")
	assert.Contains(t, body, "<strong>Festival</strong>")
	require.NotNil(t, ts.cookie, "expected a session cookie")
}

func TestUploadThenDashboard(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, "fest.xlsx", festivalWorkbook(t), "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = ts.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Festival Emoji Analytics")
	assert.Contains(t, body, "Total Tweets")
	assert.Contains(t, body, "<table>")
	assert.Contains(t, body, "dashboard-data")

	rec = ts.get("/api/dashboard?festival=Diwali&top_n=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var d aggregate.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, 2, d.KPI.TotalCount)
	assert.Equal(t, "🪔", d.KPI.TopEmoji)
	assert.Equal(t, 5, d.Filter.TopN)
	require.NotNil(t, d.SentimentGauge)
	assert.InDelta(t, 50.0, *d.SentimentGauge, 1e-9)
}

func TestUploadJSONResponse(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.upload(t, "fest.xlsx", festivalWorkbook(t), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rows   int      `json:"rows"`
		Filled []string `json:"filled"`
		Cached bool     `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Rows)
	assert.ElementsMatch(t, []string{dataset.ColumnID, dataset.ColumnAuthor, dataset.ColumnText}, resp.Filled)
	assert.False(t, resp.Cached)
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want int
	}{
		{"wrong extension", "fest.csv", []byte("a,b"), http.StatusUnsupportedMediaType},
		{"not a workbook", "fest.xlsx", []byte("garbage"), http.StatusUnprocessableEntity},
		{"too large", "big.xlsx", bytes.Repeat([]byte("x"), 2<<20), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.upload(t, tt.file, tt.data, "application/json")
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestUploadErrorShownOnPage(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.upload(t, "fest.xlsx", []byte("garbage"), "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error loading fest.xlsx")
}

func TestAPIWithoutDataset(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/options", "/api/dashboard", "/api/rows", "/export.xlsx"} {
		rec := ts.get(path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestDashboardRejectsBadTopN(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "fest.xlsx", festivalWorkbook(t), "")

	for _, v := range []string{"4", "51", "ten"} {
		rec := ts.get("/api/dashboard?top_n=" + v)
		assert.Equal(t, http.StatusBadRequest, rec.Code, v)
	}

	rec := ts.get("/?top_n=99")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "top_n must be between 5 and 50")
}

func TestOptionsAndRows(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "fest.xlsx", festivalWorkbook(t), "")

	rec := ts.get("/api/options")
	require.Equal(t, http.StatusOK, rec.Code)
	var opts aggregate.FilterOptions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	assert.Equal(t, []string{aggregate.All, "Diwali", "Holi"}, opts.Festivals)
	assert.Equal(t, []string{aggregate.All, "Negative", "Positive"}, opts.Sentiments)

	rec = ts.get("/api/rows?festival=Holi")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows struct {
		Columns []string   `json:"columns"`
		Rows    [][]string `json:"rows"`
		Total   int        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Equal(t, 1, rows.Total)
	assert.Contains(t, rows.Columns, dataset.ColumnText)
}

func TestExportRoundTrips(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "fest.xlsx", festivalWorkbook(t), "")

	rec := ts.get("/export.xlsx?sentiment=Positive")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxMIME, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "emojidash-export.xlsx")

	raw, err := dataset.ReadXLSX(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Len(t, raw.Rows, 2)
}

func TestSessionsAreIsolated(t *testing.T) {
	a := newTestServer(t)
	a.upload(t, "fest.xlsx", festivalWorkbook(t), "")

	b := &testServer{handler: a.handler}
	rec := b.get("/api/dashboard")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.get("/api/dashboard")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthMetricsAndStatic(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ts.upload(t, "fest.csv", []byte("x"), "application/json")
	rec = ts.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `emojidash_uploads_total{result="rejected"} 1`)

	rec = ts.get("/static/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), ".sidebar"))
}
