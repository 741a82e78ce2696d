package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gin "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/holdings"
	"github.com/example/trades-allocator/internal/metrics"
	"github.com/example/trades-allocator/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestServer(t *testing.T, opts holdings.Options) (*Server, *holdings.Service) {
	t.Helper()
	reg := prometheus.NewRegistry()
	svc := holdings.New(opts, zap.NewNop(), metrics.New(reg))
	t.Cleanup(svc.Stop)
	return NewServer(svc, nil, reg, zap.NewNop(), "*"), svc
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.R.ServeHTTP(w, r)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, holdings.Options{})
	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "allocation_workers_running")
}

func TestPutAndGetSplits(t *testing.T) {
	s, svc := newTestServer(t, holdings.Options{})

	w := do(s, http.MethodGet, "/api/splits", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"splits":{},"version":0}`, w.Body.String())

	w = do(s, http.MethodPut, "/api/splits", `{"splits":{"Account1":70,"Account2":30}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"splits":{"Account1":70,"Account2":30},"version":1}`, w.Body.String())

	w = do(s, http.MethodGet, "/api/splits", "")
	assert.JSONEq(t, `{"splits":{"Account1":70,"Account2":30},"version":1}`, w.Body.String())

	// published outside HTTP: version changes, cache misses
	svc.PublishSplits(map[string]float64{"Account3": 100})
	w = do(s, http.MethodGet, "/api/splits", "")
	assert.JSONEq(t, `{"splits":{"Account3":100},"version":2}`, w.Body.String())
}

func TestPutSplitsValidation(t *testing.T) {
	s, _ := newTestServer(t, holdings.Options{})
	for _, body := range []string{
		`{}`,
		`{"splits":{}}`,
		`{"splits":{"A":-1}}`,
		`{"splits":{"A":101}}`,
		`{"splits":{" ":100}}`,
		`not json`,
	} {
		w := do(s, http.MethodPut, "/api/splits", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestPostFillAndReadPositions(t *testing.T) {
	s, svc := newTestServer(t, holdings.Options{Workers: 1})
	do(s, http.MethodPut, "/api/splits", `{"splits":{"Account1":50,"Account2":50}}`)

	w := do(s, http.MethodPost, "/api/fills", `{"instrument":"AAPL","price":150,"quantity":10}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted fillAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.NotEmpty(t, accepted.FillID)

	svc.Stop()

	w = do(s, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.Position{Instrument: "AAPL", Quantity: 5, MarketValue: 750}, snap["Account1"]["AAPL"])
	assert.Equal(t, models.Position{Instrument: "AAPL", Quantity: 5, MarketValue: 750}, snap["Account2"]["AAPL"])

	w = do(s, http.MethodGet, "/api/positions/Account1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var acc accountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acc))
	assert.Equal(t, "Account1", acc.Account)
	assert.Equal(t, int64(5), acc.Positions["AAPL"].Quantity)

	w = do(s, http.MethodGet, "/api/positions/Nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"account":"Nobody","positions":{}}`, w.Body.String())

	// stopped service refuses new fills
	w = do(s, http.MethodPost, "/api/fills", `{"instrument":"AAPL","price":150,"quantity":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPostFillValidation(t *testing.T) {
	s, _ := newTestServer(t, holdings.Options{})
	for _, body := range []string{
		`{"price":150,"quantity":10}`,
		`{"instrument":"AAPL","quantity":10}`,
		`{"instrument":"AAPL","price":-3,"quantity":10}`,
		`{"instrument":"AAPL","price":1,"quantity":1.5}`,
		`{"instrument":"AAPL","price":1,"quantity":5,"side":"sell"}`,
		`{"instrument":"AAPL","price":1,"quantity":-5,"side":"buy"}`,
		`{"instrument":"AAPL","price":1,"quantity":5,"side":"short"}`,
	} {
		w := do(s, http.MethodPost, "/api/fills", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, holdings.Options{})
	w := do(s, http.MethodOptions, "/api/positions", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PUT"))
}

func TestPostFillWithMatchingSide(t *testing.T) {
	s, _ := newTestServer(t, holdings.Options{})
	for _, body := range []string{
		`{"instrument":"AAPL","price":1,"quantity":5,"side":"buy"}`,
		`{"instrument":"AAPL","price":1,"quantity":-5,"side":"SELL"}`,
		`{"instrument":"AAPL","price":1,"quantity":0,"side":"none"}`,
	} {
		w := do(s, http.MethodPost, "/api/fills", body)
		assert.Equal(t, http.StatusAccepted, w.Code, body)
	}
}

func TestGetAccounts(t *testing.T) {
	s, svc := newTestServer(t, holdings.Options{})
	svc.PublishSplits(map[string]float64{"Account1": 60, "Account2": 40})
	_, err := svc.Allocate(models.Fill{Instrument: "AAPL", Price: 10, Quantity: 10})
	require.NoError(t, err)
	svc.PublishSplits(map[string]float64{"Account2": 100})

	w := do(s, http.MethodGet, "/api/accounts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got []models.AccountSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []models.AccountSummary{
		{Account: "Account1", Percent: 0, Open: 1, MarketValue: 60},
		{Account: "Account2", Percent: 100, Open: 1, MarketValue: 40},
	}, got)
}
