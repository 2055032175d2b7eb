package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukaya/piyasa/internal/database"
	"github.com/ukaya/piyasa/internal/domain"
	"github.com/ukaya/piyasa/internal/fetch"
	"github.com/ukaya/piyasa/internal/modules/portfolio"
)

type fixedFetcher struct {
	prices map[string]float64
}

func (f *fixedFetcher) Fetch(ctx context.Context, requests []fetch.Request) (map[string]fetch.Result, error) {
	results := map[string]fetch.Result{}
	for _, r := range requests {
		if price, ok := f.prices[r.Symbol]; ok {
			results[r.Symbol] = fetch.Result{Quote: domain.Quote{Symbol: r.Symbol, Last: price, Timestamp: time.Now()}}
		} else {
			results[r.Symbol] = fetch.Result{Err: domain.ErrNotAvailable}
		}
	}
	return results, nil
}

type fixedHistory struct{}

func (fixedHistory) History(symbol string, assetType domain.AssetType, start, end time.Time) ([]domain.HistoryPoint, error) {
	return nil, domain.ErrNotAvailable
}

type fixedFX struct{}

func (fixedFX) Current(pair string) (domain.Quote, error) {
	return domain.Quote{}, domain.ErrNotAvailable
}

// newTestServer mounts the portfolio routes over an in-memory store.
func newTestServer(t *testing.T, prices map[string]float64) *httptest.Server {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Name: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := portfolio.NewRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, err)
	svc := portfolio.NewService(repo, &fixedFetcher{prices: prices}, fixedHistory{}, fixedFX{}, nil, nil, 0.30, zerolog.Nop())

	r := chi.NewRouter()
	New(svc, zerolog.Nop()).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createPortfolio(t *testing.T, srv *httptest.Server, name string) domain.Portfolio {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/portfolios", fmt.Sprintf(`{"name":%q,"currency":"TRY"}`, name))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var p domain.Portfolio
	require.NoError(t, json.Unmarshal(body, &p))
	return p
}

func TestPortfolioCRUD(t *testing.T) {
	srv := newTestServer(t, nil)

	p := createPortfolio(t, srv, "Emeklilik")
	assert.NotEmpty(t, p.ID)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/portfolios", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.Portfolio
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/portfolios/"+p.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/portfolios/"+p.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreatePortfolioRequiresName(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/portfolios", `{"currency":"TRY"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHoldingLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	p := createPortfolio(t, srv, "Test")

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/portfolios/"+p.ID+"/holdings",
		`{"symbol":"THYAO","type":"equity","quantity":100,"unit_cost":10,"purchase_date":"2024-01-15"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/portfolios/"+p.ID+"/holdings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var holdings []domain.Holding
	require.NoError(t, json.Unmarshal(body, &holdings))
	require.Len(t, holdings, 1)
	assert.Equal(t, "THYAO", holdings[0].Symbol)
	assert.Equal(t, "TRY", holdings[0].Currency)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/portfolios/"+p.ID+"/holdings/THYAO", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/portfolios/"+p.ID+"/holdings/THYAO", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutHoldingValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	p := createPortfolio(t, srv, "Test")

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/portfolios/"+p.ID+"/holdings",
		`{"symbol":"THYAO","type":"equity","quantity":0,"unit_cost":10}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/portfolios/"+p.ID+"/holdings",
		`{"symbol":"THYAO","type":"equity","quantity":1,"unit_cost":10,"purchase_date":"not-a-date"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValuationEndpoint(t *testing.T) {
	srv := newTestServer(t, map[string]float64{"THYAO": 12})
	p := createPortfolio(t, srv, "Test")

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/portfolios/"+p.ID+"/holdings",
		`{"symbol":"THYAO","type":"equity","quantity":100,"unit_cost":10,"purchase_date":"2024-01-15"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/portfolios/"+p.ID+"/valuation", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var v portfolio.Valuation
	require.NoError(t, json.Unmarshal(body, &v))
	assert.InDelta(t, 1200, v.TotalValue, 1e-9)
	assert.InDelta(t, 1000, v.TotalCost, 1e-9)
	require.Len(t, v.Positions, 1)
	assert.False(t, v.Positions[0].PriceMissing)
}

func TestValuationUnknownPortfolio(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/portfolios/no-such-id/valuation", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpointRangeValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	p := createPortfolio(t, srv, "Test")

	resp, _ := doJSON(t, http.MethodGet,
		srv.URL+"/portfolios/"+p.ID+"/metrics?start=2024-06-01&end=2024-01-01", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet,
		srv.URL+"/portfolios/"+p.ID+"/metrics?risk_free=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpointEmptyPortfolio(t *testing.T) {
	srv := newTestServer(t, nil)
	p := createPortfolio(t, srv, "Test")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/portfolios/"+p.ID+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// Non-finite ratios serialize as null, never as invalid JSON.
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Nil(t, m["sharpe_ratio"])
	assert.Nil(t, m["xirr"])
	assert.Equal(t, 0.30, m["risk_free_rate"])
}
