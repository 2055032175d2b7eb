package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ukaya/piyasa/internal/assets"
	"github.com/ukaya/piyasa/internal/domain"
	"github.com/ukaya/piyasa/internal/fetch"
)

// quoteResult is one entry of the batch quote response. Failed symbols
// carry an error string instead of aborting the batch.
type quoteResult struct {
	Quote *domain.Quote `json:"quote,omitempty"`
	Error string        `json:"error,omitempty"`
}

// handleQuotes fetches a batch of quotes in parallel.
// GET /api/quotes?symbols=equity:THYAO,fx:USD,crypto:BTC
func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		http.Error(w, "symbols is required", http.StatusBadRequest)
		return
	}

	var requests []fetch.Request
	for _, part := range strings.Split(raw, ",") {
		typ, symbol, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			http.Error(w, "symbols entries must be type:symbol", http.StatusBadRequest)
			return
		}
		assetType := domain.AssetType(strings.ToLower(typ))
		if !assetType.Valid() {
			http.Error(w, "unknown asset type: "+typ, http.StatusBadRequest)
			return
		}
		requests = append(requests, fetch.Request{Symbol: symbol, Type: assetType})
	}

	results, err := s.aggregator.Fetch(r.Context(), requests)
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}

	out := make(map[string]quoteResult, len(results))
	for symbol, res := range results {
		if res.OK() {
			q := res.Quote
			out[symbol] = quoteResult{Quote: &q}
		} else {
			out[symbol] = quoteResult{Error: res.Err.Error()}
		}
	}
	s.writeJSON(w, out)
}

// handleAssetCurrent returns the latest quote for one asset.
// GET /api/assets/{type}/{symbol}
func (s *Server) handleAssetCurrent(w http.ResponseWriter, r *http.Request) {
	assetType := domain.AssetType(chi.URLParam(r, "type"))
	if !assetType.Valid() {
		http.Error(w, "unknown asset type", http.StatusBadRequest)
		return
	}

	quote, err := s.assets.Current(chi.URLParam(r, "symbol"), assetType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, quote)
}

// handleAssetHistory returns the price history for one asset, either by
// named period or by an explicit start/end range.
// GET /api/assets/{type}/{symbol}/history?period=1mo
// GET /api/assets/{type}/{symbol}/history?start=2024-01-01&end=2024-06-30
func (s *Server) handleAssetHistory(w http.ResponseWriter, r *http.Request) {
	assetType := domain.AssetType(chi.URLParam(r, "type"))
	if !assetType.Valid() {
		http.Error(w, "unknown asset type", http.StatusBadRequest)
		return
	}
	symbol := chi.URLParam(r, "symbol")

	var (
		points []domain.HistoryPoint
		err    error
	)
	if startStr := r.URL.Query().Get("start"); startStr != "" {
		var start, end time.Time
		start, end, err = assets.ParseRange(startStr, r.URL.Query().Get("end"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		points, err = s.assets.History(symbol, assetType, start, end)
	} else {
		points, err = s.assets.HistoryPeriod(symbol, assetType, r.URL.Query().Get("period"))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if points == nil {
		points = []domain.HistoryPoint{}
	}
	s.writeJSON(w, points)
}

// handleFundResolve maps a free-form fund name to its code.
// GET /api/funds/resolve?name=koc+portfoy+birinci+fon
func (s *Server) handleFundResolve(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	code, err := s.funds.Resolve(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"name": name, "code": code})
}

// handleFundDetail returns fund metadata alongside the latest price.
// GET /api/funds/{code}
func (s *Server) handleFundDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.funds.Detail(chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, detail)
}

// handleBondYields returns the current government bond yield table.
// GET /api/bonds/yields
func (s *Server) handleBondYields(w http.ResponseWriter, r *http.Request) {
	yields, err := s.bonds.Yields()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, yields)
}

// handleInflation returns the monthly CPI series for a range.
// GET /api/inflation?start=2023-01-01&end=2024-01-01
func (s *Server) handleInflation(w http.ResponseWriter, r *http.Request) {
	end := time.Now()
	start := end.AddDate(-1, 0, 0)
	if startStr := r.URL.Query().Get("start"); startStr != "" {
		var err error
		start, end, err = assets.ParseRange(startStr, r.URL.Query().Get("end"))
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	points, err := s.inflation.Index(start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, points)
}

// handleCalendar returns upcoming economic calendar events.
// GET /api/calendar?limit=20
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.calendar.Upcoming(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.CalendarEvent{}
	}
	s.writeJSON(w, events)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps the domain error taxonomy to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotAvailable):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrInvalidParameter):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		s.log.Error().Err(err).Msg("Request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
