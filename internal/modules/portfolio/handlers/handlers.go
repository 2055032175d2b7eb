// Package handlers exposes the portfolio module over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/assets"
	"github.com/ukaya/piyasa/internal/domain"
	"github.com/ukaya/piyasa/internal/modules/portfolio"
)

// Handlers serves the portfolio endpoints.
type Handlers struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// New creates the portfolio handlers.
func New(service *portfolio.Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("handlers", "portfolio").Logger(),
	}
}

// Routes mounts the portfolio routes on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/portfolios", h.handleList)
	r.Post("/portfolios", h.handleCreate)
	r.Route("/portfolios/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Get("/holdings", h.handleListHoldings)
		r.Put("/holdings", h.handlePutHolding)
		r.Delete("/holdings/{symbol}", h.handleDeleteHolding)
		r.Get("/valuation", h.handleValuation)
		r.Get("/history", h.handleHistory)
		r.Get("/metrics", h.handleMetrics)
	})
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.service.Repo().ListPortfolios()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolios)
}

func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	p, err := h.service.Repo().CreatePortfolio(req.Name, req.Currency)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.service.Repo().GetPortfolio(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	holdings, err := h.service.Repo().ListHoldings(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	p.Holdings = holdings
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Repo().DeletePortfolio(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.service.Repo().ListHoldings(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (h *Handlers) handlePutHolding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol       string           `json:"symbol"`
		Type         domain.AssetType `json:"type"`
		Quantity     float64          `json:"quantity"`
		UnitCost     float64          `json:"unit_cost"`
		Currency     string           `json:"currency"`
		PurchaseDate string           `json:"purchase_date"`
		TargetPrice  *float64         `json:"target_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	purchase := time.Now()
	if req.PurchaseDate != "" {
		var err error
		purchase, err = assets.ParseDate(req.PurchaseDate)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	holding := domain.Holding{
		Symbol:       req.Symbol,
		Type:         req.Type,
		Quantity:     req.Quantity,
		UnitCost:     req.UnitCost,
		Currency:     req.Currency,
		PurchaseDate: purchase,
		TargetPrice:  req.TargetPrice,
	}
	if err := h.service.Repo().PutHolding(chi.URLParam(r, "id"), holding); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}

func (h *Handlers) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	err := h.service.Repo().DeleteHolding(chi.URLParam(r, "id"), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleValuation(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Valuate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	curve, err := h.service.ValueCurve(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var riskFree *float64
	if s := r.URL.Query().Get("risk_free"); s != "" {
		rf, err := strconv.ParseFloat(s, 64)
		if err != nil {
			http.Error(w, "invalid risk_free", http.StatusBadRequest)
			return
		}
		riskFree = &rf
	}

	m, err := h.service.Metrics(r.Context(), chi.URLParam(r, "id"), start, end, riskFree)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// parseRange reads start/end query parameters, defaulting to the last
// year when start is absent.
func (h *Handlers) parseRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	if startStr == "" {
		end := time.Now()
		return end.AddDate(-1, 0, 0), end, nil
	}
	return assets.ParseRange(startStr, r.URL.Query().Get("end"))
}

// writeError maps the domain error taxonomy to HTTP statuses.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
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
		h.log.Error().Err(err).Msg("Request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
