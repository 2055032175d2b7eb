package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/domain"
	"github.com/ukaya/piyasa/internal/fetch"
)

// QuoteFetcher is the parallel aggregator contract the service consumes.
type QuoteFetcher interface {
	Fetch(ctx context.Context, requests []fetch.Request) (map[string]fetch.Result, error)
}

// HistorySource is the slice of the asset facade used for value curves.
type HistorySource interface {
	History(symbol string, assetType domain.AssetType, start, end time.Time) ([]domain.HistoryPoint, error)
}

// FXSource quotes currency pairs against TRY for reporting conversion.
type FXSource interface {
	Current(pair string) (domain.Quote, error)
}

// Service computes valuations, value curves and performance metrics for
// stored portfolios.
type Service struct {
	repo    *Repository
	fetcher QuoteFetcher
	history HistorySource
	fx      FXSource
	metrics metricsDeps
	log     zerolog.Logger
}

// NewService creates the portfolio service.
func NewService(repo *Repository, fetcher QuoteFetcher, history HistorySource, fx FXSource, yields YieldSource, inflation InflationSource, riskFreeFallback float64, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		fetcher: fetcher,
		history: history,
		fx:      fx,
		metrics: metricsDeps{
			yields:           yields,
			inflation:        inflation,
			riskFreeFallback: riskFreeFallback,
		},
		log: log.With().Str("component", "portfolio").Logger(),
	}
}

// Repo exposes the repository for the HTTP handlers.
func (s *Service) Repo() *Repository { return s.repo }

// Valuate prices every holding of a portfolio at the current quotes and
// sums them in the reporting currency.
//
// A holding whose quote is unavailable is valued at its cost basis (a
// conservative zero-return assumption) instead of being dropped, so the
// total never silently undercounts.
func (s *Service) Valuate(ctx context.Context, portfolioID string) (Valuation, error) {
	p, err := s.repo.GetPortfolio(portfolioID)
	if err != nil {
		return Valuation{}, err
	}
	holdings, err := s.repo.ListHoldings(portfolioID)
	if err != nil {
		return Valuation{}, err
	}

	requests := make([]fetch.Request, 0, len(holdings))
	for _, h := range holdings {
		requests = append(requests, fetch.Request{Symbol: h.Symbol, Type: h.Type})
	}
	quotes, err := s.fetcher.Fetch(ctx, requests)
	if err != nil {
		// A canceled batch still yields partial quotes; the cost-basis
		// fallback covers whatever is missing.
		s.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Quote batch incomplete")
	}

	v := Valuation{
		PortfolioID: p.ID,
		Currency:    p.Currency,
		Timestamp:   time.Now(),
		Positions:   make([]PositionValue, 0, len(holdings)),
	}

	rates := newRateCache(s.fx, p.Currency, s.log)
	for _, h := range holdings {
		pos := s.valuePosition(h, quotes, rates)
		v.TotalValue += pos.Value
		v.TotalCost += pos.Cost
		v.Positions = append(v.Positions, pos)
	}
	if v.TotalCost > 0 {
		v.ReturnPct = (v.TotalValue - v.TotalCost) / v.TotalCost
	}
	return v, nil
}

// valuePosition prices one holding, falling back to cost basis when the
// quote is missing or failed.
func (s *Service) valuePosition(h domain.Holding, quotes map[string]fetch.Result, rates *rateCache) PositionValue {
	pos := PositionValue{
		Symbol:   h.Symbol,
		Type:     h.Type,
		Quantity: h.Quantity,
		UnitCost: h.UnitCost,
		Currency: h.Currency,
	}

	price := h.UnitCost
	if res, ok := quotes[h.Symbol]; ok && res.OK() && res.Quote.Last > 0 {
		price = res.Quote.Last
	} else {
		pos.PriceMissing = true
	}
	pos.Price = price

	rate := rates.rate(h.Currency)
	pos.FXRate = rate
	pos.Value = h.Quantity * price * rate
	pos.Cost = h.CostBasis() * rate
	if pos.Cost > 0 {
		pos.ReturnPct = (pos.Value - pos.Cost) / pos.Cost
	}
	return pos
}

// ValueCurve reconstructs the portfolio value over [start, end]: for every
// date with at least one price, each holding contributes its nearest price
// at or before that date, or its cost basis when it has no price yet.
// Prices are never borrowed across holdings.
func (s *Service) ValueCurve(ctx context.Context, portfolioID string, start, end time.Time) ([]ValuePoint, error) {
	p, err := s.repo.GetPortfolio(portfolioID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.repo.ListHoldings(portfolioID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return []ValuePoint{}, nil
	}

	type series struct {
		holding domain.Holding
		points  []domain.HistoryPoint
	}

	rates := newRateCache(s.fx, p.Currency, s.log)

	// Historical TRY rates per currency, fetched once per distinct currency.
	// The reporting currency gets a series too so a conversion at date D uses
	// the cross of that day on both sides.
	fxSeries := map[string][]domain.HistoryPoint{}
	fxHistory := func(currency string) []domain.HistoryPoint {
		if currency == "" || currency == "TRY" {
			return nil
		}
		if points, ok := fxSeries[currency]; ok {
			return points
		}
		points, err := s.history.History(currency, domain.AssetFX, start, end)
		if err != nil {
			s.log.Debug().Err(err).Str("currency", currency).Msg("No FX history, using current rate")
			points = nil
		}
		fxSeries[currency] = points
		return points
	}

	dateSet := map[string]time.Time{}
	all := make([]series, 0, len(holdings))
	for _, h := range holdings {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		points, err := s.history.History(h.Symbol, h.Type, start, end)
		if err != nil {
			// A holding with no series still contributes its cost basis.
			s.log.Debug().Err(err).Str("symbol", h.Symbol).Msg("No history for holding")
			points = nil
		}
		if h.Currency != p.Currency && h.Currency != "" {
			fxHistory(h.Currency)
			fxHistory(p.Currency)
		}
		all = append(all, series{holding: h, points: points})
		for _, pt := range points {
			dateSet[pt.Date.Format("2006-01-02")] = pt.Date
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	curve := make([]ValuePoint, 0, len(dates))
	for _, date := range dates {
		var value, cost float64
		for _, sr := range all {
			h := sr.holding
			rate := 1.0
			if h.Currency != p.Currency && h.Currency != "" {
				rate = tryRateAt(fxSeries[h.Currency], date, h.Currency, rates) /
					tryRateAt(fxSeries[p.Currency], date, p.Currency, rates)
			}
			price, ok := nearestAtOrBefore(sr.points, date)
			if !ok {
				price = h.UnitCost
			}
			value += h.Quantity * price * rate
			cost += h.CostBasis() * rate
		}
		curve = append(curve, ValuePoint{Date: date, MarketValue: value, TotalCost: cost})
	}
	return curve, nil
}

// tryRateAt returns TRY per unit of currency as of date, preferring the
// historical series and falling back to the current rate.
func tryRateAt(points []domain.HistoryPoint, date time.Time, currency string, rates *rateCache) float64 {
	if currency == "" || currency == "TRY" {
		return 1
	}
	if price, ok := nearestAtOrBefore(points, date); ok && price > 0 {
		return price
	}
	return rates.tryRate(currency)
}

// nearestAtOrBefore returns the close of the latest point at or before
// date. The series must be date ascending.
func nearestAtOrBefore(points []domain.HistoryPoint, date time.Time) (float64, bool) {
	idx := sort.Search(len(points), func(i int) bool { return points[i].Date.After(date) })
	if idx == 0 {
		return 0, false
	}
	return points[idx-1].Close, true
}

// rateCache memoizes holding-currency -> reporting-currency rates for one
// valuation pass. Rates go through TRY: rate(c) is TRY per unit of c, and
// the reporting conversion divides by the reporting currency's own rate.
type rateCache struct {
	fx        FXSource
	reporting string
	cached    map[string]float64
	log       zerolog.Logger
}

func newRateCache(fx FXSource, reporting string, log zerolog.Logger) *rateCache {
	return &rateCache{fx: fx, reporting: reporting, cached: map[string]float64{}, log: log}
}

// rate returns the conversion factor from currency to the reporting
// currency. An unavailable rate degrades to 1.0 so a single FX outage
// cannot blank the whole report; the affected positions stay visible at
// their unconverted magnitude.
func (rc *rateCache) rate(currency string) float64 {
	if currency == rc.reporting || currency == "" {
		return 1
	}
	if r, ok := rc.cached[currency]; ok {
		return r
	}

	r := rc.tryRate(currency) / rc.tryRate(rc.reporting)
	rc.cached[currency] = r
	return r
}

// tryRate returns TRY per unit of currency; TRY itself is 1.
func (rc *rateCache) tryRate(currency string) float64 {
	if currency == "" || currency == "TRY" {
		return 1
	}
	q, err := rc.fx.Current(currency)
	if err != nil || q.Last <= 0 {
		rc.log.Warn().Err(err).Str("currency", currency).Msg("FX rate unavailable, using 1.0")
		return 1
	}
	return q.Last
}
