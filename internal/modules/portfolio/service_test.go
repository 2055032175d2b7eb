package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukaya/piyasa/internal/domain"
	"github.com/ukaya/piyasa/internal/fetch"
)

// stubFetcher answers a batch from a fixed price map; symbols absent from
// the map fail like an upstream outage.
type stubFetcher struct {
	prices map[string]float64
}

func (s *stubFetcher) Fetch(ctx context.Context, requests []fetch.Request) (map[string]fetch.Result, error) {
	results := map[string]fetch.Result{}
	for _, r := range requests {
		if price, ok := s.prices[r.Symbol]; ok {
			results[r.Symbol] = fetch.Result{Quote: domain.Quote{Symbol: r.Symbol, Last: price, Timestamp: time.Now()}}
		} else {
			results[r.Symbol] = fetch.Result{Err: domain.Upstream("stub", "current", 503, errors.New("down"))}
		}
	}
	return results, nil
}

// stubHistory serves fixed per-symbol series, ignoring the range.
type stubHistory struct {
	series map[string][]domain.HistoryPoint
}

func (s *stubHistory) History(symbol string, assetType domain.AssetType, start, end time.Time) ([]domain.HistoryPoint, error) {
	points, ok := s.series[symbol]
	if !ok {
		return nil, domain.ErrNotAvailable
	}
	return points, nil
}

type stubFX struct {
	rates map[string]float64
}

func (s *stubFX) Current(pair string) (domain.Quote, error) {
	rate, ok := s.rates[pair]
	if !ok {
		return domain.Quote{}, domain.ErrNotAvailable
	}
	return domain.Quote{Symbol: pair, Last: rate, Timestamp: time.Now()}, nil
}

type stubYields struct {
	rate float64
	err  error
}

func (s *stubYields) LongTermYield() (float64, error) { return s.rate, s.err }

type stubInflation struct {
	rate float64
	err  error
}

func (s *stubInflation) YearlyRate() (float64, error) { return s.rate, s.err }

// newTestService wires a service over an in-memory repository and stubs.
func newTestService(t *testing.T, fetcher QuoteFetcher, history HistorySource, fx FXSource, yields YieldSource, inflation InflationSource) *Service {
	t.Helper()
	repo := newTestRepo(t)
	if fx == nil {
		fx = &stubFX{}
	}
	return NewService(repo, fetcher, history, fx, yields, inflation, 0.30, zerolog.Nop())
}

func TestValuateMixedCurrencies(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]float64{"THYAO": 12, "AAPL": 2100}}
	fx := &stubFX{rates: map[string]float64{"USD": 35}}
	svc := newTestService(t, fetcher, &stubHistory{}, fx, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Karma", "TRY")
	require.NoError(t, err)
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "THYAO", Type: domain.AssetEquity, Quantity: 100, UnitCost: 10,
		Currency: "TRY", PurchaseDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "AAPL", Type: domain.AssetEquity, Quantity: 1, UnitCost: 2000,
		Currency: "USD", PurchaseDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))

	v, err := svc.Valuate(context.Background(), p.ID)
	require.NoError(t, err)

	// 100 * 12 TRY + 1 * 2100 USD * 35 TRY/USD
	assert.InDelta(t, 74700, v.TotalValue, 1e-9)
	// 100 * 10 TRY + 1 * 2000 USD * 35 TRY/USD
	assert.InDelta(t, 71000, v.TotalCost, 1e-9)
	assert.InDelta(t, 3700.0/71000, v.ReturnPct, 1e-9)
	require.Len(t, v.Positions, 2)

	for _, pos := range v.Positions {
		assert.False(t, pos.PriceMissing, "position %s", pos.Symbol)
		if pos.Symbol == "AAPL" {
			assert.Equal(t, 35.0, pos.FXRate)
		}
	}
}

func TestValuateCostBasisFallback(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]float64{}} // every quote fails
	svc := newTestService(t, fetcher, &stubHistory{}, nil, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Arizali", "TRY")
	require.NoError(t, err)
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "THYAO", Type: domain.AssetEquity, Quantity: 100, UnitCost: 10,
		Currency: "TRY", PurchaseDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))

	v, err := svc.Valuate(context.Background(), p.ID)
	require.NoError(t, err)

	require.Len(t, v.Positions, 1)
	assert.True(t, v.Positions[0].PriceMissing)
	assert.Equal(t, 10.0, v.Positions[0].Price)
	assert.InDelta(t, 1000, v.TotalValue, 1e-9)
	assert.InDelta(t, 1000, v.TotalCost, 1e-9)
	assert.Equal(t, 0.0, v.ReturnPct)
}

func TestValuateUnknownFXDegradesToOne(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]float64{"AAPL": 2100}}
	svc := newTestService(t, fetcher, &stubHistory{}, &stubFX{}, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Dolar", "TRY")
	require.NoError(t, err)
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "AAPL", Type: domain.AssetEquity, Quantity: 1, UnitCost: 2000,
		Currency: "USD", PurchaseDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))

	v, err := svc.Valuate(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, v.Positions, 1)
	assert.Equal(t, 1.0, v.Positions[0].FXRate)
	assert.InDelta(t, 2100, v.TotalValue, 1e-9)
}

func TestValuateMissingPortfolio(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, &stubHistory{}, nil, nil, nil)

	_, err := svc.Valuate(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestValueCurveNearestAtOrBefore(t *testing.T) {
	history := &stubHistory{series: map[string][]domain.HistoryPoint{
		"THYAO": {
			{Date: day(1), Close: 10},
			{Date: day(4), Close: 11},
			{Date: day(5), Close: 12},
		},
		"AAK": {
			{Date: day(4), Close: 2},
			{Date: day(5), Close: 2.5},
		},
	}}
	svc := newTestService(t, &stubFetcher{}, history, nil, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Tarihce", "TRY")
	require.NoError(t, err)
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "THYAO", Type: domain.AssetEquity, Quantity: 10, UnitCost: 9,
		Currency: "TRY", PurchaseDate: day(1),
	}))
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "AAK", Type: domain.AssetFund, Quantity: 100, UnitCost: 1.8,
		Currency: "TRY", PurchaseDate: day(1),
	}))

	curve, err := svc.ValueCurve(context.Background(), p.ID, day(1), day(5))
	require.NoError(t, err)
	require.Len(t, curve, 3)

	// Day 1: THYAO at 10, AAK has no price yet so its cost basis counts.
	assert.True(t, curve[0].Date.Equal(day(1)))
	assert.InDelta(t, 10*10+100*1.8, curve[0].MarketValue, 1e-9)

	// Day 4: both priced.
	assert.InDelta(t, 10*11+100*2, curve[1].MarketValue, 1e-9)

	// Day 5.
	assert.InDelta(t, 10*12+100*2.5, curve[2].MarketValue, 1e-9)

	for _, pt := range curve {
		assert.InDelta(t, 10*9+100*1.8, pt.TotalCost, 1e-9)
	}
}

func TestValueCurveEmptyPortfolio(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, &stubHistory{}, nil, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Bos", "TRY")
	require.NoError(t, err)

	curve, err := svc.ValueCurve(context.Background(), p.ID, day(1), day(5))
	require.NoError(t, err)
	assert.Empty(t, curve)
}

func TestValueCurveConvertsWithFXHistory(t *testing.T) {
	history := &stubHistory{series: map[string][]domain.HistoryPoint{
		"AAPL": {{Date: day(1), Close: 100}, {Date: day(2), Close: 110}},
		"USD":  {{Date: day(1), Close: 30}, {Date: day(2), Close: 31}},
	}}
	svc := newTestService(t, &stubFetcher{}, history, nil, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Dolar", "TRY")
	require.NoError(t, err)
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "AAPL", Type: domain.AssetEquity, Quantity: 2, UnitCost: 90,
		Currency: "USD", PurchaseDate: day(1),
	}))

	curve, err := svc.ValueCurve(context.Background(), p.ID, day(1), day(2))
	require.NoError(t, err)
	require.Len(t, curve, 2)
	assert.InDelta(t, 2*100*30, curve[0].MarketValue, 1e-9)
	assert.InDelta(t, 2*110*31, curve[1].MarketValue, 1e-9)
}

func TestValueCurveForeignReportingCurrency(t *testing.T) {
	history := &stubHistory{series: map[string][]domain.HistoryPoint{
		"SAP": {{Date: day(1), Close: 100}},
		"EUR": {{Date: day(1), Close: 38}},
	}}
	fx := &stubFX{rates: map[string]float64{"USD": 35, "EUR": 38}}
	svc := newTestService(t, &stubFetcher{}, history, fx, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Dolar raporu", "USD")
	require.NoError(t, err)
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "SAP", Type: domain.AssetEquity, Quantity: 1, UnitCost: 90,
		Currency: "EUR", PurchaseDate: day(1),
	}))

	curve, err := svc.ValueCurve(context.Background(), p.ID, day(1), day(2))
	require.NoError(t, err)
	require.Len(t, curve, 1)

	// 100 EUR expressed in USD: 100 * 38 TRY / 35 TRY, not the raw TRY cross.
	assert.InDelta(t, 100*38.0/35.0, curve[0].MarketValue, 1e-9)
	assert.InDelta(t, 90*38.0/35.0, curve[0].TotalCost, 1e-9)
}

func TestValueCurveForeignReportingUsesHistoricalCross(t *testing.T) {
	history := &stubHistory{series: map[string][]domain.HistoryPoint{
		"SAP": {{Date: day(1), Close: 100}, {Date: day(2), Close: 100}},
		"EUR": {{Date: day(1), Close: 38}, {Date: day(2), Close: 40}},
		"USD": {{Date: day(1), Close: 34}, {Date: day(2), Close: 36}},
	}}
	svc := newTestService(t, &stubFetcher{}, history, &stubFX{}, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Dolar raporu", "USD")
	require.NoError(t, err)
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "SAP", Type: domain.AssetEquity, Quantity: 1, UnitCost: 90,
		Currency: "EUR", PurchaseDate: day(1),
	}))

	curve, err := svc.ValueCurve(context.Background(), p.ID, day(1), day(2))
	require.NoError(t, err)
	require.Len(t, curve, 2)

	// Both legs of the conversion come from the same day's series.
	assert.InDelta(t, 100*38.0/34.0, curve[0].MarketValue, 1e-9)
	assert.InDelta(t, 100*40.0/36.0, curve[1].MarketValue, 1e-9)
}

// seedGrowingPortfolio stores one TRY holding with a year of history that
// grows from 1000 to 1100.
func seedGrowingPortfolio(t *testing.T, svc *Service) (string, *stubHistory) {
	t.Helper()
	purchase := time.Now().AddDate(-1, 0, 0)
	points := make([]domain.HistoryPoint, 0, 250)
	for i := 0; i < 250; i++ {
		points = append(points, domain.HistoryPoint{
			Date:  purchase.AddDate(0, 0, i+1),
			Close: 1000 + 100*float64(i+1)/250,
		})
	}
	history := &stubHistory{series: map[string][]domain.HistoryPoint{"FON": points}}
	svc.history = history

	p, err := svc.Repo().CreatePortfolio("Buyuyen", "TRY")
	require.NoError(t, err)
	require.NoError(t, svc.Repo().PutHolding(p.ID, domain.Holding{
		Symbol: "FON", Type: domain.AssetFund, Quantity: 1, UnitCost: 1000,
		Currency: "TRY", PurchaseDate: purchase,
	}))
	return p.ID, history
}

func TestMetricsGrowingPortfolio(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]float64{"FON": 1100}}
	svc := newTestService(t, fetcher, &stubHistory{}, nil, &stubYields{rate: 0.289}, &stubInflation{rate: 0.671})
	id, _ := seedGrowingPortfolio(t, svc)

	start := time.Now().AddDate(-1, 0, 0)
	m, err := svc.Metrics(context.Background(), id, start, time.Now(), nil)
	require.NoError(t, err)

	assert.Equal(t, 249, m.TradingDays)
	assert.InDelta(t, 0.0996, m.TotalReturn, 0.001)
	assert.Greater(t, m.AnnualizedReturn, 0.0)
	assert.GreaterOrEqual(t, m.AnnualizedVolatility, 0.0)
	assert.Equal(t, 0.289, m.RiskFreeRate)
	// Value never declines, so drawdown is zero and Sortino diverges.
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.False(t, m.SortinoRatio.IsFinite())

	// One purchase a year ago, worth 1100 today: money-weighted return near 10%.
	require.True(t, m.XIRR.IsFinite())
	assert.InDelta(t, 0.10, float64(m.XIRR), 0.02)

	// Real return deflates the nominal one by yearly inflation.
	require.True(t, m.RealReturn.IsFinite())
	assert.InDelta(t, (1+m.AnnualizedReturn)/1.671-1, float64(m.RealReturn), 1e-9)
}

func TestMetricsRiskFreeResolution(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]float64{"FON": 1100}}

	t.Run("override wins", func(t *testing.T) {
		svc := newTestService(t, fetcher, &stubHistory{}, nil, &stubYields{rate: 0.289}, nil)
		id, _ := seedGrowingPortfolio(t, svc)
		override := 0.25
		m, err := svc.Metrics(context.Background(), id, time.Now().AddDate(-1, 0, 0), time.Now(), &override)
		require.NoError(t, err)
		assert.Equal(t, 0.25, m.RiskFreeRate)
	})

	t.Run("live yield", func(t *testing.T) {
		svc := newTestService(t, fetcher, &stubHistory{}, nil, &stubYields{rate: 0.289}, nil)
		id, _ := seedGrowingPortfolio(t, svc)
		m, err := svc.Metrics(context.Background(), id, time.Now().AddDate(-1, 0, 0), time.Now(), nil)
		require.NoError(t, err)
		assert.Equal(t, 0.289, m.RiskFreeRate)
	})

	t.Run("fallback on yield outage", func(t *testing.T) {
		svc := newTestService(t, fetcher, &stubHistory{}, nil, &stubYields{err: domain.ErrNotAvailable}, nil)
		id, _ := seedGrowingPortfolio(t, svc)
		m, err := svc.Metrics(context.Background(), id, time.Now().AddDate(-1, 0, 0), time.Now(), nil)
		require.NoError(t, err)
		assert.Equal(t, 0.30, m.RiskFreeRate)
	})
}

func TestMetricsEmptyPortfolio(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, &stubHistory{}, nil, nil, nil)

	p, err := svc.Repo().CreatePortfolio("Bos", "TRY")
	require.NoError(t, err)

	m, err := svc.Metrics(context.Background(), p.ID, day(1), day(5), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.TradingDays)
	assert.False(t, m.SharpeRatio.IsFinite())
	assert.False(t, m.XIRR.IsFinite())
}

func TestRealReturnOf(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, &stubHistory{}, nil, nil, &stubInflation{rate: 0.50})

	real, err := svc.RealReturnOf(0.80)
	require.NoError(t, err)
	assert.InDelta(t, 1.8/1.5-1, real, 1e-9)

	svc.metrics.inflation = nil
	_, err = svc.RealReturnOf(0.80)
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
}
