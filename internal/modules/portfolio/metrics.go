package portfolio

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ukaya/piyasa/internal/domain"
	"github.com/ukaya/piyasa/pkg/formulas"
)

// YieldSource supplies the long-maturity government bond yield used as the
// default risk-free rate.
type YieldSource interface {
	LongTermYield() (float64, error)
}

// InflationSource supplies the latest year-over-year inflation ratio.
type InflationSource interface {
	YearlyRate() (float64, error)
}

type metricsDeps struct {
	yields           YieldSource
	inflation        InflationSource
	riskFreeFallback float64
}

// Metrics computes the risk/performance record for a portfolio over
// [start, end] from its reconstructed value curve and cash flows.
//
// riskFree overrides the risk-free rate when non-nil; otherwise the
// current long-maturity bond yield is used, and if that fetch fails the
// configured conservative fallback is substituted rather than aborting.
func (s *Service) Metrics(ctx context.Context, portfolioID string, start, end time.Time, riskFree *float64) (Metrics, error) {
	curve, err := s.ValueCurve(ctx, portfolioID, start, end)
	if err != nil {
		return Metrics{}, err
	}

	rf := s.resolveRiskFree(riskFree)

	m := Metrics{
		PortfolioID:  portfolioID,
		Start:        start,
		End:          end,
		RiskFreeRate: rf,
		SharpeRatio:  Ratio(math.NaN()),
		SortinoRatio: Ratio(math.NaN()),
		XIRR:         Ratio(math.NaN()),
		RealReturn:   Ratio(math.NaN()),
	}

	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.MarketValue
	}

	if len(values) >= 2 {
		returns := formulas.DailyReturns(values)
		m.TradingDays = len(returns)
		m.TotalReturn = formulas.TotalReturn(values)
		m.AnnualizedReturn = formulas.AnnualizedReturn(m.TotalReturn, m.TradingDays)
		m.AnnualizedVolatility = formulas.AnnualizedVolatility(returns)
		m.SharpeRatio = Ratio(formulas.SharpeRatio(m.AnnualizedReturn, rf, m.AnnualizedVolatility))
		m.SortinoRatio = Ratio(formulas.SortinoRatio(m.AnnualizedReturn, rf, returns))
		m.MaxDrawdown = formulas.MaxDrawdown(values)
	}

	if xirr, err := s.moneyWeightedReturn(ctx, portfolioID); err == nil {
		m.XIRR = Ratio(xirr)
	} else if !errors.Is(err, formulas.ErrNoSolution) {
		return Metrics{}, err
	}

	if s.metrics.inflation != nil {
		if infl, err := s.metrics.inflation.YearlyRate(); err == nil && infl > -1 {
			m.RealReturn = Ratio((1+m.AnnualizedReturn)/(1+infl) - 1)
		}
	}

	return m, nil
}

// resolveRiskFree picks the explicit rate, the live bond yield, or the
// configured fallback, in that order.
func (s *Service) resolveRiskFree(override *float64) float64 {
	if override != nil {
		return *override
	}
	if s.metrics.yields != nil {
		if rate, err := s.metrics.yields.LongTermYield(); err == nil && rate > 0 {
			return rate
		}
		s.log.Warn().
			Float64("fallback", s.metrics.riskFreeFallback).
			Msg("Bond yield unavailable, using fallback risk-free rate")
	}
	return s.metrics.riskFreeFallback
}

// moneyWeightedReturn builds the cash-flow timeline (one negative flow per
// purchase, one positive terminal flow at the current total value) and
// solves for XIRR.
func (s *Service) moneyWeightedReturn(ctx context.Context, portfolioID string) (float64, error) {
	p, err := s.repo.GetPortfolio(portfolioID)
	if err != nil {
		return 0, err
	}
	holdings, err := s.repo.ListHoldings(portfolioID)
	if err != nil {
		return 0, err
	}
	if len(holdings) == 0 {
		return 0, formulas.ErrNoSolution
	}

	valuation, err := s.Valuate(ctx, portfolioID)
	if err != nil {
		return 0, err
	}

	rates := newRateCache(s.fx, p.Currency, s.log)
	flows := make([]formulas.Flow, 0, len(holdings)+1)
	for _, h := range holdings {
		flows = append(flows, formulas.Flow{
			Amount: -h.CostBasis() * rates.rate(h.Currency),
			Date:   h.PurchaseDate,
		})
	}
	flows = append(flows, formulas.Flow{Amount: valuation.TotalValue, Date: time.Now()})

	return formulas.XIRR(flows)
}

// RealReturnOf converts a nominal annual return to a real one using the
// latest yearly inflation. Exposed for the series endpoints.
func (s *Service) RealReturnOf(nominal float64) (float64, error) {
	if s.metrics.inflation == nil {
		return 0, domain.ErrNotAvailable
	}
	infl, err := s.metrics.inflation.YearlyRate()
	if err != nil {
		return 0, err
	}
	return (1+nominal)/(1+infl) - 1, nil
}
