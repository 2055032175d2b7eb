package formulas

import "math"

// SharpeRatio is the excess annualized return over the risk-free rate per
// unit of annualized volatility.
//
//	Sharpe = (annualized return - risk-free rate) / annualized volatility
//
// Returns NaN when volatility is zero (a constant price series has no
// defined risk-adjusted return).
func SharpeRatio(annualizedReturn, riskFreeRate, annualizedVolatility float64) float64 {
	if annualizedVolatility == 0 {
		return math.NaN()
	}
	return (annualizedReturn - riskFreeRate) / annualizedVolatility
}

// SortinoRatio penalizes only downside volatility: the denominator is the
// standard deviation of negative daily returns, annualized.
//
// With no negative returns the ratio is +Inf (there is no downside to
// penalize). When the downside deviation degenerates to zero it is NaN.
func SortinoRatio(annualizedReturn, riskFreeRate float64, dailyReturns []float64) float64 {
	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return math.Inf(1)
	}
	dev := StdDev(downside) * math.Sqrt(TradingDaysPerYear)
	if dev == 0 {
		return math.NaN()
	}
	return (annualizedReturn - riskFreeRate) / dev
}

// SharpeFromPrices is a convenience wrapper computing the Sharpe ratio
// directly from a daily price series.
func SharpeFromPrices(prices []float64, riskFreeRate float64) float64 {
	returns := DailyReturns(prices)
	annRet := AnnualizedReturn(TotalReturn(prices), len(returns))
	annVol := AnnualizedVolatility(returns)
	return SharpeRatio(annRet, riskFreeRate, annVol)
}
