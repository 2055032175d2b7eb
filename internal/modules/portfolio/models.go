// Package portfolio owns portfolio persistence, valuation and the
// performance metrics engine.
package portfolio

import (
	"encoding/json"
	"math"
	"time"

	"github.com/ukaya/piyasa/internal/domain"
)

// Ratio is a float64 whose JSON form survives the non-finite values the
// metrics engine legitimately produces (NaN Sharpe on a flat series,
// infinite Sortino with no downside). Non-finite values marshal as null.
type Ratio float64

// MarshalJSON renders non-finite ratios as null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// IsFinite reports whether the ratio is an ordinary number.
func (r Ratio) IsFinite() bool {
	f := float64(r)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// PositionValue is one holding priced at valuation time.
type PositionValue struct {
	Symbol       string           `json:"symbol"`
	Type         domain.AssetType `json:"type"`
	Quantity     float64          `json:"quantity"`
	UnitCost     float64          `json:"unit_cost"`
	Price        float64          `json:"price"`          // Unit price used, in the holding's currency
	PriceMissing bool             `json:"price_missing"`  // True when cost basis substituted for a missing quote
	Currency     string           `json:"currency"`       // Holding currency
	FXRate       float64          `json:"fx_rate"`        // Holding currency -> reporting currency
	Value        float64          `json:"value"`          // Position value in reporting currency
	Cost         float64          `json:"cost"`           // Cost basis in reporting currency
	ReturnPct    float64          `json:"return_pct"`     // (value - cost) / cost
}

// Valuation is the portfolio priced at one instant in the reporting
// currency.
type Valuation struct {
	PortfolioID string          `json:"portfolio_id"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
	TotalValue  float64         `json:"total_value"`
	TotalCost   float64         `json:"total_cost"`
	ReturnPct   float64         `json:"return_pct"`
	Positions   []PositionValue `json:"positions"`
}

// ValuePoint is one day of the reconstructed historical value curve.
type ValuePoint struct {
	Date        time.Time `json:"date"`
	MarketValue float64   `json:"market_value"`
	TotalCost   float64   `json:"total_cost"`
}

// Metrics is the risk/performance record for a portfolio value series.
type Metrics struct {
	PortfolioID          string    `json:"portfolio_id"`
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	TradingDays          int       `json:"trading_days"`
	TotalReturn          float64   `json:"total_return"`
	AnnualizedReturn     float64   `json:"annualized_return"`
	AnnualizedVolatility float64   `json:"annualized_volatility"`
	SharpeRatio          Ratio     `json:"sharpe_ratio"`
	SortinoRatio         Ratio     `json:"sortino_ratio"`
	MaxDrawdown          float64   `json:"max_drawdown"` // Negative ratio, 0 for a monotonic rise
	XIRR                 Ratio     `json:"xirr"`
	RiskFreeRate         float64   `json:"risk_free_rate"`
	RealReturn           Ratio     `json:"real_return"` // Inflation-adjusted annualized return
}
