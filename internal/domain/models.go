// Package domain contains the shared types that flow between providers,
// the fetch aggregator and the portfolio engine. It has no infrastructure
// dependencies.
package domain

import "time"

// AssetType classifies a holding so the asset facade can route it to the
// right upstream provider.
type AssetType string

const (
	AssetEquity AssetType = "equity"
	AssetFund   AssetType = "fund"
	AssetFX     AssetType = "fx"
	AssetCrypto AssetType = "crypto"
	AssetBond   AssetType = "bond"
	AssetIndex  AssetType = "index"
)

// Valid reports whether the asset type is one of the known classes.
func (a AssetType) Valid() bool {
	switch a {
	case AssetEquity, AssetFund, AssetFX, AssetCrypto, AssetBond, AssetIndex:
		return true
	}
	return false
}

// Quote is an immutable snapshot of the latest price for a symbol.
// A new Quote is created per fetch; the next fetch supersedes it.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Open      float64   `json:"open,omitempty"`
	High      float64   `json:"high,omitempty"`
	Low       float64   `json:"low,omitempty"`
	Bid       *float64  `json:"bid,omitempty"`
	Ask       *float64  `json:"ask,omitempty"`
	Volume    *float64  `json:"volume,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryPoint is one element of a date-ascending price series.
// Close is always populated; OHLC/Volume and the fund-specific auxiliary
// fields are provider dependent.
type HistoryPoint struct {
	Date          time.Time `json:"date"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	Close         float64   `json:"close"`
	Volume        *float64  `json:"volume,omitempty"`
	FundSize      *float64  `json:"fund_size,omitempty"`
	InvestorCount *int      `json:"investor_count,omitempty"`
	Weight        *float64  `json:"weight,omitempty"`
}

// Holding is one lot of an asset inside a portfolio. Holdings are immutable:
// re-adding a symbol replaces the lot, deleting removes it.
type Holding struct {
	Symbol       string    `json:"symbol"`
	Type         AssetType `json:"type"`
	Quantity     float64   `json:"quantity"`
	UnitCost     float64   `json:"unit_cost"`
	Currency     string    `json:"currency"` // Currency the holding is quoted in (e.g., "TRY", "USD")
	PurchaseDate time.Time `json:"purchase_date"`
	TargetPrice  *float64  `json:"target_price,omitempty"`
}

// CostBasis returns the total acquisition cost of the lot in its own currency.
func (h Holding) CostBasis() float64 {
	return h.Quantity * h.UnitCost
}

// Portfolio is the aggregate owning a set of holdings, one lot per symbol.
type Portfolio struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"` // Reporting currency
	Holdings  []Holding `json:"holdings,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CashFlow is a signed amount at a date, the input to the XIRR solver.
// Derived on every metrics request, never persisted.
type CashFlow struct {
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}

// CalendarEvent is one entry of the economic calendar.
type CalendarEvent struct {
	Date       time.Time `json:"date"`
	Country    string    `json:"country"`
	Title      string    `json:"title"`
	Importance string    `json:"importance,omitempty"`
	Actual     string    `json:"actual,omitempty"`
	Forecast   string    `json:"forecast,omitempty"`
	Previous   string    `json:"previous,omitempty"`
}
