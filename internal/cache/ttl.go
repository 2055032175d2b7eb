package cache

import "time"

// TTL classes for the different upstream operations. These are added to
// time.Now() when storing to calculate the entry expiry.
const (
	// Short-lived data (changes continuously while markets are open)
	TTLQuote = 10 * time.Minute // Real-time quotes for batch valuation

	// Medium-lived data
	TTLHistory  = 24 * time.Hour // OHLCV history, fund price series
	TTLCalendar = time.Hour      // Economic calendar entries
	TTLYield    = 6 * time.Hour  // Government bond yields

	// Long-lived reference data (rarely changes)
	TTLReference = 7 * 24 * time.Hour  // Company lists, fund registries
	TTLInflation = 24 * time.Hour      // CPI index series (monthly releases)
	TTLFXRate    = time.Hour           // Currency exchange rates
	TTLFundInfo  = 12 * time.Hour      // Fund detail (size, investor count)
	TTLLookup    = 30 * 24 * time.Hour // Cross-registry symbol resolutions
)
