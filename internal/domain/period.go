package domain

import "time"

// periodTable maps period shorthands to lookback durations. Resolution is
// deterministic: end defaults to now, start = end - lookback.
var periodTable = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1mo": 30 * 24 * time.Hour,
	"3mo": 90 * 24 * time.Hour,
	"6mo": 180 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
	"2y":  2 * 365 * 24 * time.Hour,
	"5y":  5 * 365 * 24 * time.Hour,
}

// defaultPeriod is the window used for unknown shorthands. An unknown
// period is not an error; upstream tooling passes free-form strings.
const defaultPeriod = 30 * 24 * time.Hour

// ResolvePeriod converts a period shorthand ("1d", "1mo", "1y", ...) to an
// absolute [start, end] range ending now. Unknown shorthands fall back to a
// 30-day window.
func ResolvePeriod(period string, now time.Time) (start, end time.Time) {
	lookback, ok := periodTable[period]
	if !ok {
		lookback = defaultPeriod
	}
	end = now
	start = end.Add(-lookback)
	return start, end
}
