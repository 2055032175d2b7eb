package assets

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ukaya/piyasa/internal/clients/bonds"
	"github.com/ukaya/piyasa/internal/domain"
)

// YieldSource is the slice of the bonds client the quoter needs.
type YieldSource interface {
	Yields() ([]bonds.Yield, error)
}

// BondQuoter adapts the maturity-keyed bond yields source to the facade's
// symbol-based QuoteProvider contract. Symbols are maturities: "2Y",
// "5Y", "10Y".
type BondQuoter struct {
	source YieldSource
}

// NewBondQuoter wraps a bond yields source.
func NewBondQuoter(source YieldSource) *BondQuoter {
	return &BondQuoter{source: source}
}

var bondSymbolPattern = regexp.MustCompile(`^(\d+)Y$`)

// Current quotes the annual yield for a maturity symbol. Last carries the
// yield as a ratio; there is no meaningful OHLC for a scraped yield.
func (b *BondQuoter) Current(symbol string) (domain.Quote, error) {
	m := bondSymbolPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(symbol)))
	if m == nil {
		return domain.Quote{}, fmt.Errorf("bond symbol %q (want e.g. \"10Y\"): %w", symbol, domain.ErrInvalidParameter)
	}
	maturity, _ := strconv.Atoi(m[1])

	yields, err := b.source.Yields()
	if err != nil {
		return domain.Quote{}, err
	}
	for _, y := range yields {
		if y.Maturity == maturity {
			return domain.Quote{
				Symbol:    strings.ToUpper(symbol),
				Last:      y.Rate,
				Timestamp: time.Now(),
			}, nil
		}
	}
	return domain.Quote{}, fmt.Errorf("maturity %s: %w", symbol, domain.ErrNotAvailable)
}

// History is not published by the yields source; an empty series is the
// valid "no data in range" answer.
func (b *BondQuoter) History(symbol string, start, end time.Time) ([]domain.HistoryPoint, error) {
	if _, err := b.Current(symbol); err != nil {
		return nil, err
	}
	return []domain.HistoryPoint{}, nil
}
