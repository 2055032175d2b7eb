package assets

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukaya/piyasa/internal/domain"
)

// stubProvider records calls and serves canned answers.
type stubProvider struct {
	quote   domain.Quote
	history []domain.HistoryPoint
	calls   int
}

func (s *stubProvider) Current(symbol string) (domain.Quote, error) {
	s.calls++
	q := s.quote
	q.Symbol = symbol
	return q, nil
}

func (s *stubProvider) History(symbol string, start, end time.Time) ([]domain.HistoryPoint, error) {
	s.calls++
	return s.history, nil
}

func TestCurrentRoutesByAssetType(t *testing.T) {
	equity := &stubProvider{quote: domain.Quote{Last: 245.70}}
	fund := &stubProvider{quote: domain.Quote{Last: 1.25}}
	svc := NewService(Providers{Equity: equity, Fund: fund}, zerolog.Nop())

	q, err := svc.Current("THYAO", domain.AssetEquity)
	require.NoError(t, err)
	assert.Equal(t, 245.70, q.Last)
	assert.Equal(t, 1, equity.calls)
	assert.Equal(t, 0, fund.calls)

	q, err = svc.Current("AAK", domain.AssetFund)
	require.NoError(t, err)
	assert.Equal(t, 1.25, q.Last)
	assert.Equal(t, 1, fund.calls)
}

func TestCurrentUnknownAssetType(t *testing.T) {
	svc := NewService(Providers{}, zerolog.Nop())

	_, err := svc.Current("X", domain.AssetType("bogus"))
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestCurrentDisabledAssetClass(t *testing.T) {
	svc := NewService(Providers{Equity: &stubProvider{}}, zerolog.Nop())

	_, err := svc.Current("BTC", domain.AssetCrypto)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestHistoryRejectsReversedRange(t *testing.T) {
	svc := NewService(Providers{Equity: &stubProvider{}}, zerolog.Nop())

	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.History("THYAO", domain.AssetEquity, end.AddDate(0, 0, 10), end)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestHistoryPeriodResolvesShorthand(t *testing.T) {
	equity := &stubProvider{history: []domain.HistoryPoint{{Close: 245.70}}}
	svc := NewService(Providers{Equity: equity}, zerolog.Nop())

	points, err := svc.HistoryPeriod("THYAO", domain.AssetEquity, "1mo")
	require.NoError(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, 1, equity.calls)
}
