// Package assets is the cross-asset facade: it maps a (symbol, asset type)
// pair to the right upstream client and normalizes the answer into the
// shared Quote/HistoryPoint shapes. Callers never branch on asset type
// themselves.
package assets

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/domain"
)

// QuoteProvider is the capability shared by every price source.
type QuoteProvider interface {
	Current(symbol string) (domain.Quote, error)
	History(symbol string, start, end time.Time) ([]domain.HistoryPoint, error)
}

// Service routes lookups per asset type. It is constructed once with all
// providers and passed by reference to the aggregator and the portfolio
// engine; there is no package-level provider state.
type Service struct {
	providers map[domain.AssetType]QuoteProvider
	log       zerolog.Logger
}

// Providers bundles the per-asset-class clients for construction.
type Providers struct {
	Equity QuoteProvider // BIST equities
	Fund   QuoteProvider // TEFAS mutual funds
	FX     QuoteProvider // currencies and commodities
	Crypto QuoteProvider
	Bond   QuoteProvider // bond yields quoted per maturity symbol ("10Y")
	Index  QuoteProvider // market indices (routed like equities upstream)
}

// NewService creates the facade. Nil entries disable the corresponding
// asset class; lookups for it fail with ErrInvalidParameter.
func NewService(p Providers, log zerolog.Logger) *Service {
	providers := map[domain.AssetType]QuoteProvider{}
	register := func(t domain.AssetType, q QuoteProvider) {
		if q != nil {
			providers[t] = q
		}
	}
	register(domain.AssetEquity, p.Equity)
	register(domain.AssetFund, p.Fund)
	register(domain.AssetFX, p.FX)
	register(domain.AssetCrypto, p.Crypto)
	register(domain.AssetBond, p.Bond)
	register(domain.AssetIndex, p.Index)

	return &Service{
		providers: providers,
		log:       log.With().Str("component", "assets").Logger(),
	}
}

// Current returns the latest normalized quote for a symbol of the given
// asset type.
func (s *Service) Current(symbol string, assetType domain.AssetType) (domain.Quote, error) {
	p, err := s.provider(assetType)
	if err != nil {
		return domain.Quote{}, err
	}
	return p.Current(symbol)
}

// History returns the normalized daily series for [start, end].
func (s *Service) History(symbol string, assetType domain.AssetType, start, end time.Time) ([]domain.HistoryPoint, error) {
	if end.Before(start) {
		return nil, domain.ErrInvalidParameter
	}
	p, err := s.provider(assetType)
	if err != nil {
		return nil, err
	}
	return p.History(symbol, start, end)
}

// HistoryPeriod resolves a period shorthand ("1mo", "1y", ...) and fetches
// history for the resulting range.
func (s *Service) HistoryPeriod(symbol string, assetType domain.AssetType, period string) ([]domain.HistoryPoint, error) {
	start, end := domain.ResolvePeriod(period, time.Now())
	return s.History(symbol, assetType, start, end)
}

func (s *Service) provider(assetType domain.AssetType) (QuoteProvider, error) {
	if !assetType.Valid() {
		return nil, fmt.Errorf("asset type %q: %w", assetType, domain.ErrInvalidParameter)
	}
	p, ok := s.providers[assetType]
	if !ok {
		return nil, fmt.Errorf("asset type %q has no provider: %w", assetType, domain.ErrInvalidParameter)
	}
	return p, nil
}
