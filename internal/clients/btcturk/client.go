// Package btcturk provides a client for the BtcTurk public REST API
// covering crypto tickers and kline history.
package btcturk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

const (
	defaultBaseURL  = "https://api.btcturk.com"
	defaultGraphURL = "https://graph-api.btcturk.com"
	sourceName      = "btcturk"
)

// Client is the BtcTurk public API client.
type Client struct {
	baseURL    string
	graphURL   string
	httpClient *http.Client
	log        zerolog.Logger
	cache      *cache.Cache
}

// NewClient creates a new BtcTurk client.
// cache is optional - if nil, caching is disabled.
// timeout bounds each upstream call; non-positive selects the default.
func NewClient(c *cache.Cache, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    defaultBaseURL,
		graphURL:   defaultGraphURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", sourceName).Logger(),
		cache:      c,
	}
}

// normalizePair turns "BTC" into the exchange's "BTCTRY" pair symbol and
// leaves explicit pairs ("BTCUSDT") untouched.
func normalizePair(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) <= 5 && !strings.HasSuffix(s, "TRY") && !strings.HasSuffix(s, "USDT") {
		return s + "TRY"
	}
	return s
}

// Current fetches the latest ticker for a crypto symbol or pair.
// Returns domain.ErrNotAvailable when the exchange does not list the pair.
func (c *Client) Current(symbol string) (domain.Quote, error) {
	pair := normalizePair(symbol)
	if pair == "" {
		return domain.Quote{}, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "current", pair)
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var q domain.Quote
			if err := json.Unmarshal(data, &q); err == nil {
				c.log.Debug().Str("pair", pair).Msg("Ticker cache hit")
				return q, nil
			}
		}
	}

	url := fmt.Sprintf("%s/api/v2/ticker?pairSymbol=%s", c.baseURL, pair)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return domain.Quote{}, domain.Upstream(sourceName, "current", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, domain.Upstream(sourceName, "current", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var parsed struct {
		Data []struct {
			Pair      string  `json:"pair"`
			Last      float64 `json:"last"`
			Open      float64 `json:"open"`
			High      float64 `json:"high"`
			Low       float64 `json:"low"`
			Bid       float64 `json:"bid"`
			Ask       float64 `json:"ask"`
			Volume    float64 `json:"volume"`
			Timestamp int64   `json:"timestamp"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Quote{}, domain.Upstream(sourceName, "current", 0, fmt.Errorf("malformed payload: %w", err))
	}

	if !parsed.Success || len(parsed.Data) == 0 || parsed.Data[0].Last == 0 {
		return domain.Quote{}, fmt.Errorf("pair %s: %w", pair, domain.ErrNotAvailable)
	}

	d := parsed.Data[0]
	ts := time.Now()
	if d.Timestamp > 0 {
		ts = time.UnixMilli(d.Timestamp)
	}
	quote := domain.Quote{
		Symbol:    pair,
		Last:      d.Last,
		Open:      d.Open,
		High:      d.High,
		Low:       d.Low,
		Currency:  quoteCurrency(pair),
		Timestamp: ts,
	}
	if d.Bid > 0 {
		quote.Bid = &d.Bid
	}
	if d.Ask > 0 {
		quote.Ask = &d.Ask
	}
	if d.Volume > 0 {
		quote.Volume = &d.Volume
	}

	c.store(key, quote, cache.TTLQuote)
	return quote, nil
}

// History fetches the daily OHLCV series for a pair over [start, end]
// from the kline endpoint.
func (c *Client) History(symbol string, start, end time.Time) ([]domain.HistoryPoint, error) {
	pair := normalizePair(symbol)
	if pair == "" {
		return nil, domain.ErrInvalidParameter
	}
	if end.Before(start) {
		return nil, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "history", pair, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var points []domain.HistoryPoint
			if err := json.Unmarshal(data, &points); err == nil {
				return points, nil
			}
		}
	}

	url := fmt.Sprintf("%s/v1/klines/history?symbol=%s&resolution=1D&from=%d&to=%d",
		c.graphURL, pair, start.Unix(), end.Unix())
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Upstream(sourceName, "history", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	// TradingView-style column arrays: s == "no_data" is a valid empty
	// range, anything other than "ok" beyond that is an upstream error.
	var parsed struct {
		Status string    `json:"s"`
		T      []int64   `json:"t"`
		O      []float64 `json:"o"`
		H      []float64 `json:"h"`
		L      []float64 `json:"l"`
		C      []float64 `json:"c"`
		V      []float64 `json:"v"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, fmt.Errorf("malformed payload: %w", err))
	}

	if parsed.Status == "no_data" {
		return []domain.HistoryPoint{}, nil
	}
	if parsed.Status != "ok" {
		return nil, domain.Upstream(sourceName, "history", 0, fmt.Errorf("kline status %q", parsed.Status))
	}

	points := make([]domain.HistoryPoint, 0, len(parsed.T))
	for i, t := range parsed.T {
		if i >= len(parsed.C) || parsed.C[i] == 0 {
			continue
		}
		p := domain.HistoryPoint{
			Date:  time.Unix(t, 0).UTC().Truncate(24 * time.Hour),
			Close: parsed.C[i],
		}
		if i < len(parsed.O) {
			p.Open = parsed.O[i]
		}
		if i < len(parsed.H) {
			p.High = parsed.H[i]
		}
		if i < len(parsed.L) {
			p.Low = parsed.L[i]
		}
		if i < len(parsed.V) && parsed.V[i] > 0 {
			v := parsed.V[i]
			p.Volume = &v
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	c.store(key, points, cache.TTLHistory)
	return points, nil
}

func quoteCurrency(pair string) string {
	if strings.HasSuffix(pair, "USDT") {
		return "USD"
	}
	return "TRY"
}

func (c *Client) store(key string, v interface{}, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to marshal cache entry")
		return
	}
	c.cache.Set(key, data, ttl)
}
