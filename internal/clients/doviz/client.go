// Package doviz provides a client for the doviz.com FX and commodity
// endpoints. The data API wants a bearer token that the public site embeds
// in its pages; the client scrapes and caches that token with its own
// expiry, and falls back to a last-known-good token when scraping fails so
// a token problem never aborts a data fetch by itself.
package doviz

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

const (
	defaultBaseURL  = "https://api.doviz.com"
	defaultTokenURL = "https://www.doviz.com"
	sourceName      = "doviz"
	tokenTTL        = 30 * time.Minute

	// Last-known-good token shipped as the fallback: if scraping the
	// public page fails we still attempt the fetch with this one and let
	// the HTTP layer surface the real error if it is also stale.
	fallbackToken = "7d1ff9e5c9b4a0e2b5fd3a8c61b0f4de"
)

// tokenPattern matches the API token embedded in the public page source.
var tokenPattern = regexp.MustCompile(`window\.sdata\s*=\s*\{[^}]*"token"\s*:\s*"([a-f0-9]{32})"`)

// Client is the doviz.com API client.
type Client struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	log        zerolog.Logger
	cache      *cache.Cache

	// Auth token state, separate from the data cache. Refresh runs under
	// a single-writer assumption; a benign double refresh yields two
	// valid tokens.
	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new doviz.com client.
// cache is optional - if nil, caching is disabled.
// timeout bounds each upstream call; non-positive selects the default.
func NewClient(c *cache.Cache, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    defaultBaseURL,
		tokenURL:   defaultTokenURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", sourceName).Logger(),
		cache:      c,
	}
}

// currentToken returns the cached token, re-deriving it from the public
// page when expired. Derivation failure falls back to the hardcoded token
// rather than failing the caller's fetch.
func (c *Client) currentToken() string {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token
	}

	token, err := c.scrapeToken()
	if err != nil {
		c.log.Warn().Err(err).Msg("Token refresh failed, using fallback token")
		if c.token != "" {
			return c.token // keep the previous one, it may still work
		}
		return fallbackToken
	}

	c.token = token
	c.tokenExpiry = time.Now().Add(tokenTTL)
	c.log.Debug().Msg("Refreshed API token")
	return token
}

// scrapeToken pulls the embedded token out of the public page source.
func (c *Client) scrapeToken() (string, error) {
	resp, err := c.httpClient.Get(c.tokenURL)
	if err != nil {
		return "", fmt.Errorf("token page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token page: %w", err)
	}

	m := tokenPattern.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no token in page source")
	}
	return string(m[1]), nil
}

// assetPath maps a user-facing pair to the API asset path. Currencies use
// their ISO code; a few commodity shorthands are translated.
func assetPath(pair string) string {
	switch strings.ToUpper(pair) {
	case "GOLD", "GRAM-ALTIN":
		return "assets/gram-altin/daily"
	case "SILVER", "GUMUS":
		return "assets/gumus/daily"
	default:
		return fmt.Sprintf("currencies/%s/daily", strings.ToUpper(pair))
	}
}

// Current fetches the latest rate for a currency or commodity against TRY
// (e.g. "USD", "EUR", "GOLD"). The returned quote's Last is the selling
// rate, with bid/ask populated from buying/selling.
func (c *Client) Current(pair string) (domain.Quote, error) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if pair == "" {
		return domain.Quote{}, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "current", pair)
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var q domain.Quote
			if err := json.Unmarshal(data, &q); err == nil {
				c.log.Debug().Str("pair", pair).Msg("Rate cache hit")
				return q, nil
			}
		}
	}

	var parsed struct {
		Data struct {
			Selling    float64 `json:"selling"`
			Buying     float64 `json:"buying"`
			Highest    float64 `json:"highest"`
			Lowest     float64 `json:"lowest"`
			UpdateDate int64   `json:"update_date"`
		} `json:"data"`
		Error bool `json:"error"`
	}
	if err := c.getJSON(fmt.Sprintf("%s/1/%s/latest", c.baseURL, assetPath(pair)), "current", &parsed); err != nil {
		return domain.Quote{}, err
	}

	if parsed.Error || parsed.Data.Selling == 0 {
		return domain.Quote{}, fmt.Errorf("pair %s: %w", pair, domain.ErrNotAvailable)
	}

	ts := time.Now()
	if parsed.Data.UpdateDate > 0 {
		ts = time.Unix(parsed.Data.UpdateDate, 0)
	}
	quote := domain.Quote{
		Symbol:    pair,
		Last:      parsed.Data.Selling,
		High:      parsed.Data.Highest,
		Low:       parsed.Data.Lowest,
		Currency:  "TRY",
		Timestamp: ts,
	}
	if parsed.Data.Buying > 0 {
		quote.Bid = &parsed.Data.Buying
	}
	if parsed.Data.Selling > 0 {
		ask := parsed.Data.Selling
		quote.Ask = &ask
	}

	c.store(key, quote, cache.TTLFXRate)
	return quote, nil
}

// History fetches the daily closing series for a pair over [start, end].
func (c *Client) History(pair string, start, end time.Time) ([]domain.HistoryPoint, error) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
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

	url := fmt.Sprintf("%s/1/%s/archive?start=%d&end=%d",
		c.baseURL, assetPath(pair), start.Unix(), end.Unix())

	var parsed struct {
		Data []struct {
			Selling    float64 `json:"selling"`
			Highest    float64 `json:"highest"`
			Lowest     float64 `json:"lowest"`
			UpdateDate int64   `json:"update_date"`
		} `json:"data"`
		Error bool `json:"error"`
	}
	if err := c.getJSON(url, "history", &parsed); err != nil {
		return nil, err
	}
	if parsed.Error {
		return nil, fmt.Errorf("pair %s: %w", pair, domain.ErrNotAvailable)
	}

	points := make([]domain.HistoryPoint, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Selling == 0 || d.UpdateDate == 0 {
			continue
		}
		points = append(points, domain.HistoryPoint{
			Date:  time.Unix(d.UpdateDate, 0).UTC().Truncate(24 * time.Hour),
			High:  d.Highest,
			Low:   d.Lowest,
			Close: d.Selling,
		})
	}

	c.store(key, points, cache.TTLHistory)
	return points, nil
}

// getJSON performs an authorized GET and decodes the JSON response.
func (c *Client) getJSON(url, op string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return domain.Upstream(sourceName, op, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.currentToken())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Upstream(sourceName, op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// The token we used is dead. Drop it so the next call re-derives.
		c.tokenMu.Lock()
		c.token = ""
		c.tokenExpiry = time.Time{}
		c.tokenMu.Unlock()
		return domain.Upstream(sourceName, op, resp.StatusCode, fmt.Errorf("authorization rejected"))
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Upstream(sourceName, op, resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Upstream(sourceName, op, 0, fmt.Errorf("malformed payload: %w", err))
	}
	return nil
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
