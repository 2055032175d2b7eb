// Package bigpara provides a client for the Bigpara/Hurriyet market data
// endpoints covering BIST equities and indices. Quotes come from a JSON
// API; history pages are HTML and parsed defensively because the layout
// changes without notice.
package bigpara

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

const (
	defaultBaseURL = "https://bigpara.hurriyet.com.tr"
	sourceName     = "bigpara"
)

// Client is the Bigpara API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
	cache      *cache.Cache
}

// NewClient creates a new Bigpara client.
// cache is optional - if nil, caching is disabled.
// timeout bounds each upstream call; non-positive selects the default.
func NewClient(c *cache.Cache, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", sourceName).Logger(),
		cache:      c,
	}
}

// tickerResponse mirrors the hisse JSON endpoint payload. Only the fields
// the normalizer reads are declared.
type tickerResponse struct {
	Data struct {
		HisseYuzeysel struct {
			Sembol     string  `json:"sembol"`
			Son        float64 `json:"son"`
			Acilis     float64 `json:"acilis"`
			Yuksek     float64 `json:"yuksek"`
			Dusuk      float64 `json:"dusuk"`
			Alis       float64 `json:"alis"`
			Satis      float64 `json:"satis"`
			Hacim      float64 `json:"hacim"`
			Zaman      string  `json:"zaman"`
		} `json:"hisseYuzeysel"`
	} `json:"data"`
}

// Current fetches the latest quote for a BIST symbol (e.g. "THYAO").
// Returns domain.ErrNotAvailable when the exchange does not know the
// symbol, and an UpstreamError for transport or payload failures.
func (c *Client) Current(symbol string) (domain.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.Quote{}, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "current", symbol)
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var q domain.Quote
			if err := json.Unmarshal(data, &q); err == nil {
				c.log.Debug().Str("symbol", symbol).Msg("Quote cache hit")
				return q, nil
			}
		}
	}

	url := fmt.Sprintf("%s/api/v1/borsa/hisseyuzeysel/%s", c.baseURL, symbol)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return domain.Quote{}, domain.Upstream(sourceName, "current", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Quote{}, fmt.Errorf("symbol %s: %w", symbol, domain.ErrNotAvailable)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, domain.Upstream(sourceName, "current", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Quote{}, domain.Upstream(sourceName, "current", 0, err)
	}

	var parsed tickerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Quote{}, domain.Upstream(sourceName, "current", 0, fmt.Errorf("malformed payload: %w", err))
	}

	h := parsed.Data.HisseYuzeysel
	if h.Sembol == "" || h.Son == 0 {
		// The endpoint answers 200 with an empty record for unknown symbols.
		return domain.Quote{}, fmt.Errorf("symbol %s: %w", symbol, domain.ErrNotAvailable)
	}

	quote := domain.Quote{
		Symbol:    symbol,
		Last:      h.Son,
		Open:      h.Acilis,
		High:      h.Yuksek,
		Low:       h.Dusuk,
		Currency:  "TRY",
		Timestamp: time.Now(),
	}
	if h.Alis > 0 {
		quote.Bid = &h.Alis
	}
	if h.Satis > 0 {
		quote.Ask = &h.Satis
	}
	if h.Hacim > 0 {
		quote.Volume = &h.Hacim
	}

	c.store(key, quote, cache.TTLQuote)
	return quote, nil
}

// ListSymbols returns all BIST equity symbols. The list changes rarely and
// is cached with the long reference TTL.
func (c *Client) ListSymbols() ([]string, error) {
	key := cache.Key(sourceName, "symbols")
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var symbols []string
			if err := json.Unmarshal(data, &symbols); err == nil {
				return symbols, nil
			}
		}
	}

	url := c.baseURL + "/api/v1/borsa/hisse/sembolleri"
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, domain.Upstream(sourceName, "symbols", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Upstream(sourceName, "symbols", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var parsed struct {
		Data []struct {
			Sembol string `json:"sembol"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.Upstream(sourceName, "symbols", 0, fmt.Errorf("malformed payload: %w", err))
	}

	symbols := make([]string, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Sembol != "" {
			symbols = append(symbols, d.Sembol)
		}
	}

	c.store(key, symbols, cache.TTLReference)
	return symbols, nil
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
