// Package tefas provides a client for the TEFAS mutual fund platform.
// The history endpoint sits behind a WAF that rejects ranges longer than
// roughly ninety days and blocks bursts, so long-range requests are
// chunked with an inter-chunk delay and a block aborts further chunks
// while keeping the data already collected.
package tefas

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

const (
	defaultBaseURL = "https://www.tefas.gov.tr"
	sourceName     = "tefas"
	historyPath    = "/api/DB/BindHistoryInfo"
	comparisonPath = "/api/DB/BindComparisonFundReturns"
)

// Config holds the tunables that track upstream WAF behavior.
type Config struct {
	ChunkDays      int           // Maximum range per history sub-request
	ChunkDelay     time.Duration // Pause between chunks
	FuzzyThreshold float64       // Minimum accepted token-overlap score
	Timeout        time.Duration // Per-upstream-call timeout
}

// DefaultConfig mirrors the empirically safe upstream limits.
func DefaultConfig() Config {
	return Config{
		ChunkDays:      90,
		ChunkDelay:     500 * time.Millisecond,
		FuzzyThreshold: 0.35,
		Timeout:        20 * time.Second,
	}
}

// Client is the TEFAS API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
	cache      *cache.Cache
	cfg        Config

	// sleep is swapped out in tests to keep chunked fetches fast.
	sleep func(time.Duration)
}

// NewClient creates a new TEFAS client.
// cache is optional - if nil, caching is disabled.
func NewClient(c *cache.Cache, cfg Config, log zerolog.Logger) *Client {
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = 90
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = 0.35
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With().Str("client", sourceName).Logger(),
		cache:      c,
		cfg:        cfg,
		sleep:      time.Sleep,
	}
}

// historyRow mirrors one element of the BindHistoryInfo response.
type historyRow struct {
	Timestamp     string   `json:"TARIH"`
	FundCode      string   `json:"FONKODU"`
	FundName      string   `json:"FONUNVAN"`
	Price         float64  `json:"FIYAT"`
	Shares        float64  `json:"TEDPAYSAYISI"`
	InvestorCount int      `json:"KISISAYISI"`
	FundSize      float64  `json:"PORTFOYBUYUKLUK"`
}

type historyResponse struct {
	Data []historyRow `json:"data"`
}

// Detail describes a fund beyond its price: size, investor count, title.
type Detail struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	FundSize      float64   `json:"fund_size"`
	InvestorCount int       `json:"investor_count"`
	Date          time.Time `json:"date"`
}

// Current fetches the latest published price for a fund code (e.g. "AAK").
// TEFAS publishes once per business day, so the newest point inside the
// last week is the current price.
func (c *Client) Current(code string) (domain.Quote, error) {
	d, err := c.Detail(code)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Symbol:    d.Code,
		Last:      d.Price,
		Currency:  "TRY",
		Timestamp: d.Date,
	}, nil
}

// Detail fetches the latest record for a fund, including fund size and
// investor count. Returns domain.ErrNotAvailable for unknown codes.
func (c *Client) Detail(code string) (Detail, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Detail{}, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "detail", code)
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var d Detail
			if err := json.Unmarshal(data, &d); err == nil {
				c.log.Debug().Str("code", code).Msg("Detail cache hit")
				return d, nil
			}
		}
	}

	end := time.Now()
	rows, err := c.fetchChunk(code, end.AddDate(0, 0, -7), end)
	if err != nil {
		return Detail{}, err
	}
	if len(rows) == 0 {
		return Detail{}, fmt.Errorf("fund %s: %w", code, domain.ErrNotAvailable)
	}

	latest := rows[len(rows)-1]
	d := Detail{
		Code:          latest.FundCode,
		Name:          latest.FundName,
		Price:         latest.Price,
		FundSize:      latest.FundSize,
		InvestorCount: latest.InvestorCount,
		Date:          parseEpochMillis(latest.Timestamp),
	}

	c.store(key, d, cache.TTLFundInfo)
	return d, nil
}

// fetchChunk issues one BindHistoryInfo request for [start, end].
// A WAF block surfaces as errBlocked so the chunk loop can stop early;
// an empty data array is a valid "no data for this sub-range".
func (c *Client) fetchChunk(code string, start, end time.Time) ([]historyRow, error) {
	form := url.Values{
		"fontip":    {"YAT"},
		"fonkod":    {code},
		"bastarih":  {start.Format("02.01.2006")},
		"bittarih":  {end.Format("02.01.2006")},
		"fongrup":   {""},
		"kurucukod": {""},
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+historyPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.baseURL+"/TarihselVeriler.aspx")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, errBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.Upstream(sourceName, "history", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, err)
	}

	// The WAF answers 200 with an HTML challenge page instead of JSON.
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<") {
		return nil, errBlocked
	}

	var parsed historyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, fmt.Errorf("malformed payload: %w", err))
	}
	return parsed.Data, nil
}

// parseEpochMillis converts TEFAS's millisecond-epoch timestamp strings.
func parseEpochMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC().Truncate(24 * time.Hour)
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
