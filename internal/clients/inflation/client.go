// Package inflation provides a client for Turkish CPI figures. The series
// backs both the index asset class and the metrics engine's
// inflation-adjusted return helper.
package inflation

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
	defaultBaseURL = "https://api.enflasyon.doviz.com"
	sourceName     = "inflation"
)

// Client fetches CPI index values and yearly inflation rates.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
	cache      *cache.Cache
}

// NewClient creates a new inflation client.
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

// seriesResponse mirrors the monthly CPI series payload.
type seriesResponse struct {
	Data []struct {
		Date   string  `json:"date"`   // "2024-01"
		Index  float64 `json:"index"`  // CPI index value
		Yearly float64 `json:"yearly"` // year-over-year percentage
	} `json:"data"`
	Error bool `json:"error"`
}

// Index fetches the monthly CPI index series over [start, end], ascending.
// An empty series is a valid "no data in range" result.
func (c *Client) Index(start, end time.Time) ([]domain.HistoryPoint, error) {
	if end.Before(start) {
		return nil, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "index", start.Format("2006-01"), end.Format("2006-01"))
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var points []domain.HistoryPoint
			if err := json.Unmarshal(data, &points); err == nil {
				c.log.Debug().Msg("CPI cache hit")
				return points, nil
			}
		}
	}

	url := fmt.Sprintf("%s/1/tufe/series?start=%s&end=%s",
		c.baseURL, start.Format("2006-01"), end.Format("2006-01"))
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, domain.Upstream(sourceName, "index", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Upstream(sourceName, "index", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var parsed seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.Upstream(sourceName, "index", 0, fmt.Errorf("malformed payload: %w", err))
	}
	if parsed.Error {
		return nil, domain.Upstream(sourceName, "index", 0, fmt.Errorf("upstream reported error"))
	}

	points := make([]domain.HistoryPoint, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		date, err := time.Parse("2006-01", strings.TrimSpace(d.Date))
		if err != nil || d.Index == 0 {
			continue
		}
		points = append(points, domain.HistoryPoint{Date: date, Close: d.Index})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	c.store(key, points, cache.TTLInflation)
	return points, nil
}

// YearlyRate fetches the latest year-over-year inflation as a ratio
// (0.65 = 65%).
func (c *Client) YearlyRate() (float64, error) {
	key := cache.Key(sourceName, "yearly")
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var rate float64
			if err := json.Unmarshal(data, &rate); err == nil {
				return rate, nil
			}
		}
	}

	end := time.Now()
	points, err := c.latestYearly(end.AddDate(-1, 0, 0), end)
	if err != nil {
		return 0, err
	}
	if points == 0 {
		return 0, domain.ErrNotAvailable
	}

	c.store(key, points, cache.TTLInflation)
	return points, nil
}

// latestYearly returns the most recent yearly percentage as a ratio.
func (c *Client) latestYearly(start, end time.Time) (float64, error) {
	url := fmt.Sprintf("%s/1/tufe/series?start=%s&end=%s",
		c.baseURL, start.Format("2006-01"), end.Format("2006-01"))
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return 0, domain.Upstream(sourceName, "yearly", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, domain.Upstream(sourceName, "yearly", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var parsed seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, domain.Upstream(sourceName, "yearly", 0, fmt.Errorf("malformed payload: %w", err))
	}

	for i := len(parsed.Data) - 1; i >= 0; i-- {
		if parsed.Data[i].Yearly != 0 {
			return parsed.Data[i].Yearly / 100, nil
		}
	}
	return 0, nil
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
