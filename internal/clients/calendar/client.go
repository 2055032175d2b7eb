// Package calendar provides a client for an economic calendar feed
// (release dates, forecasts and actuals for macro indicators).
package calendar

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

const (
	defaultBaseURL = "https://api.collectapi.com/economy"
	sourceName     = "calendar"
)

// Client fetches upcoming economic calendar events.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
	cache      *cache.Cache
}

// NewClient creates a new economic calendar client.
// apiKey may be empty for keyless mirrors; cache is optional.
// timeout bounds each upstream call; non-positive selects the default.
func NewClient(apiKey string, c *cache.Cache, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", sourceName).Logger(),
		cache:      c,
	}
}

// Upcoming returns at most limit future events, date ascending. Results
// are cached for an hour; the calendar does not change faster than that.
func (c *Client) Upcoming(limit int) ([]domain.CalendarEvent, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "upcoming")
	var events []domain.CalendarEvent

	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			if err := json.Unmarshal(data, &events); err == nil {
				c.log.Debug().Msg("Calendar cache hit")
				return truncate(events, limit), nil
			}
		}
	}

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/calendar", nil)
	if err != nil {
		return nil, domain.Upstream(sourceName, "upcoming", 0, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "apikey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Upstream(sourceName, "upcoming", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Upstream(sourceName, "upcoming", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var parsed struct {
		Result []struct {
			Date       string `json:"date"` // "2024-03-07 10:00"
			Country    string `json:"country"`
			Event      string `json:"event"`
			Importance string `json:"importance"`
			Actual     string `json:"actual"`
			Forecast   string `json:"forecast"`
			Previous   string `json:"previous"`
		} `json:"result"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.Upstream(sourceName, "upcoming", 0, fmt.Errorf("malformed payload: %w", err))
	}
	if !parsed.Success {
		return nil, domain.Upstream(sourceName, "upcoming", 0, fmt.Errorf("upstream reported failure"))
	}

	now := time.Now()
	for _, r := range parsed.Result {
		date, err := time.Parse("2006-01-02 15:04", r.Date)
		if err != nil {
			// Some rows carry a bare date.
			date, err = time.Parse("2006-01-02", r.Date)
			if err != nil {
				continue
			}
		}
		if date.Before(now) {
			continue
		}
		events = append(events, domain.CalendarEvent{
			Date:       date,
			Country:    r.Country,
			Title:      r.Event,
			Importance: r.Importance,
			Actual:     r.Actual,
			Forecast:   r.Forecast,
			Previous:   r.Previous,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })

	if c.cache != nil {
		if data, err := json.Marshal(events); err == nil {
			c.cache.Set(key, data, cache.TTLCalendar)
		}
	}
	return truncate(events, limit), nil
}

func truncate(events []domain.CalendarEvent, limit int) []domain.CalendarEvent {
	if len(events) > limit {
		return events[:limit]
	}
	return events
}
