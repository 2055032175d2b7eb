// Package bonds scrapes Turkish government bond yields. There is no
// public JSON endpoint for these, so parsing tolerates the two page
// layouts the source has shipped: a structured yields table and an older
// flat-text layout handled by regex.
package bonds

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

const (
	defaultBaseURL = "https://www.doviz.com/tahvil"
	sourceName     = "bonds"
)

// Yield is the annual yield of one government bond maturity.
type Yield struct {
	Name     string  `json:"name"`     // e.g. "10 Yillik Tahvil"
	Maturity int     `json:"maturity"` // maturity in years
	Rate     float64 `json:"rate"`     // annual yield as a ratio (0.27 = 27%)
}

// Client scrapes the bond yields page.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
	cache      *cache.Cache
}

// NewClient creates a new bond yields client.
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

// maturityPattern extracts the maturity from names like "10 Yıllık Tahvil".
var maturityPattern = regexp.MustCompile(`(\d+)\s*[Yy][ıi]ll[ıi]k`)

// flatYieldPattern is the regex fallback for the older flat layout:
// "10 Yıllık ... %27,45" on a single line.
var flatYieldPattern = regexp.MustCompile(`(\d+)\s*[Yy][ıi]ll[ıi]k[^%]{0,80}%\s*([\d.,]+)`)

// Yields fetches all published maturities, sorted by maturity ascending.
func (c *Client) Yields() ([]Yield, error) {
	key := cache.Key(sourceName, "yields")
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var yields []Yield
			if err := json.Unmarshal(data, &yields); err == nil {
				c.log.Debug().Msg("Yields cache hit")
				return yields, nil
			}
		}
	}

	resp, err := c.httpClient.Get(c.baseURL)
	if err != nil {
		return nil, domain.Upstream(sourceName, "yields", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Upstream(sourceName, "yields", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Upstream(sourceName, "yields", 0, err)
	}

	yields := parseYieldTable(string(body))
	if len(yields) == 0 {
		yields = parseYieldText(string(body))
	}
	if len(yields) == 0 {
		return nil, domain.Upstream(sourceName, "yields", 0, fmt.Errorf("no recognizable yields layout in page"))
	}

	sort.Slice(yields, func(i, j int) bool { return yields[i].Maturity < yields[j].Maturity })
	c.store(key, yields, cache.TTLYield)
	return yields, nil
}

// LongTermYield returns the longest-maturity yield, used as the default
// risk-free rate by the metrics engine.
func (c *Client) LongTermYield() (float64, error) {
	yields, err := c.Yields()
	if err != nil {
		return 0, err
	}
	if len(yields) == 0 {
		return 0, domain.ErrNotAvailable
	}
	return yields[len(yields)-1].Rate, nil
}

// parseYieldTable handles the structured layout: one row per maturity
// with the yield in the second cell.
func parseYieldTable(html string) []Yield {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var yields []Yield
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		m := maturityPattern.FindStringSubmatch(name)
		if m == nil {
			return
		}
		maturity, _ := strconv.Atoi(m[1])
		rate := parsePercent(cells.Eq(1).Text())
		if rate == 0 {
			return
		}
		yields = append(yields, Yield{Name: name, Maturity: maturity, Rate: rate})
	})
	return yields
}

// parseYieldText is the regex fallback over raw page text.
func parseYieldText(html string) []Yield {
	var yields []Yield
	seen := map[int]bool{}
	for _, m := range flatYieldPattern.FindAllStringSubmatch(html, -1) {
		maturity, _ := strconv.Atoi(m[1])
		if maturity == 0 || seen[maturity] {
			continue
		}
		rate := parsePercent(m[2])
		if rate == 0 {
			continue
		}
		seen[maturity] = true
		yields = append(yields, Yield{
			Name:     fmt.Sprintf("%d Yillik Tahvil", maturity),
			Maturity: maturity,
			Rate:     rate,
		})
	}
	return yields
}

// parsePercent converts "%27,45" or "27,45" to the ratio 0.2745.
func parsePercent(s string) float64 {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "%"))
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f / 100
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
