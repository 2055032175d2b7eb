package bigpara

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

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

// History fetches the daily OHLC series for a symbol over [start, end].
// The upstream page is HTML; parsing tries the structured table first and
// falls back to a regex scan over the raw text, since the site has shipped
// at least two different layouts for the same logical page. An empty
// series is a valid "no data in range" result.
func (c *Client) History(symbol string, start, end time.Time) ([]domain.HistoryPoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, domain.ErrInvalidParameter
	}
	if end.Before(start) {
		return nil, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "history", symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var points []domain.HistoryPoint
			if err := json.Unmarshal(data, &points); err == nil {
				c.log.Debug().Str("symbol", symbol).Msg("History cache hit")
				return points, nil
			}
		}
	}

	url := fmt.Sprintf("%s/borsa/gecmis-kapanislar/%s", c.baseURL, strings.ToLower(symbol))
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("symbol %s: %w", symbol, domain.ErrNotAvailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.Upstream(sourceName, "history", resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, err)
	}

	points, err := parseHistoryHTML(string(body))
	if err != nil {
		return nil, domain.Upstream(sourceName, "history", 0, err)
	}

	points = filterRange(points, start, end)
	c.store(key, points, cache.TTLHistory)
	return points, nil
}

// closingRowPattern is the fallback parser: "02.01.2024 ... 245,50 247,00 244,25 246,75"
// (date followed by at least four decimal-comma numbers on one line).
var closingRowPattern = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})\s+([\d.,]+)\s+([\d.,]+)\s+([\d.,]+)\s+([\d.,]+)`)

// parseHistoryHTML extracts (date, OHLC) rows from the closing-prices page.
func parseHistoryHTML(html string) ([]domain.HistoryPoint, error) {
	if points := parseHistoryTable(html); len(points) > 0 {
		return points, nil
	}

	// Fallback: regex over raw text for the older flat layout.
	var points []domain.HistoryPoint
	for _, m := range closingRowPattern.FindAllStringSubmatch(html, -1) {
		date, err := time.Parse("02.01.2006", m[1])
		if err != nil {
			continue
		}
		open := parseTurkishFloat(m[2])
		high := parseTurkishFloat(m[3])
		low := parseTurkishFloat(m[4])
		cls := parseTurkishFloat(m[5])
		if cls == 0 {
			continue
		}
		points = append(points, domain.HistoryPoint{Date: date, Open: open, High: high, Low: low, Close: cls})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("no recognizable history layout in page")
	}
	sortPoints(points)
	return points, nil
}

// parseHistoryTable handles the current structured layout: a table whose
// rows are "date, open, high, low, close" cells.
func parseHistoryTable(html string) []domain.HistoryPoint {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var points []domain.HistoryPoint
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		date, err := time.Parse("02.01.2006", strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil {
			return
		}
		cls := parseTurkishFloat(strings.TrimSpace(cells.Eq(4).Text()))
		if cls == 0 {
			return
		}
		points = append(points, domain.HistoryPoint{
			Date:  date,
			Open:  parseTurkishFloat(strings.TrimSpace(cells.Eq(1).Text())),
			High:  parseTurkishFloat(strings.TrimSpace(cells.Eq(2).Text())),
			Low:   parseTurkishFloat(strings.TrimSpace(cells.Eq(3).Text())),
			Close: cls,
		})
	})

	sortPoints(points)
	return points
}

// parseTurkishFloat converts "1.234,56" to 1234.56. Returns 0 on garbage.
func parseTurkishFloat(s string) float64 {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func sortPoints(points []domain.HistoryPoint) {
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
}

func filterRange(points []domain.HistoryPoint, start, end time.Time) []domain.HistoryPoint {
	out := make([]domain.HistoryPoint, 0, len(points))
	for _, p := range points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}
