package tefas

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

func newTestClient(t *testing.T, c *cache.Cache, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(c, Config{ChunkDays: 90, FuzzyThreshold: 0.35}, zerolog.Nop())
	client.baseURL = srv.URL
	client.sleep = func(time.Duration) {}
	return client
}

func TestNewClientConfigDefaults(t *testing.T) {
	client := NewClient(nil, Config{}, zerolog.Nop())
	assert.Equal(t, 90, client.cfg.ChunkDays)
	assert.Equal(t, 0.35, client.cfg.FuzzyThreshold)
	assert.Equal(t, 20*time.Second, client.httpClient.Timeout)

	client = NewClient(nil, Config{Timeout: 5 * time.Second}, zerolog.Nop())
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
}

func millis(y int, m time.Month, d int) string {
	return strconv.FormatInt(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).UnixMilli(), 10)
}

func rowJSON(ts, code string, price float64) string {
	return fmt.Sprintf(`{"TARIH":"%s","FONKODU":"%s","FONUNVAN":"Test Fonu","FIYAT":%f,"TEDPAYSAYISI":1000,"KISISAYISI":42,"PORTFOYBUYUKLUK":5000000}`, ts, code, price)
}

func TestHistorySingleChunk(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "YAT", r.FormValue("fontip"))
		assert.Equal(t, "AAK", r.FormValue("fonkod"))

		// Rows arrive unordered and include a zero-price row to skip.
		fmt.Fprintf(w, `{"data":[%s,%s,%s]}`,
			rowJSON(millis(2024, 1, 3), "AAK", 1.30),
			rowJSON(millis(2024, 1, 2), "AAK", 1.25),
			rowJSON(millis(2024, 1, 4), "AAK", 0))
	})
	client := newTestClient(t, nil, handler)

	points, err := client.History("AAK",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, points, 2)
	assert.Equal(t, 1.25, points[0].Close)
	assert.Equal(t, 1.30, points[1].Close)
	assert.True(t, points[0].Date.Before(points[1].Date))
	require.NotNil(t, points[0].FundSize)
	assert.Equal(t, 5000000.0, *points[0].FundSize)
	require.NotNil(t, points[0].InvestorCount)
	assert.Equal(t, 42, *points[0].InvestorCount)
}

func TestHistorySplitsLongRangesIntoChunks(t *testing.T) {
	var requests int
	var ranges []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.NoError(t, r.ParseForm())
		ranges = append(ranges, r.FormValue("bastarih")+" "+r.FormValue("bittarih"))
		fmt.Fprintf(w, `{"data":[%s]}`, rowJSON(millis(2024, 1, requests), "AAK", float64(requests)))
	})
	client := newTestClient(t, nil, handler)

	// 200 days at 90 days per chunk needs 3 requests.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 199)
	points, err := client.History("AAK", start, end)
	require.NoError(t, err)

	assert.Equal(t, 3, requests)
	assert.Len(t, points, 3)

	// Chunks are chronological and contiguous.
	assert.Equal(t, "01.01.2024 30.03.2024", ranges[0])
	assert.Equal(t, "31.03.2024 28.06.2024", ranges[1])
	assert.Equal(t, "29.06.2024 18.07.2024", ranges[2])
}

func TestHistoryDuplicateDatesLastChunkWins(t *testing.T) {
	var requests int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Both chunks report the same date with different prices.
		fmt.Fprintf(w, `{"data":[%s]}`, rowJSON(millis(2024, 2, 1), "AAK", float64(requests)))
	})
	client := newTestClient(t, nil, handler)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points, err := client.History("AAK", start, start.AddDate(0, 0, 100))
	require.NoError(t, err)

	require.Equal(t, 2, requests)
	require.Len(t, points, 1)
	assert.Equal(t, 2.0, points[0].Close)
}

func TestHistoryBlockedChunkReturnsPartial(t *testing.T) {
	var requests int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 2 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprintf(w, `{"data":[%s]}`, rowJSON(millis(2024, 1, 15), "AAK", 1.10))
	})
	c := cache.New()
	client := newTestClient(t, c, handler)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 200)
	points, err := client.History("AAK", start, end)
	require.NoError(t, err)

	// First chunk survived, remaining chunks were not attempted.
	assert.Equal(t, 2, requests)
	require.Len(t, points, 1)
	assert.Equal(t, 1.10, points[0].Close)

	// Partial results are not cached; the next call retries the full
	// range (three chunks this time, none blocked).
	_, err = client.History("AAK", start, end)
	require.NoError(t, err)
	assert.Equal(t, 5, requests)
}

func TestHistoryHTMLChallengeIsABlock(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Access Denied</body></html>")
	})
	client := newTestClient(t, nil, handler)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points, err := client.History("AAK", start, start.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestHistoryReversedRange(t *testing.T) {
	client := newTestClient(t, nil, http.NotFoundHandler())

	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.History("AAK", end.AddDate(0, 0, 10), end)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestHistoryCacheHitSkipsUpstream(t *testing.T) {
	var requests int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprintf(w, `{"data":[%s]}`, rowJSON(millis(2024, 1, 2), "AAK", 1.25))
	})
	client := newTestClient(t, cache.New(), handler)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 10)
	_, err := client.History("AAK", start, end)
	require.NoError(t, err)
	_, err = client.History("AAK", start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, requests)
}

func TestNumChunks(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, numChunks(start, start, 90))
	assert.Equal(t, 1, numChunks(start, start.AddDate(0, 0, 89), 90))
	assert.Equal(t, 2, numChunks(start, start.AddDate(0, 0, 90), 90))
	assert.Equal(t, 3, numChunks(start, start.AddDate(0, 0, 199), 90))
}

func TestCurrentUsesLatestDetailRow(t *testing.T) {
	now := time.Now().UTC()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[%s,%s]}`,
			rowJSON(strconv.FormatInt(now.AddDate(0, 0, -2).UnixMilli(), 10), "AAK", 1.20),
			rowJSON(strconv.FormatInt(now.AddDate(0, 0, -1).UnixMilli(), 10), "AAK", 1.22))
	})
	client := newTestClient(t, nil, handler)

	quote, err := client.Current("aak")
	require.NoError(t, err)
	assert.Equal(t, "AAK", quote.Symbol)
	assert.Equal(t, 1.22, quote.Last)
	assert.Equal(t, "TRY", quote.Currency)
}

func TestDetailUnknownFund(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	client := newTestClient(t, nil, handler)

	_, err := client.Detail("ZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
}
