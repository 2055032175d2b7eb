package tefas

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/domain"
)

// errBlocked marks a chunk response that is a WAF block rather than data.
// It stops the chunk loop; remaining chunks would only trigger the same
// block.
var errBlocked = errors.New("tefas: request blocked")

// History fetches the daily price series for a fund over [start, end].
//
// Ranges longer than the configured chunk window are split into
// chronological sub-requests of at most ChunkDays each, merged ascending
// and de-duplicated by date (a later chunk wins on overlap). A blocked
// chunk returns the partial data collected so far; an empty sub-range does
// not abort the remaining chunks.
func (c *Client) History(code string, start, end time.Time) ([]domain.HistoryPoint, error) {
	if end.Before(start) {
		return nil, domain.ErrInvalidParameter
	}

	key := cache.Key(sourceName, "history", code, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			var points []domain.HistoryPoint
			if err := json.Unmarshal(data, &points); err == nil {
				c.log.Debug().Str("code", code).Msg("History cache hit")
				return points, nil
			}
		}
	}

	byDate := make(map[string]domain.HistoryPoint)
	chunk := time.Duration(c.cfg.ChunkDays) * 24 * time.Hour
	blocked := false

	for chunkStart := start; !chunkStart.After(end); {
		chunkEnd := chunkStart.Add(chunk - 24*time.Hour)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		rows, err := c.fetchChunk(code, chunkStart, chunkEnd)
		switch {
		case errors.Is(err, errBlocked):
			c.log.Warn().
				Str("code", code).
				Time("chunk_start", chunkStart).
				Time("chunk_end", chunkEnd).
				Msg("Chunk blocked by upstream, returning partial history")
			blocked = true
		case err != nil:
			return nil, err
		default:
			for _, row := range rows {
				date := parseEpochMillis(row.Timestamp)
				if date.IsZero() || row.Price == 0 {
					continue
				}
				p := domain.HistoryPoint{Date: date, Close: row.Price}
				if row.FundSize > 0 {
					size := row.FundSize
					p.FundSize = &size
				}
				if row.InvestorCount > 0 {
					count := row.InvestorCount
					p.InvestorCount = &count
				}
				byDate[date.Format("2006-01-02")] = p
			}
		}

		if blocked {
			break
		}

		chunkStart = chunkEnd.Add(24 * time.Hour)
		if chunkStart.After(end) {
			break
		}
		// Pause between chunks so the burst itself does not trip the WAF.
		if c.cfg.ChunkDelay > 0 {
			c.sleep(c.cfg.ChunkDelay)
		}
	}

	points := make([]domain.HistoryPoint, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	// Partial results from a blocked fetch are not cached; the next call
	// should retry the full range.
	if !blocked {
		c.store(key, points, cache.TTLHistory)
	}
	return points, nil
}

// numChunks returns how many sub-requests a range needs: ceil(days/chunk).
func numChunks(start, end time.Time, chunkDays int) int {
	days := int(end.Sub(start).Hours()/24) + 1
	if days <= 0 {
		return 0
	}
	n := days / chunkDays
	if days%chunkDays != 0 {
		n++
	}
	return n
}
