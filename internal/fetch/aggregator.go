// Package fetch implements the parallel quote aggregator: given a
// heterogeneous set of holdings it resolves one concurrent lookup per
// distinct symbol through the asset facade, bounded by a reusable worker
// pool, and collects a per-symbol result map that tolerates partial
// failure.
package fetch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/domain"
)

// Quoter is the slice of the asset facade the aggregator needs.
type Quoter interface {
	Current(symbol string, assetType domain.AssetType) (domain.Quote, error)
}

// Request identifies one symbol to resolve.
type Request struct {
	Symbol string
	Type   domain.AssetType
}

// Result is a quote or the reason its fetch failed. A failed symbol never
// blocks or aborts the rest of the batch.
type Result struct {
	Quote domain.Quote
	Err   error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Aggregator fans requests out over a bounded worker pool and fans results
// back in keyed by symbol.
type Aggregator struct {
	quoter  Quoter
	workers int
	log     zerolog.Logger
}

// New creates an aggregator with the given pool size.
func New(quoter Quoter, workers int, log zerolog.Logger) *Aggregator {
	if workers < 1 {
		workers = 1
	}
	return &Aggregator{
		quoter:  quoter,
		workers: workers,
		log:     log.With().Str("component", "fetch").Logger(),
	}
}

// Fetch resolves current quotes for every distinct symbol in requests.
// Duplicates are collapsed before dispatch; the result map holds exactly
// one entry per distinct requested symbol and nothing else.
//
// If ctx is canceled, collection stops and the partial map is returned
// with ctx.Err(); in-flight worker fetches run to completion but their
// results are discarded (cache writes they perform are normal side
// effects).
func (a *Aggregator) Fetch(ctx context.Context, requests []Request) (map[string]Result, error) {
	distinct := make([]Request, 0, len(requests))
	seen := make(map[string]bool, len(requests))
	for _, r := range requests {
		if r.Symbol == "" || seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true
		distinct = append(distinct, r)
	}

	results := make(map[string]Result, len(distinct))
	if len(distinct) == 0 {
		return results, nil
	}

	type keyed struct {
		symbol string
		result Result
	}

	jobs := make(chan Request)
	out := make(chan keyed, len(distinct))

	var wg sync.WaitGroup
	workers := a.workers
	if workers > len(distinct) {
		workers = len(distinct)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				quote, err := a.quoter.Current(req.Symbol, req.Type)
				if err != nil {
					a.log.Debug().
						Err(err).
						Str("symbol", req.Symbol).
						Str("type", string(req.Type)).
						Msg("Quote fetch failed")
				}
				out <- keyed{symbol: req.Symbol, result: Result{Quote: quote, Err: err}}
			}
		}()
	}

	// Feed jobs without blocking forever on a canceled caller.
	go func() {
		defer close(jobs)
		for _, req := range distinct {
			select {
			case jobs <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close out once all workers drained.
	go func() {
		wg.Wait()
		close(out)
	}()

	collected := 0
	for collected < len(distinct) {
		select {
		case k, ok := <-out:
			if !ok {
				return results, nil
			}
			results[k.symbol] = k.result
			collected++
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
	return results, nil
}
