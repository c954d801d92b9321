// Package pagination turns a single-page Data API client into a
// full-dataset fetcher: it walks the cursor space sequentially or in
// parallel rounds and reassembles the pages in cursor order, either
// into memory or streamed batch by batch into a sink.
package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/avachon/bubble-data-client/pkg/bubble"
	"github.com/avachon/bubble-data-client/pkg/query"
)

// Prometheus metrics for full-fetch throughput.
var (
	bubblePagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bubble_fetch_pages_total",
		Help: "Total pages fetched by full-fetch runs",
	})

	bubbleRecordsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bubble_fetch_records_total",
		Help: "Total records delivered by full-fetch runs",
	})
)

// Config holds fetcher configuration.
type Config struct {
	// MaxConcurrency is the number of parallel page requests. Zero or
	// one fetches sequentially, which also avoids the extra count
	// probe the parallel plan needs.
	MaxConcurrency int

	// Timeout bounds each page fetch.
	Timeout time.Duration
}

// DefaultConfig returns a sequential fetcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 0,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher fetches a single page. *bubble.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, typeName string, q query.Query) (bubble.Page, error)
}

// Sink receives batches of records in cursor order. The export
// package provides durable implementations.
type Sink interface {
	WriteBatch(ctx context.Context, records []bubble.Record) error
}

// Fetcher orchestrates multi-page fetches.
type Fetcher struct {
	fetcher PageFetcher
	config  Config
}

// New creates a fetcher.
func New(fetcher PageFetcher, config Config) *Fetcher {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Fetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll retrieves every record matching q into memory.
func (f *Fetcher) FetchAll(ctx context.Context, typeName string, q query.Query) ([]bubble.Record, error) {
	var records []bubble.Record
	err := f.run(ctx, typeName, q, func(batch []bubble.Record) error {
		records = append(records, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FetchTo streams every record matching q into sink, batch by batch in
// cursor order, and returns the number of records delivered. The sink
// is not closed; its lifecycle belongs to the caller.
func (f *Fetcher) FetchTo(ctx context.Context, typeName string, q query.Query, sink Sink) (int, error) {
	delivered := 0
	err := f.run(ctx, typeName, q, func(batch []bubble.Record) error {
		if err := sink.WriteBatch(ctx, batch); err != nil {
			return fmt.Errorf("write batch to sink: %w", err)
		}
		delivered += len(batch)
		return nil
	})
	return delivered, err
}

// run fetches all pages and hands each page's records to deliver, in
// cursor order.
func (f *Fetcher) run(ctx context.Context, typeName string, q query.Query, deliver func([]bubble.Record) error) error {
	if err := q.Validate(); err != nil {
		return err
	}
	counted := func(batch []bubble.Record) error {
		if err := deliver(batch); err != nil {
			return err
		}
		bubbleRecordsFetched.Add(float64(len(batch)))
		return nil
	}
	if f.config.MaxConcurrency > 1 {
		return f.runParallel(ctx, typeName, q, counted)
	}
	return f.runSequential(ctx, typeName, q, counted)
}

// runSequential walks cursor += count until nothing remains.
func (f *Fetcher) runSequential(ctx context.Context, typeName string, q query.Query, deliver func([]bubble.Record) error) error {
	start := time.Now()
	cursor := q.Cursor
	pages := 0

	for {
		page, err := f.fetchPage(ctx, typeName, q.WithCursor(cursor))
		if err != nil {
			return fmt.Errorf("fetch page at cursor %d: %w", cursor, err)
		}
		pages++

		if len(page.Results) > 0 {
			if err := deliver(page.Results); err != nil {
				return err
			}
		}

		if page.Remaining == 0 || page.Count == 0 {
			break
		}
		cursor = page.Cursor + page.Count
	}

	log.Info().
		Str("type", typeName).
		Int("pages", pages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
	return nil
}

// runParallel counts first, derives the cursor grid, then fetches in
// rounds of MaxConcurrency pages. Delivery stays in cursor order, so
// memory is bounded by one round of pages.
func (f *Fetcher) runParallel(ctx context.Context, typeName string, q query.Query, deliver func([]bubble.Record) error) error {
	start := time.Now()
	limit := q.EffectiveLimit()
	workers := f.config.MaxConcurrency

	// The probe needs the exact remaining count.
	probe := q.WithCursor(q.Cursor)
	probe.Limit = 1
	probe.ExcludeRemaining = false
	first, err := f.fetchPage(ctx, typeName, probe)
	if err != nil {
		return fmt.Errorf("count probe: %w", err)
	}

	total := first.Count + first.Remaining
	totalPages := (total + limit - 1) / limit
	if total == 0 {
		log.Info().
			Str("type", typeName).
			Msg("Fetch complete (no matching records)")
		return nil
	}

	log.Info().
		Str("type", typeName).
		Int("records", total).
		Int("total_pages", totalPages).
		Int("workers", workers).
		Msg("Starting parallel page fetch")

	fetchedPages := 0
	for round := 0; round < totalPages; round += workers {
		n := workers
		if rest := totalPages - round; rest < n {
			n = rest
		}

		results := make([][]bubble.Record, n)
		errs := make([]error, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				pageQuery := q.WithCursor(q.Cursor + (round+i)*limit)
				page, err := f.fetchPage(ctx, typeName, pageQuery)
				if err != nil {
					errs[i] = err
					return
				}
				results[i] = page.Results
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			if errs[i] != nil {
				log.Warn().
					Err(errs[i]).
					Int("fetched_pages", fetchedPages).
					Int("total_pages", totalPages).
					Msg("Page fetch failed - aborting with partial progress")
				return fmt.Errorf("fetch page %d/%d: %w", round+i+1, totalPages, errs[i])
			}
			// A page can come back short or empty when records were
			// deleted between the probe and the fetch.
			if len(results[i]) > 0 {
				if err := deliver(results[i]); err != nil {
					return err
				}
			}
			fetchedPages++

			if fetchedPages%50 == 0 {
				log.Info().
					Int("fetched", fetchedPages).
					Int("total", totalPages).
					Float64("progress_pct", float64(fetchedPages)/float64(totalPages)*100).
					Msg("Fetch progress")
			}
		}
	}

	log.Info().
		Str("type", typeName).
		Int("pages", fetchedPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
	return nil
}

// fetchPage applies the per-page timeout.
func (f *Fetcher) fetchPage(ctx context.Context, typeName string, q query.Query) (bubble.Page, error) {
	pageCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()
	page, err := f.fetcher.FetchPage(pageCtx, typeName, q)
	if err == nil {
		bubblePagesFetched.Inc()
	}
	return page, err
}
