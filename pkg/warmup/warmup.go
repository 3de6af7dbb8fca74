// Package warmup primes the response cache by replaying a list of resource
// group paths through the serving handler chain at startup.
package warmup

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/anupambasak/webutilities/pkg/respcache"
)

// requestsTotal counts warmup requests by result.
var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webutil_warmup_requests_total",
		Help: "Total number of cache warmup requests by result",
	},
	[]string{"result"}, // primed, cached, failed
)

// Config holds warmer configuration.
type Config struct {
	// Concurrency is the number of parallel workers.
	Concurrency int

	// Timeout bounds a single request.
	Timeout time.Duration
}

// DefaultConfig returns four workers with a ten second timeout.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Result is the outcome of one warmup request.
type Result struct {
	Path    string
	Status  int
	Outcome respcache.Outcome
	Err     error
}

// Report summarizes a warmup run.
type Report struct {
	// Primed counts responses that were added to the cache.
	Primed int

	// Cached counts responses that were already in the cache.
	Cached int

	// Failed counts requests that errored or did not return 200.
	Failed int

	Results []Result
}

// Warmer replays paths through a handler.
type Warmer struct {
	handler http.Handler
	config  Config
	logger  zerolog.Logger
}

// New creates a warmer that sends requests to handler, normally the response
// cache middleware wrapping the combiner.
func New(handler http.Handler, config Config, logger zerolog.Logger) *Warmer {
	if handler == nil {
		panic("warmup handler cannot be nil")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Warmer{handler: handler, config: config, logger: logger}
}

// Run requests every path once. Individual failures are recorded in the
// report; an error is returned only when ctx ends before all paths ran.
func (w *Warmer) Run(ctx context.Context, paths []string) (Report, error) {
	start := time.Now()
	if len(paths) == 0 {
		return Report{}, nil
	}

	queue := make(chan int, len(paths))
	for i := range paths {
		queue <- i
	}
	close(queue)

	results := make([]Result, len(paths))
	workers := min(w.config.Concurrency, len(paths))

	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range queue {
				if ctx.Err() != nil {
					w.logger.Debug().Int("worker_id", workerID).Msg("Warmup worker stopping (context cancelled)")
					return
				}
				results[i] = w.fetch(ctx, paths[i])
			}
		}(id)
	}
	wg.Wait()

	report := Report{Results: results}
	done := 0
	for _, res := range results {
		if res.Path == "" {
			continue
		}
		done++
		switch {
		case res.Err != nil || res.Status != http.StatusOK:
			report.Failed++
			requestsTotal.WithLabelValues("failed").Inc()
		case res.Outcome == respcache.OutcomeFound:
			report.Cached++
			requestsTotal.WithLabelValues("cached").Inc()
		default:
			report.Primed++
			requestsTotal.WithLabelValues("primed").Inc()
		}
	}

	w.logger.Info().
		Int("paths", len(paths)).
		Int("primed", report.Primed).
		Int("cached", report.Cached).
		Int("failed", report.Failed).
		Dur("duration", time.Since(start)).
		Msg("Cache warmup complete")

	if done < len(paths) {
		return report, fmt.Errorf("warmup interrupted after %d/%d paths: %w", done, len(paths), ctx.Err())
	}
	return report, nil
}

// fetch runs a single GET through the handler and discards the body.
func (w *Warmer) fetch(ctx context.Context, path string) Result {
	reqCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	res := Result{Path: path}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, path, nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}
	req.Header.Set("User-Agent", "webutil-warmup")

	rec := respcache.NewRecorder(0)
	w.handler.ServeHTTP(rec, req)

	res.Status = rec.StatusCode()
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	res.Outcome = respcache.Outcome(rec.Header().Get(respcache.HeaderOutcome))
	if res.Status != http.StatusOK {
		w.logger.Warn().Str("path", path).Int("status_code", res.Status).Msg("Warmup request failed")
	}
	return res
}
