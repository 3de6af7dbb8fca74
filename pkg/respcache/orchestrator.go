// Package respcache is the response cache middleware placed in front of the
// combining handler.
//
// For every in-scope GET or HEAD request it answers conditional requests
// from resource metadata alone, replays a stored response when none of the
// resources it was built from changed, and otherwise runs the wrapped
// handler, forwards its response and stores it when it is cacheable.
//
// The outcome is reported in the X-ResponseCacheFilter header:
//
//   - FOUND: replayed from the store
//   - ADDED: computed and stored
//   - NOT_FOUND: computed, not stored because the status was not 200
//   - SKIPPED: not handled by the cache, answered with 304, or declined
//     for storage (content type, control signal, HEAD, size limit)
package respcache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/sync/singleflight"

	"github.com/anupambasak/webutilities/pkg/cache"
	"github.com/anupambasak/webutilities/pkg/fingerprint"
	"github.com/anupambasak/webutilities/pkg/freshness"
	"github.com/anupambasak/webutilities/pkg/group"
	"github.com/anupambasak/webutilities/pkg/merge"
	"github.com/anupambasak/webutilities/pkg/resetclock"
)

// HeaderOutcome carries the cache outcome of a request.
const HeaderOutcome = "X-ResponseCacheFilter"

// Outcome is the value of HeaderOutcome.
type Outcome string

const (
	OutcomeFound    Outcome = "FOUND"
	OutcomeNotFound Outcome = "NOT_FOUND"
	OutcomeAdded    Outcome = "ADDED"
	OutcomeSkipped  Outcome = "SKIPPED"
)

// Options configures an Orchestrator.
type Options struct {
	// Filter selects in-scope requests and storable content types.
	// Nil accepts everything.
	Filter *Filter

	// Signals names the control query parameters.
	Signals Signals

	// Clock drives time-based full resets. Nil creates a local clock with
	// ResetInterval.
	Clock resetclock.Clock

	// ResetInterval is used for the local clock. Zero disables time-based resets.
	ResetInterval time.Duration

	// ContextPath is stripped from request paths before resolving groups.
	ContextPath string

	// Cache sets Expires and Cache-Control on 304 responses.
	Cache merge.CacheHeaders

	// DisableETag ignores If-None-Match and omits ETag on 304 responses.
	DisableETag bool

	// Coalesce collapses concurrent misses for one key into one execution.
	Coalesce bool

	// MaxBodyBytes prevents storing larger responses. Zero means no limit.
	MaxBodyBytes int64

	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// DefaultOptions returns options with the default signal names and caching headers.
func DefaultOptions() Options {
	return Options{
		Signals: DefaultSignals(),
		Cache:   merge.DefaultCacheHeaders(),
	}
}

// Orchestrator is the response cache middleware.
type Orchestrator struct {
	store     cache.Store
	evaluator *freshness.Evaluator
	opts      Options
	clock     resetclock.Clock
	flight    singleflight.Group
	logger    zerolog.Logger
}

// New creates an orchestrator over store.
func New(store cache.Store, evaluator *freshness.Evaluator, opts Options, logger zerolog.Logger) *Orchestrator {
	if store == nil || evaluator == nil {
		panic("cache store and freshness evaluator cannot be nil")
	}
	if opts.Filter == nil {
		opts.Filter = AcceptAll()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.ContextPath = strings.TrimSuffix(opts.ContextPath, "/")

	clock := opts.Clock
	if clock == nil {
		clock = resetclock.NewLocal(opts.ResetInterval, opts.Now())
	}

	return &Orchestrator{
		store:     store,
		evaluator: evaluator,
		opts:      opts,
		clock:     clock,
		logger:    logger,
	}
}

// Middleware wraps next with the response cache.
func (o *Orchestrator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.serve(w, r, next)
	})
}

// Store returns the underlying cache store.
func (o *Orchestrator) Store() cache.Store {
	return o.store
}

func (o *Orchestrator) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	w.Header().Set(HeaderOutcome, string(OutcomeSkipped))

	// Step 1: Acceptance
	if !o.inScope(r) {
		Outcomes.WithLabelValues(string(OutcomeSkipped)).Inc()
		next.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	logger := o.requestLogger(r)
	now := o.opts.Now()
	key := cache.KeyFromRequest(r, o.opts.Signals.Names()...).String()

	// Step 2: Control signals
	sig := o.opts.Signals.parse(r.URL.Query())
	if sig.expire {
		o.invalidate(ctx, logger, key, "expire")
	}
	reset := o.checkReset(ctx, logger, sig.reset, now)

	if sig.skip {
		logger.Trace().Str("key", key).Msg("Skipping cache due to request parameter")
		Outcomes.WithLabelValues(string(OutcomeSkipped)).Inc()
		next.ServeHTTP(w, r)
		return
	}

	// Step 3: Conditional request, answered regardless of cache state
	g := group.Resolve(o.resourcePath(r.URL.Path))
	ims, inm := freshness.ParseConditional(r.Header)
	if o.opts.DisableETag {
		inm = ""
	}
	verdict := o.evaluator.IsConditionallyFresh(g, ims, inm)
	if verdict.Fresh {
		o.invalidate(ctx, logger, key, "not_modified")
		etag := verdict.ETag
		if o.opts.DisableETag {
			etag = ""
		}
		merge.NotModifiedResponses.WithLabelValues("respcache").Inc()
		Outcomes.WithLabelValues(string(OutcomeSkipped)).Inc()
		logger.Trace().Str("key", key).Msg("Resources not modified, sending 304")
		merge.WriteNotModified(w, g.Extension(), etag, verdict.Combined.LastModified, o.opts.Cache, now)
		return
	}

	// Step 4: Cache lookup with staleness check
	if entry := o.lookup(ctx, logger, key, g); entry != nil {
		w.Header().Set(HeaderOutcome, string(OutcomeFound))
		Outcomes.WithLabelValues(string(OutcomeFound)).Inc()
		if err := entry.WriteTo(w, r.Method != http.MethodHead); err != nil {
			logger.Debug().Err(err).Str("key", key).Msg("Failed to replay cached response")
		}
		logger.Debug().Str("key", key).Str("outcome", string(OutcomeFound)).Msg("Returning cached response")
		return
	}

	// Step 5: Execute, capture and maybe store
	w.Header().Set(HeaderOutcome, string(OutcomeNotFound))
	storable := !sig.expire && !reset && r.Method == http.MethodGet
	resp := o.execute(r, next, key, g, storable, o.evaluator.LastModified(g), logger)

	outcome := OutcomeSkipped
	switch {
	case resp.stored:
		outcome = OutcomeAdded
	case resp.status != http.StatusOK:
		outcome = OutcomeNotFound
	}
	w.Header().Set(HeaderOutcome, string(outcome))
	Outcomes.WithLabelValues(string(outcome)).Inc()
	logger.Debug().
		Str("key", key).
		Str("outcome", string(outcome)).
		Int("status_code", resp.status).
		Msg("Cache miss handled")

	resp.writeTo(w, true)
}

// errAborted marks an execution whose request ended before the downstream
// finished. Its result is neither stored nor handed to coalesced callers.
var errAborted = errors.New("request ended before response completed")

// execute runs next under a recorder. With coalescing enabled, concurrent
// storable misses for the same key and method share one execution; requests
// carrying a control signal or using HEAD always run alone.
//
// sourceModified is taken before next runs so that a member modified during
// the request leaves the entry stale. Dependencies a stylesheet registers on
// its first render are only known afterwards and are added then.
func (o *Orchestrator) execute(r *http.Request, next http.Handler, key string, g group.Group, storable bool, sourceModified time.Time, logger zerolog.Logger) *captured {
	run := func() (*captured, error) {
		rec := NewRecorder(o.opts.MaxBodyBytes)
		next.ServeHTTP(rec, r)
		resp := rec.snapshot()
		if err := r.Context().Err(); err != nil {
			logger.Debug().Err(err).Str("key", key).Msg("Request ended during execution, not storing")
			return resp, errAborted
		}
		if storable && o.storable(resp) {
			if deps := o.evaluator.DependenciesLastModified(g); deps.After(sourceModified) {
				sourceModified = deps
			}
			resp.stored = o.put(r.Context(), logger, key, resp, sourceModified)
		}
		return resp, nil
	}

	if !o.opts.Coalesce || !storable {
		resp, _ := run()
		return resp
	}

	v, err, shared := o.flight.Do(r.Method+" "+key, func() (any, error) {
		return run()
	})
	if errors.Is(err, errAborted) && r.Context().Err() == nil {
		// The leader's client went away; this caller is still waiting.
		resp, _ := run()
		return resp
	}
	if shared {
		CoalescedRequests.Inc()
	}
	return v.(*captured)
}

func (o *Orchestrator) storable(resp *captured) bool {
	return resp.status == http.StatusOK &&
		!resp.overLimit &&
		o.opts.Filter.MIMEAccepted(resp.header.Get("Content-Type"))
}

func (o *Orchestrator) put(ctx context.Context, logger zerolog.Logger, key string, resp *captured, sourceModified time.Time) bool {
	header := resp.header.Clone()
	header.Del(HeaderOutcome)
	entry, err := cache.NewEntry(key, resp.status, header, resp.body, o.opts.Now())
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to build cache entry")
		return false
	}
	entry.SourceModified = sourceModified

	if err := o.store.Put(ctx, key, entry); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to store response")
		return false
	}
	logger.Debug().Str("key", key).Msg("Cache added")
	return true
}

// lookup returns a valid entry, or nil on a miss. Stale entries are removed
// and store errors degrade to a miss.
func (o *Orchestrator) lookup(ctx context.Context, logger zerolog.Logger, key string, g group.Group) *cache.Entry {
	entry, err := o.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		}
		return nil
	}
	if o.evaluator.IsStaleRelativeTo(g, entry.ValidAsOf()) {
		logger.Trace().Str("key", key).Msg("Resources modified since entry was cached")
		o.invalidate(ctx, logger, key, "stale")
		return nil
	}
	return entry
}

// checkReset flushes the store on an explicit reset request or when the
// reset interval elapsed. It reports whether a reset happened.
func (o *Orchestrator) checkReset(ctx context.Context, logger zerolog.Logger, explicit bool, now time.Time) bool {
	reason := ""
	if explicit {
		reason = "reset"
		if err := o.clock.Reset(ctx, now); err != nil {
			logger.Warn().Err(err).Msg("Failed to restart reset clock")
		}
	} else {
		due, err := o.clock.Due(ctx, now)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to check reset clock")
		}
		if due {
			reason = "interval"
		}
	}
	if reason == "" {
		return false
	}

	if err := o.store.InvalidateAll(ctx); err != nil {
		logger.Warn().Err(err).Str("reason", reason).Msg("Failed to reset cache")
	} else {
		Invalidations.WithLabelValues(reason).Inc()
		logger.Info().Str("reason", reason).Msg("Cache reset")
	}
	return true
}

func (o *Orchestrator) invalidate(ctx context.Context, logger zerolog.Logger, key, reason string) {
	if err := o.store.Invalidate(ctx, key); err != nil {
		logger.Warn().Err(err).Str("key", key).Str("reason", reason).Msg("Failed to invalidate cache entry")
		return
	}
	Invalidations.WithLabelValues(reason).Inc()
}

func (o *Orchestrator) inScope(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	f := o.opts.Filter
	return f.URLAccepted(r.URL.Path) &&
		f.QueryAccepted(r.URL.RawQuery) &&
		f.UserAgentAccepted(r.UserAgent())
}

func (o *Orchestrator) resourcePath(urlPath string) string {
	p := strings.TrimPrefix(urlPath, o.opts.ContextPath)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return fingerprint.Strip(p)
}

// requestLogger prefers the request-scoped logger installed by hlog.
func (o *Orchestrator) requestLogger(r *http.Request) zerolog.Logger {
	l := hlog.FromRequest(r)
	if l.GetLevel() == zerolog.Disabled {
		return o.logger
	}
	return *l
}
