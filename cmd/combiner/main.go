// Command combiner serves combined JavaScript and CSS resource groups from an
// asset directory behind the response cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/anupambasak/webutilities/pkg/cache"
	"github.com/anupambasak/webutilities/pkg/config"
	"github.com/anupambasak/webutilities/pkg/freshness"
	"github.com/anupambasak/webutilities/pkg/logging"
	"github.com/anupambasak/webutilities/pkg/merge"
	"github.com/anupambasak/webutilities/pkg/metrics"
	"github.com/anupambasak/webutilities/pkg/resetclock"
	"github.com/anupambasak/webutilities/pkg/resource"
	"github.com/anupambasak/webutilities/pkg/respcache"
	"github.com/anupambasak/webutilities/pkg/warmup"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", getEnv("WEBUTIL_CONFIG", ""), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Combiner stopped")
	}
}

// app is the wired service.
type app struct {
	cfg     config.Config
	store   cache.Store
	cached  http.Handler
	handler http.Handler
	logger  zerolog.Logger
}

// newApp builds the combiner, its response cache and the HTTP routes.
func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	// Step 1: Resources and freshness
	provider, err := resource.NewDirProvider(cfg.Assets.Root)
	if err != nil {
		return nil, fmt.Errorf("open assets: %w", err)
	}
	refs := merge.NewReferenceMap()
	evaluator := freshness.NewEvaluator(provider, freshness.WithReferences(refs))

	// Step 2: Combiner
	engine := merge.NewEngine(provider, refs, cfg.MergeOptions(), logger.With().Str("component", "merge").Logger())
	combiner := merge.NewHandler(engine, evaluator, cfg.HandlerOptions(), logger.With().Str("component", "merge").Logger())

	// Step 3: Response cache
	cacheLogger := logger.With().Str("component", "cache").Logger()
	store, err := cache.Open(ctx, cfg.CacheOptions(), cacheLogger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	opts, err := cfg.RespcacheOptions()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	clock, err := newResetClock(ctx, cfg, store, cacheLogger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opts.Clock = clock

	orchestrator := respcache.New(store, evaluator, opts, cacheLogger)
	cached := orchestrator.Middleware(combiner)

	a := &app{
		cfg:    cfg,
		store:  store,
		cached: cached,
		logger: logger,
	}
	a.handler = a.routes()
	return a, nil
}

// newResetClock returns a redis-shared clock when configured and the store
// really is redis. Otherwise the orchestrator keeps its local clock.
func newResetClock(ctx context.Context, cfg config.Config, store cache.Store, logger zerolog.Logger) (resetclock.Clock, error) {
	if !cfg.Signals.SharedResetClock || cfg.Signals.ResetInterval <= 0 {
		return nil, nil
	}
	client, ok := cache.RedisClient(store)
	if !ok {
		logger.Warn().Msg("Shared reset clock needs redis, using a local clock")
		return nil, nil
	}
	clock, err := resetclock.NewRedis(ctx, client, resetclock.DefaultRedisPrefix, cfg.Signals.ResetInterval, time.Now(), logger)
	if err != nil {
		return nil, fmt.Errorf("init reset clock: %w", err)
	}
	return clock, nil
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(a.logger))

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(a.store))
	r.Handle("/metrics", metrics.Handler())
	r.Handle(a.cfg.Assets.ContextPath+"/*", a.cached)
	return r
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", ln.Addr().String()).
			Str("assets", cfg.Assets.Root).
			Str("context_path", cfg.Assets.ContextPath).
			Str("backend", string(cache.BackendOf(a.store))).
			Msg("Combiner listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if len(cfg.Warmup.Paths) == 0 {
			return nil
		}
		w := warmup.New(a.cached, warmup.Config{Concurrency: cfg.Warmup.Concurrency}, logger.With().Str("component", "warmup").Logger())
		paths := make([]string, 0, len(cfg.Warmup.Paths))
		for _, p := range cfg.Warmup.Paths {
			paths = append(paths, cfg.Assets.ContextPath+p)
		}
		if _, err := w.Run(gctx, paths); err != nil {
			logger.Warn().Err(err).Msg("Cache warmup incomplete")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports whether the cache backend is reachable.
func readyHandler(store cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := cache.Ping(ctx, store); err != nil {
			http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
