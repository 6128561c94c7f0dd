package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"shielded-feed/internal/api"
	"shielded-feed/internal/cache"
	"shielded-feed/internal/config"
	"shielded-feed/internal/fetcher"
	"shielded-feed/internal/gateway"
	"shielded-feed/internal/metrics"
	"shielded-feed/internal/sampler"
	"shielded-feed/internal/scheduler"
	"shielded-feed/internal/service"
	"shielded-feed/internal/timeline"
	"shielded-feed/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		Metrics: metrics.New(),
	}
}

// node bundles everything that talks to the RPC endpoint.
type node struct {
	origin  *gateway.RPCOrigin
	store   cache.Store
	memory  *cache.Memory
	gateway *gateway.Gateway
	sampler *sampler.Sampler
	closers []func()
}

func (n *node) Close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
}

func (a *App) openNode(ctx context.Context) (*node, error) {
	if err := a.Config.RPC.Require(); err != nil {
		return nil, err
	}

	n := &node{}
	if err := a.openStore(ctx, n); err != nil {
		return nil, err
	}

	n.origin = gateway.NewRPCOrigin(gateway.OriginOptions{
		URL:       a.Config.RPC.URL,
		Username:  a.Config.RPC.Username,
		Password:  a.Config.RPC.Password,
		Timeout:   a.Config.RPC.Timeout,
		RateLimit: a.Config.RPC.RateLimit,
		Burst:     a.Config.RPC.Burst,
	}, a.Logger)
	n.closers = append(n.closers, n.origin.Close)

	n.gateway = gateway.New(n.origin, n.store, gateway.Options{
		TTL:     a.Config.Gateway.CacheTTL,
		Metrics: a.Metrics,
	}, a.Logger)

	n.sampler = sampler.New(n.gateway, sampler.Options{
		WindowBlocks: a.Config.Sampler.WindowBlocks,
		Stride:       a.Config.Sampler.Stride,
		Workers:      a.Config.Sampler.Workers,
		Metrics:      a.Metrics,
	}, a.Logger)
	n.closers = append(n.closers, n.sampler.Close)

	return n, nil
}

func (a *App) openStore(ctx context.Context, n *node) error {
	switch strings.ToLower(a.Config.Gateway.CacheBackend) {
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:      a.Config.Redis.Addr,
			Password:  a.Config.Redis.Password,
			DB:        a.Config.Redis.DB,
			KeyPrefix: a.Config.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
		n.store = r
		n.closers = append(n.closers, func() {
			if err := r.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close redis")
			}
		})
		a.Logger.Info().Str("addr", a.Config.Redis.Addr).Msg("using redis response cache")
	default:
		n.memory = cache.NewMemory()
		n.store = n.memory
	}
	return nil
}

func (a *App) newFetchers() (fetcher.TickerFetcher, fetcher.SupplyFetcher) {
	ua := a.Config.Supply.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}

	ticker := fetcher.NewBinanceTicker(fetcher.TickerOptions{
		BaseURL:       a.Config.Ticker.BaseURL,
		Symbol:        a.Config.Ticker.Symbol,
		KlineInterval: a.Config.Ticker.KlineInterval,
		KlineLimit:    a.Config.Ticker.KlineLimit,
		Timeout:       a.Config.Ticker.Timeout,
		UserAgent:     ua,
	}, a.Logger)

	supply := fetcher.NewCoinGeckoSupply(fetcher.SupplyOptions{
		BaseURL:   a.Config.Supply.BaseURL,
		CoinID:    a.Config.Supply.CoinID,
		APIKey:    a.Config.Supply.APIKey,
		Timeout:   a.Config.Supply.Timeout,
		UserAgent: ua,
	}, a.Logger)

	return ticker, supply
}

func (a *App) newTimeline(n *node, ticker fetcher.TickerFetcher, supply fetcher.SupplyFetcher) (*timeline.Timeline, *service.Service) {
	svc := service.New(n.sampler, ticker, supply, a.Logger)
	tl := timeline.New(svc.Cycle, timeline.NewSlot(), timeline.Options{
		RefreshInterval: a.Config.Timeline.RefreshInterval,
		RetryInterval:   a.Config.Timeline.RetryInterval,
		CycleTimeout:    a.Config.Timeline.CycleTimeout,
		Metrics:         a.Metrics,
	}, a.Logger)
	return tl, svc
}

// Run executes the long-running service: refresh loop plus HTTP surface.
// Without rpc.url it still serves HTTP; node-backed endpoints report the missing configuration.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		gw      api.Invoker
		feed    api.SeriesSampler
		entries api.EntrySource
	)

	n, err := a.openNode(ctx)
	switch {
	case errors.Is(err, config.ErrRPCNotConfigured):
		a.Logger.Error().Err(err).Msg("rpc.url not configured; serving configuration errors only")
	case err != nil:
		return err
	default:
		defer n.Close()

		if n.memory != nil {
			sweeper, err := newSweeper(a.Config.Gateway.SweepSpec, n.memory, a.Logger)
			if err != nil {
				return err
			}
			sweeper.Start()
			defer sweeper.Stop()
		}

		ticker, supply := a.newFetchers()
		tl, svc := a.newTimeline(n, ticker, supply)
		defer svc.Close()

		loop := scheduler.New(scheduler.Options{
			Interval:      a.Config.Timeline.RefreshInterval,
			RetryInterval: a.Config.Timeline.RetryInterval,
			AlignToStart:  a.Config.Timeline.AlignToInterval,
			StartupDelay:  a.Config.Timeline.StartupDelay,
		}, a.Logger)
		loopDone := make(chan struct{})
		go func() {
			defer close(loopDone)
			if err := loop.Run(ctx, tl.Tick); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("refresh loop terminated with error")
			}
		}()
		defer func() { <-loopDone }()

		gw, feed, entries = n.gateway, n.sampler, tl
	}

	srv := api.New(gw, feed, entries, api.Options{
		CacheMaxAge: a.Config.Gateway.CacheTTL,
		Metrics:     a.Metrics,
	}, a.Logger)

	httpServer := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", httpServer.Addr).Str("version", version.Version).Msg("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok && err != nil {
			cancel()
			return fmt.Errorf("http server: %w", err)
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn().Err(err).Msg("http server shutdown")
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}
