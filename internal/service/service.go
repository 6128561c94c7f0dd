package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"shielded-feed/internal/aggregator"
	"shielded-feed/internal/fetcher"
	"shielded-feed/internal/sampler"
)

// Sampler produces the block series for one cycle.
type Sampler interface {
	SampleDefault(ctx context.Context) (sampler.Series, error)
}

// Service runs refresh cycles: sample the chain and fetch both reference feeds, then aggregate.
type Service struct {
	sampler Sampler
	ticker  fetcher.TickerFetcher
	supply  fetcher.SupplyFetcher
	pool    pond.Pool
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs the refresh service.
func New(s Sampler, ticker fetcher.TickerFetcher, supply fetcher.SupplyFetcher, logger zerolog.Logger) *Service {
	return &Service{
		sampler: s,
		ticker:  ticker,
		supply:  supply,
		pool:    pond.NewPool(3),
		logger:  logger.With().Str("component", "service").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close stops the fan-out pool.
func (s *Service) Close() {
	s.pool.StopAndWait()
}

// Cycle executes one refresh. Any failed input fails the whole cycle.
func (s *Service) Cycle(ctx context.Context) (aggregator.Metric, error) {
	var (
		series    sampler.Series
		ticker    fetcher.Ticker
		supply    fetcher.Supply
		seriesErr error
		tickerErr error
		supplyErr error
	)

	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			seriesErr = err
			return
		}
		series, seriesErr = s.sampler.SampleDefault(groupCtx)
	})
	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			tickerErr = err
			return
		}
		ticker, tickerErr = s.ticker.FetchTicker(groupCtx)
	})
	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			supplyErr = err
			return
		}
		supply, supplyErr = s.supply.FetchSupply(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.Warn().Err(err).Msg("refresh fan-out encountered error")
	}
	if err := ctx.Err(); err != nil {
		return aggregator.Metric{}, err
	}

	if seriesErr != nil {
		return aggregator.Metric{}, fmt.Errorf("sample chain: %w", seriesErr)
	}
	if tickerErr != nil {
		return aggregator.Metric{}, fmt.Errorf("reference ticker: %w", tickerErr)
	}
	if supplyErr != nil {
		return aggregator.Metric{}, fmt.Errorf("reference supply: %w", supplyErr)
	}

	metric, err := aggregator.Aggregate(series, aggregator.NewReferenceSnapshot(ticker, supply), s.now())
	if err != nil {
		return aggregator.Metric{}, err
	}

	latest, _ := series.Last()
	s.logger.Info().
		Int64("tip", latest.Height).
		Int("samples", len(series)).
		Str("shielded_amount", metric.ShieldedAmount.String()).
		Str("shielded_percent", metric.ShieldedPercent.String()).
		Str("change_24h", metric.ShieldedChange24h.String()).
		Str("price", metric.Price.Price.String()).
		Msg("metric aggregated")
	return metric, nil
}
