package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TickerOptions parameterise the Binance spot fetcher.
type TickerOptions struct {
	BaseURL       string
	Symbol        string
	KlineInterval string
	KlineLimit    int
	Timeout       time.Duration
	UserAgent     string
}

// BinanceTicker reads 24h stats and recent klines from the Binance spot API.
type BinanceTicker struct {
	opts   TickerOptions
	client *binance.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewBinanceTicker constructs a ticker fetcher. No credentials are needed for public endpoints.
func NewBinanceTicker(opts TickerOptions, logger zerolog.Logger) *BinanceTicker {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Symbol == "" {
		opts.Symbol = "ZECUSDT"
	}
	if opts.KlineInterval == "" {
		opts.KlineInterval = "2h"
	}

	client := binance.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: opts.Timeout}
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		client.BaseURL = base
	}
	if opts.UserAgent != "" {
		client.UserAgent = opts.UserAgent
	}

	return &BinanceTicker{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "ticker_fetcher").Logger(),
		now:    time.Now,
	}
}

// FetchTicker returns the 24h summary. A klines failure only empties History.
func (b *BinanceTicker) FetchTicker(ctx context.Context) (Ticker, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Symbol(b.opts.Symbol).Do(ctx)
	if err != nil {
		return Ticker{}, &ReferenceFetchError{Feed: FeedTicker, Err: err}
	}
	if len(stats) == 0 || stats[0] == nil {
		return Ticker{}, &ReferenceFetchError{Feed: FeedTicker, Err: errors.New("empty ticker response")}
	}

	ticker, err := tickerFromStats(stats[0])
	if err != nil {
		return Ticker{}, &ReferenceFetchError{Feed: FeedTicker, Err: err}
	}
	ticker.FetchedAt = b.now().UTC()

	if b.opts.KlineLimit > 0 {
		history, err := b.history(ctx)
		if err != nil {
			b.logger.Warn().Err(err).Str("symbol", b.opts.Symbol).Msg("klines unavailable; price history left empty")
		} else {
			ticker.History = history
		}
	}

	return ticker, nil
}

func (b *BinanceTicker) history(ctx context.Context) ([]decimal.Decimal, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(b.opts.Symbol).
		Interval(b.opts.KlineInterval).
		Limit(b.opts.KlineLimit).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	closes := make([]decimal.Decimal, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		c, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, fmt.Errorf("parse kline close: %w", err)
		}
		closes = append(closes, c)
	}
	return closes, nil
}

type statField struct {
	name string
	raw  string
	dst  *decimal.Decimal
}

func tickerFromStats(s *binance.PriceChangeStats) (Ticker, error) {
	var t Ticker
	fields := []statField{
		{"lastPrice", s.LastPrice, &t.Price},
		{"priceChange", s.PriceChange, &t.Change24h},
		{"priceChangePercent", s.PriceChangePercent, &t.ChangePercent24h},
		{"highPrice", s.HighPrice, &t.High24h},
		{"lowPrice", s.LowPrice, &t.Low24h},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return Ticker{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return t, nil
}

var _ TickerFetcher = (*BinanceTicker)(nil)
