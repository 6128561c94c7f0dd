package aggregator

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"shielded-feed/internal/fetcher"
	"shielded-feed/internal/sampler"
)

// ErrEmptySeries is returned when there is no sample to aggregate.
var ErrEmptySeries = errors.New("aggregate: empty series")

// Decimal places kept for percentages.
const percentPlaces = 2

var hundred = decimal.NewFromInt(100)

// ReferenceSnapshot joins the ticker and supply feeds for one cycle.
type ReferenceSnapshot struct {
	CirculatingSupply     decimal.Decimal
	SpotPrice             decimal.Decimal
	PriceChange24h        decimal.Decimal
	PriceChangePercent24h decimal.Decimal
	High24h               decimal.Decimal
	Low24h                decimal.Decimal
	History               []decimal.Decimal
	FetchedAt             time.Time
}

// NewReferenceSnapshot combines the two feed results. FetchedAt is the older of the two.
func NewReferenceSnapshot(t fetcher.Ticker, s fetcher.Supply) ReferenceSnapshot {
	fetchedAt := t.FetchedAt
	if s.FetchedAt.Before(fetchedAt) {
		fetchedAt = s.FetchedAt
	}
	return ReferenceSnapshot{
		CirculatingSupply:     s.Circulating,
		SpotPrice:             t.Price,
		PriceChange24h:        t.Change24h,
		PriceChangePercent24h: t.ChangePercent24h,
		High24h:               t.High24h,
		Low24h:                t.Low24h,
		History:               t.History,
		FetchedAt:             fetchedAt,
	}
}

// PriceFacet is the spot market part of a metric, copied from the reference.
type PriceFacet struct {
	Price                 decimal.Decimal   `json:"price"`
	PriceChange24h        decimal.Decimal   `json:"priceChange24h"`
	PriceChangePercent24h decimal.Decimal   `json:"priceChangePercent24h"`
	High24h               decimal.Decimal   `json:"high24h"`
	Low24h                decimal.Decimal   `json:"low24h"`
	History               []decimal.Decimal `json:"history"`
}

// Metric is the derived shielded-supply metric for one refresh cycle.
type Metric struct {
	ShieldedPercent   decimal.Decimal   `json:"shieldedPercent"`
	ShieldedAmount    decimal.Decimal   `json:"shieldedAmount"`
	ShieldedChange24h decimal.Decimal   `json:"shieldedChange24h"`
	Price             PriceFacet        `json:"price"`
	Sparkline         []decimal.Decimal `json:"sparkline"`
	ComputedAt        time.Time         `json:"computedAt"`
}

// Aggregate derives a Metric from a sampled series and a reference snapshot.
// It performs no I/O; now fixes both the 24h cutoff and ComputedAt.
func Aggregate(series sampler.Series, ref ReferenceSnapshot, now time.Time) (Metric, error) {
	latest, ok := series.Last()
	if !ok {
		return Metric{}, ErrEmptySeries
	}

	amount := latest.Total
	history := make([]decimal.Decimal, len(ref.History))
	copy(history, ref.History)

	return Metric{
		ShieldedPercent:   percentOf(amount, ref.CirculatingSupply),
		ShieldedAmount:    amount,
		ShieldedChange24h: change24h(series, amount, now),
		Price: PriceFacet{
			Price:                 ref.SpotPrice,
			PriceChange24h:        ref.PriceChange24h,
			PriceChangePercent24h: ref.PriceChangePercent24h,
			High24h:               ref.High24h,
			Low24h:                ref.Low24h,
			History:               history,
		},
		Sparkline:  series.Totals(),
		ComputedAt: now.UTC(),
	}, nil
}

func percentOf(amount, supply decimal.Decimal) decimal.Decimal {
	if !supply.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(hundred).Div(supply).Round(percentPlaces)
}

// change24h compares against the latest sample at least 24h old, or the earliest one.
func change24h(series sampler.Series, amount decimal.Decimal, now time.Time) decimal.Decimal {
	if len(series) < 2 {
		return decimal.Zero
	}

	cutoff := now.Add(-24 * time.Hour)
	old := series[0]
	for _, s := range series {
		if !s.Timestamp.After(cutoff) {
			old = s
		}
	}

	if !old.Total.IsPositive() {
		return decimal.Zero
	}
	return amount.Sub(old.Total).Mul(hundred).Div(old.Total).Round(percentPlaces)
}
