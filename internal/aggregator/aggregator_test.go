package aggregator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shielded-feed/internal/fetcher"
	"shielded-feed/internal/sampler"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sample(h int64, ago time.Duration, total string) sampler.BlockSample {
	return sampler.BlockSample{Timestamp: now.Add(-ago), Height: h, Total: d(total)}
}

func reference(supply string) ReferenceSnapshot {
	return ReferenceSnapshot{
		CirculatingSupply:     d(supply),
		SpotPrice:             d("49.25"),
		PriceChange24h:        d("1.25"),
		PriceChangePercent24h: d("2.6"),
		High24h:               d("50.1"),
		Low24h:                d("47.3"),
		History:               []decimal.Decimal{d("48.1"), d("49.25")},
		FetchedAt:             now,
	}
}

func TestAggregatePercentAndChange(t *testing.T) {
	series := sampler.Series{
		sample(424, 25*time.Hour, "3900000"),
		sample(436, 24*time.Hour, "4000000"),
		sample(988, 30*time.Minute, "4100000"),
		sample(1000, 0, "4200000"),
	}

	m, err := Aggregate(series, reference("20000000"), now)
	require.NoError(t, err)
	assert.True(t, m.ShieldedAmount.Equal(d("4200000")))
	assert.True(t, m.ShieldedPercent.Equal(d("21")), m.ShieldedPercent.String())
	assert.True(t, m.ShieldedChange24h.Equal(d("5")), m.ShieldedChange24h.String())
	assert.Len(t, m.Sparkline, 4)
	assert.True(t, m.Sparkline[0].Equal(d("3900000")))
	assert.True(t, m.Price.Price.Equal(d("49.25")))
	assert.Len(t, m.Price.History, 2)
	assert.Equal(t, now, m.ComputedAt)
}

func TestAggregateFallsBackToEarliestSample(t *testing.T) {
	series := sampler.Series{
		sample(900, 6*time.Hour, "4000000"),
		sample(1000, 0, "4200000"),
	}
	m, err := Aggregate(series, reference("20000000"), now)
	require.NoError(t, err)
	assert.True(t, m.ShieldedChange24h.Equal(d("5")), m.ShieldedChange24h.String())
}

func TestAggregateSingleSampleHasNoChange(t *testing.T) {
	m, err := Aggregate(sampler.Series{sample(1000, 0, "4200000")}, reference("20000000"), now)
	require.NoError(t, err)
	assert.True(t, m.ShieldedChange24h.IsZero())
}

func TestAggregateZeroOldTotal(t *testing.T) {
	series := sampler.Series{sample(0, 48*time.Hour, "0"), sample(1000, 0, "4200000")}
	m, err := Aggregate(series, reference("20000000"), now)
	require.NoError(t, err)
	assert.True(t, m.ShieldedChange24h.IsZero())
}

func TestAggregateNonPositiveSupply(t *testing.T) {
	series := sampler.Series{sample(1000, 0, "4200000")}
	for _, supply := range []string{"0", "-5"} {
		m, err := Aggregate(series, reference(supply), now)
		require.NoError(t, err)
		assert.True(t, m.ShieldedPercent.IsZero(), "supply %s", supply)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	series := sampler.Series{
		sample(424, 24*time.Hour, "4000000.33"),
		sample(1000, 0, "4200000.17"),
	}
	ref := reference("16250000")
	a, err := Aggregate(series, ref, now)
	require.NoError(t, err)
	b, err := Aggregate(series, ref, now)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.False(t, a.ShieldedPercent.IsNegative())
}

func TestAggregateEmptySeries(t *testing.T) {
	_, err := Aggregate(nil, reference("1"), now)
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestNewReferenceSnapshot(t *testing.T) {
	ticker := fetcher.Ticker{Price: d("49"), High24h: d("50"), FetchedAt: now}
	supply := fetcher.Supply{Circulating: d("16000000"), FetchedAt: now.Add(-time.Second)}
	ref := NewReferenceSnapshot(ticker, supply)
	assert.True(t, ref.SpotPrice.Equal(d("49")))
	assert.True(t, ref.CirculatingSupply.Equal(d("16000000")))
	assert.Equal(t, supply.FetchedAt, ref.FetchedAt)
}
