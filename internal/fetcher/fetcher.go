package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Feed names used in ReferenceFetchError.
const (
	FeedTicker = "ticker"
	FeedSupply = "supply"
)

// ReferenceFetchError reports that one external reference feed failed.
type ReferenceFetchError struct {
	Feed string
	Err  error
}

func (e *ReferenceFetchError) Error() string {
	return fmt.Sprintf("fetch %s feed: %v", e.Feed, e.Err)
}

func (e *ReferenceFetchError) Unwrap() error { return e.Err }

// Ticker is the 24h spot market summary.
type Ticker struct {
	Price            decimal.Decimal
	Change24h        decimal.Decimal
	ChangePercent24h decimal.Decimal
	High24h          decimal.Decimal
	Low24h           decimal.Decimal
	// History holds recent close prices, oldest first. May be empty.
	History   []decimal.Decimal
	FetchedAt time.Time
}

// Supply is the circulating coin supply.
type Supply struct {
	Circulating decimal.Decimal
	FetchedAt   time.Time
}

// TickerFetcher retrieves the spot price summary.
type TickerFetcher interface {
	FetchTicker(ctx context.Context) (Ticker, error)
}

// SupplyFetcher retrieves the circulating supply.
type SupplyFetcher interface {
	FetchSupply(ctx context.Context) (Supply, error)
}
