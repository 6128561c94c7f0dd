package app

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"shielded-feed/internal/fetcher"
	"shielded-feed/internal/timeline"
)

// RefreshOptions configure a one-off aggregation cycle.
type RefreshOptions struct {
	// Supply, when positive, replaces the supply feed with a fixed value.
	Supply decimal.Decimal
}

type refreshOutput struct {
	Entry        timeline.Entry `json:"entry"`
	State        timeline.State `json:"state"`
	RefreshAfter time.Time      `json:"refreshAfter"`
	Error        string         `json:"error,omitempty"`
}

// Refresh runs one cycle and prints the resulting timeline entry as JSON.
// The entry is printed even when the cycle fails.
func (a *App) Refresh(ctx context.Context, opts RefreshOptions, out io.Writer) error {
	n, err := a.openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	ticker, supply := a.newFetchers()
	if opts.Supply.IsPositive() {
		a.Logger.Warn().Str("supply", opts.Supply.String()).Msg("using static circulating supply")
		supply = &staticSupplyFetcher{supply: opts.Supply}
	}

	tl, svc := a.newTimeline(n, ticker, supply)
	defer svc.Close()

	cycleErr := tl.Refresh(ctx)
	entry, after := tl.NextEntry()
	result := refreshOutput{Entry: entry, State: tl.State(), RefreshAfter: after}
	if cycleErr != nil {
		result.Error = cycleErr.Error()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	return cycleErr
}

type staticSupplyFetcher struct {
	supply decimal.Decimal
}

func (s *staticSupplyFetcher) FetchSupply(context.Context) (fetcher.Supply, error) {
	return fetcher.Supply{Circulating: s.supply, FetchedAt: time.Now().UTC()}, nil
}
