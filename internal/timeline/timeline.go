package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"shielded-feed/internal/aggregator"
	"shielded-feed/internal/metrics"
)

var (
	// ErrCycleInProgress is returned when a refresh is requested while another is still running.
	ErrCycleInProgress = errors.New("refresh cycle already in progress")
	// ErrCycleTimeout marks a cycle abandoned after exceeding its timeout.
	ErrCycleTimeout = errors.New("refresh cycle timed out")
)

// State of the timeline.
type State int

const (
	Empty State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "empty"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Entry is what a consumer receives.
type Entry struct {
	ProducedAt    time.Time         `json:"producedAt"`
	Metric        aggregator.Metric `json:"metric"`
	IsPlaceholder bool              `json:"isPlaceholder"`
}

// Slot holds the last known good metric. Readers see a whole value or none.
type Slot struct {
	p atomic.Pointer[aggregator.Metric]
}

// NewSlot returns an empty slot.
func NewSlot() *Slot { return &Slot{} }

// Load returns the stored metric, if any.
func (s *Slot) Load() (aggregator.Metric, bool) {
	m := s.p.Load()
	if m == nil {
		return aggregator.Metric{}, false
	}
	return *m, true
}

// Store replaces the stored metric.
func (s *Slot) Store(m aggregator.Metric) {
	s.p.Store(&m)
}

// CycleFunc runs one aggregation cycle.
type CycleFunc func(ctx context.Context) (aggregator.Metric, error)

// Options parameterise the timeline.
type Options struct {
	RefreshInterval time.Duration
	RetryInterval   time.Duration
	CycleTimeout    time.Duration
	Metrics         *metrics.Metrics
}

// Timeline turns refresh outcomes into consumer entries.
type Timeline struct {
	cycle   CycleFunc
	slot    *Slot
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
	running atomic.Bool

	mu           sync.RWMutex
	state        State
	refreshAfter time.Time
}

// New constructs a Timeline around cycle, keeping its last known good value in slot.
func New(cycle CycleFunc, slot *Slot, opts Options, logger zerolog.Logger) *Timeline {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 15 * time.Minute
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Minute
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 2 * time.Minute
	}
	if slot == nil {
		slot = NewSlot()
	}

	t := &Timeline{
		cycle:  cycle,
		slot:   slot,
		opts:   opts,
		logger: logger.With().Str("component", "timeline").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if _, ok := slot.Load(); ok {
		t.state = Stale
	}
	t.refreshAfter = t.now()
	return t
}

// Refresh runs one cycle and records the outcome. At most one cycle runs at a time;
// a cycle that outlives CycleTimeout is abandoned and its result discarded.
func (t *Timeline) Refresh(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}

	metric, err := t.run(ctx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	t.commit(metric, err)
	return err
}

type outcome struct {
	metric aggregator.Metric
	err    error
}

func (t *Timeline) run(ctx context.Context) (aggregator.Metric, error) {
	cycleCtx, cancel := context.WithTimeout(ctx, t.opts.CycleTimeout)
	defer cancel()

	// The running flag stays held until the cycle goroutine returns, even if abandoned.
	done := make(chan outcome, 1)
	go func() {
		defer t.running.Store(false)
		m, err := t.cycle(cycleCtx)
		done <- outcome{metric: m, err: err}
	}()

	select {
	case out := <-done:
		return out.metric, out.err
	case <-cycleCtx.Done():
		if ctx.Err() != nil {
			return aggregator.Metric{}, ctx.Err()
		}
		return aggregator.Metric{}, fmt.Errorf("%w after %s", ErrCycleTimeout, t.opts.CycleTimeout)
	}
}

func (t *Timeline) commit(metric aggregator.Metric, err error) {
	now := t.now()

	t.mu.Lock()
	from := t.state
	if err == nil {
		t.slot.Store(metric)
		t.state = Fresh
		t.refreshAfter = now.Add(t.opts.RefreshInterval)
	} else {
		if _, ok := t.slot.Load(); ok {
			t.state = Stale
		} else {
			t.state = Empty
		}
		t.refreshAfter = now.Add(t.opts.RetryInterval)
	}
	to, next := t.state, t.refreshAfter
	t.mu.Unlock()

	t.opts.Metrics.Cycle(err == nil, float64(now.Unix()))

	if err != nil {
		t.logger.Error().Err(err).Str("from", from.String()).Str("to", to.String()).Time("refresh_after", next).Msg("refresh cycle failed")
		return
	}
	ev := t.logger.Debug()
	if from != to {
		ev = t.logger.Info()
	}
	ev.Str("from", from.String()).Str("to", to.String()).
		Str("shielded_percent", metric.ShieldedPercent.String()).
		Time("refresh_after", next).
		Msg("refresh cycle succeeded")
}

// NextEntry returns the current entry and when the consumer should ask again.
// The entry is a placeholder only in the Empty state.
func (t *Timeline) NextEntry() (Entry, time.Time) {
	t.mu.RLock()
	state, refreshAfter := t.state, t.refreshAfter
	t.mu.RUnlock()

	metric, ok := t.slot.Load()
	if state == Empty || !ok {
		return Entry{ProducedAt: t.now(), IsPlaceholder: true}, refreshAfter
	}
	return Entry{ProducedAt: metric.ComputedAt, Metric: metric}, refreshAfter
}

// State reports the current state.
func (t *Timeline) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Tick adapts Refresh to the scheduler loop.
func (t *Timeline) Tick(ctx context.Context, _ time.Time) error {
	return t.Refresh(ctx)
}
