package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"shielded-feed/internal/metrics"
)

// ErrInvalidWindow is returned for non-positive window or stride arguments.
var ErrInvalidWindow = errors.New("window and stride must be greater than zero")

// Error reports that the tip sample could not be fetched, leaving the series unanchored.
type Error struct {
	Height int64
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sample tip block %d: %v", e.Height, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Invoker is the subset of the gateway the sampler needs.
type Invoker interface {
	Invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
}

// Options parameterise the sampler.
type Options struct {
	WindowBlocks int64
	Stride       int64
	Workers      int
	Metrics      *metrics.Metrics
}

// Sampler walks a trailing window of heights at a fixed stride.
type Sampler struct {
	invoker Invoker
	opts    Options
	pool    pond.Pool
	logger  zerolog.Logger
}

// New constructs a Sampler. Close releases its worker pool.
func New(invoker Invoker, opts Options, logger zerolog.Logger) *Sampler {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.WindowBlocks <= 0 {
		opts.WindowBlocks = 576
	}
	if opts.Stride <= 0 {
		opts.Stride = 12
	}
	return &Sampler{
		invoker: invoker,
		opts:    opts,
		pool:    pond.NewPool(opts.Workers),
		logger:  logger.With().Str("component", "sampler").Logger(),
	}
}

// Close stops the worker pool after in-flight fetches finish.
func (s *Sampler) Close() {
	s.pool.StopAndWait()
}

// SampleDefault samples with the configured window and stride.
func (s *Sampler) SampleDefault(ctx context.Context) (Series, error) {
	return s.Sample(ctx, s.opts.WindowBlocks, s.opts.Stride)
}

// Sample returns samples for tip-window..tip every stride blocks, always ending at the tip.
// A failed non-tip height is skipped; a failed tip fails the whole call with *Error.
func (s *Sampler) Sample(ctx context.Context, windowBlocks, stride int64) (Series, error) {
	if windowBlocks <= 0 || stride <= 0 {
		return nil, ErrInvalidWindow
	}

	tip, err := s.blockCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block count: %w", err)
	}

	heights := Heights(tip, windowBlocks, stride)
	samples := s.fetchAll(ctx, heights)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series := make(Series, 0, len(heights)+1)
	for i, sample := range samples {
		if sample == nil {
			s.logger.Warn().Int64("height", heights[i]).Msg("skipping height after failed fetch")
			s.opts.Metrics.SkippedHeight()
			continue
		}
		series = append(series, *sample)
	}

	if last, ok := series.Last(); !ok || last.Height != tip {
		sample, err := s.fetchBlock(ctx, tip)
		if err != nil {
			return nil, &Error{Height: tip, Err: err}
		}
		series = append(series, sample)
	}

	s.logger.Debug().
		Int64("tip", tip).
		Int("requested", len(heights)).
		Int("samples", len(series)).
		Msg("sampled window")
	return series, nil
}

// Heights lists tip-window, tip-window+stride, ... up to tip, clamped at zero.
// The tip itself is only included when it falls on the stride.
func Heights(tip, windowBlocks, stride int64) []int64 {
	start := tip - windowBlocks
	if start < 0 {
		start = 0
	}
	heights := make([]int64, 0, (tip-start)/stride+1)
	for h := start; h <= tip; h += stride {
		heights = append(heights, h)
	}
	return heights
}

// fetchAll fetches every height concurrently; slot i is nil when heights[i] failed.
func (s *Sampler) fetchAll(ctx context.Context, heights []int64) []*BlockSample {
	samples := make([]*BlockSample, len(heights))

	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, h := range heights {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			sample, err := s.fetchBlock(groupCtx, h)
			if err != nil {
				s.logger.Debug().Err(err).Int64("height", h).Msg("block fetch failed")
				return
			}
			samples[i] = &sample
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.Warn().Err(err).Msg("block fetch group encountered error")
	}
	return samples
}

func (s *Sampler) blockCount(ctx context.Context) (int64, error) {
	raw, err := s.invoker.Invoke(ctx, "getblockcount", json.RawMessage(`[]`))
	if err != nil {
		return 0, err
	}
	var tip int64
	if err := json.Unmarshal(raw, &tip); err != nil {
		return 0, fmt.Errorf("decode block count: %w", err)
	}
	if tip < 0 {
		return 0, fmt.Errorf("negative block count %d", tip)
	}
	return tip, nil
}

func (s *Sampler) fetchBlock(ctx context.Context, height int64) (BlockSample, error) {
	params, err := json.Marshal([]any{strconv.FormatInt(height, 10), 1})
	if err != nil {
		return BlockSample{}, err
	}
	raw, err := s.invoker.Invoke(ctx, "getblock", params)
	if err != nil {
		return BlockSample{}, err
	}
	return parseBlock(height, raw)
}
