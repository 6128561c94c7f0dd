package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shielded-feed/internal/cache"
	"shielded-feed/internal/metrics"
)

// DefaultTTL is how long a successful origin response stays servable.
const DefaultTTL = 60 * time.Second

// Options tune gateway behaviour.
type Options struct {
	TTL     time.Duration
	Metrics *metrics.Metrics
}

// Gateway guards the origin node: validate -> cache lookup -> forward -> cache store.
type Gateway struct {
	origin  Origin
	store   cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New constructs a Gateway over origin with records kept in store.
func New(origin Origin, store cache.Store, opts Options, logger zerolog.Logger) *Gateway {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gateway{
		origin:  origin,
		store:   store,
		ttl:     ttl,
		metrics: opts.Metrics,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

// TTL reports the cache lifetime applied to successful responses.
func (g *Gateway) TTL() time.Duration {
	return g.ttl
}

// Invoke returns the raw result for method/params, from cache when possible.
// Non-whitelisted methods fail with ErrMethodNotAllowed before the cache or origin is touched.
func (g *Gateway) Invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if err := authorize(method); err != nil {
		g.metrics.GatewayCall("other", metrics.OutcomeRejected)
		g.logger.Warn().Str("method", method).Msg("rejected non-whitelisted method")
		return nil, err
	}

	args, canonical, err := canonicalParams(params)
	if err != nil {
		g.metrics.GatewayCall(method, metrics.OutcomeRejected)
		return nil, err
	}
	key := cacheKey(method, canonical)

	if cached, ok := g.lookup(ctx, key); ok {
		g.metrics.GatewayCall(method, metrics.OutcomeHit)
		return cached, nil
	}

	result, err := g.forward(ctx, method, args)
	if err != nil {
		g.metrics.GatewayCall(method, metrics.OutcomeError)
		return nil, err
	}
	g.metrics.GatewayCall(method, metrics.OutcomeMiss)

	g.save(ctx, key, result)
	return result, nil
}

func authorize(method string) error {
	if !Allowed(method) {
		return fmt.Errorf("%w: %q", ErrMethodNotAllowed, method)
	}
	return nil
}

// lookup treats store errors as misses; the origin stays authoritative.
func (g *Gateway) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	if g.store == nil {
		return nil, false
	}
	val, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
	return val, ok
}

func (g *Gateway) forward(ctx context.Context, method string, args []json.RawMessage) (json.RawMessage, error) {
	result, err := g.origin.Call(ctx, method, args)
	if err != nil {
		return nil, &UpstreamError{Method: method, Err: err}
	}
	return result, nil
}

func (g *Gateway) save(ctx context.Context, key string, result json.RawMessage) {
	if g.store == nil {
		return
	}
	if err := g.store.Set(ctx, key, result, g.ttl); err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
