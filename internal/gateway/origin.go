package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Origin performs the actual JSON-RPC call and returns the raw `result` member.
type Origin interface {
	Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error)
}

// OriginOptions parameterise the node client.
type OriginOptions struct {
	URL       string
	Username  string
	Password  string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// RPCOrigin talks to the node over HTTP JSON-RPC, throttled by a token bucket.
type RPCOrigin struct {
	opts    OriginOptions
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu     sync.Mutex
	client *rpc.Client
}

// NewRPCOrigin builds a lazily-dialled origin client.
func NewRPCOrigin(opts OriginOptions, logger zerolog.Logger) *RPCOrigin {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RPCOrigin{
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With().Str("component", "rpc_origin").Logger(),
	}
}

// Call issues method with params and returns the result bytes.
func (o *RPCOrigin) Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	client, err := o.getClient(ctx)
	if err != nil {
		return nil, err
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}

	var result json.RawMessage
	start := time.Now()
	if err := client.CallContext(ctx, &result, method, args...); err != nil {
		o.logger.Debug().Err(err).Str("method", method).Dur("elapsed", time.Since(start)).Msg("origin call failed")
		return nil, err
	}
	o.logger.Debug().Str("method", method).Dur("elapsed", time.Since(start)).Msg("origin call")
	return result, nil
}

// Close releases the underlying client.
func (o *RPCOrigin) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client != nil {
		o.client.Close()
		o.client = nil
	}
}

func (o *RPCOrigin) getClient(ctx context.Context) (*rpc.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	options := []rpc.ClientOption{
		rpc.WithHTTPClient(&http.Client{Timeout: o.opts.Timeout}),
	}
	if o.opts.Username != "" || o.opts.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(o.opts.Username + ":" + o.opts.Password))
		options = append(options, rpc.WithHTTPAuth(func(h http.Header) error {
			h.Set("Authorization", "Basic "+token)
			return nil
		}))
	}

	client, err := rpc.DialOptions(ctx, o.opts.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	o.client = client
	return client, nil
}

var _ Origin = (*RPCOrigin)(nil)
