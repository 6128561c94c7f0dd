package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shielded-feed/internal/cache"
)

type fakeOrigin struct {
	mu     sync.Mutex
	calls  []string
	result json.RawMessage
	err    error
}

func (f *fakeOrigin) Call(_ context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeOrigin) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestGateway(origin Origin) (*Gateway, *cache.Memory, *clock) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	store := cache.NewMemoryWithClock(clk.Now)
	return New(origin, store, Options{TTL: 60 * time.Second}, zerolog.Nop()), store, clk
}

func TestInvokeRejectsNonWhitelistedMethod(t *testing.T) {
	origin := &fakeOrigin{result: json.RawMessage(`"tx"`)}
	gw, store, _ := newTestGateway(origin)

	_, err := gw.Invoke(context.Background(), "getrawtransaction", json.RawMessage(`["abc"]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMethodNotAllowed)
	assert.Equal(t, 0, origin.count(), "origin must not be called")
	assert.Equal(t, 0, store.Len(), "no cache record may be created")
}

func TestInvokeCachesForTTL(t *testing.T) {
	origin := &fakeOrigin{result: json.RawMessage(`1000`)}
	gw, _, clk := newTestGateway(origin)
	ctx := context.Background()

	first, err := gw.Invoke(ctx, "getblockcount", json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.JSONEq(t, `1000`, string(first))

	clk.now = clk.now.Add(30 * time.Second)
	second, err := gw.Invoke(ctx, "getblockcount", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, origin.count(), "second call within ttl must be served from cache")

	clk.now = clk.now.Add(31 * time.Second)
	_, err = gw.Invoke(ctx, "getblockcount", json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Equal(t, 2, origin.count(), "expired record must trigger a fresh origin call")
}

func TestInvokeKeyIgnoresFormatting(t *testing.T) {
	origin := &fakeOrigin{result: json.RawMessage(`{"height":10}`)}
	gw, store, _ := newTestGateway(origin)
	ctx := context.Background()

	_, err := gw.Invoke(ctx, "getblock", json.RawMessage(`["10", 1]`))
	require.NoError(t, err)
	_, err = gw.Invoke(ctx, "getblock", json.RawMessage(` [ "10",1 ] `))
	require.NoError(t, err)
	assert.Equal(t, 1, origin.count())
	assert.Equal(t, 1, store.Len())

	_, err = gw.Invoke(ctx, "getblock", json.RawMessage(`["11", 1]`))
	require.NoError(t, err)
	assert.Equal(t, 2, origin.count())
}

func TestInvokeDoesNotCacheFailures(t *testing.T) {
	origin := &fakeOrigin{err: errors.New("connection refused")}
	gw, store, _ := newTestGateway(origin)
	ctx := context.Background()

	_, err := gw.Invoke(ctx, "getblockcount", nil)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "getblockcount", upstream.Method)
	assert.Equal(t, 0, store.Len())

	origin.err = nil
	origin.result = json.RawMessage(`5`)
	got, err := gw.Invoke(ctx, "getblockcount", nil)
	require.NoError(t, err)
	assert.Equal(t, "5", string(got))
	assert.Equal(t, 2, origin.count())
}

func TestInvokeRejectsMalformedParams(t *testing.T) {
	origin := &fakeOrigin{result: json.RawMessage(`1`)}
	gw, _, _ := newTestGateway(origin)

	_, err := gw.Invoke(context.Background(), "getblock", json.RawMessage(`{"height":1}`))
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Equal(t, 0, origin.count())
}

func TestCacheKeyCanonical(t *testing.T) {
	a, err := CacheKey("getblock", json.RawMessage(`[{"b":1,"a":2}, 1]`))
	require.NoError(t, err)
	b, err := CacheKey("getblock", json.RawMessage(`[{"a":2, "b":1},1]`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `getblock:[{"a":2,"b":1},1]`, a)

	empty, err := CacheKey("getblockcount", nil)
	require.NoError(t, err)
	assert.Equal(t, "getblockcount:[]", empty)
}

func TestAllowed(t *testing.T) {
	for _, m := range []string{"getblockcount", "getblock", "getblockhash", "getblockchaininfo"} {
		assert.True(t, Allowed(m), m)
	}
	for _, m := range []string{"", "getrawtransaction", "stop", "GETBLOCK", "z_sendmany"} {
		assert.False(t, Allowed(m), m)
	}
}
