package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "graphserver/pkg/errors"
)

func newTestCache(cfg Config) *ResultCache {
	return New(cfg, zap.NewNop())
}

func staticLoader(body string) Loader {
	return func(ctx context.Context) ([]byte, error) {
		return []byte(body), nil
	}
}

func TestMissThenHit(t *testing.T) {
	c := newTestCache(Config{})
	ctx := context.Background()
	key := Fingerprint("neo4j", "neo4j", "g1", "get_graph")

	body, outcome, err := c.GetOrLoad(ctx, key, false, staticLoader("snapshot"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	assert.Equal(t, "snapshot", string(body))

	body, outcome, err = c.GetOrLoad(ctx, key, false, staticLoader("should not be called"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, "snapshot", string(body))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.CachedEntries)
}

func TestBypassRefreshesEntry(t *testing.T) {
	c := newTestCache(Config{})
	ctx := context.Background()
	key := Fingerprint("neo4j", "neo4j", "g1", "get_graph")

	_, _, err := c.GetOrLoad(ctx, key, false, staticLoader("stale"))
	require.NoError(t, err)

	body, outcome, err := c.GetOrLoad(ctx, key, true, staticLoader("fresh"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBypass, outcome)
	assert.Equal(t, "fresh", string(body))

	// The bypass refreshed the cached entry.
	body, outcome, err = c.GetOrLoad(ctx, key, false, staticLoader("unused"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, "fresh", string(body))

	assert.Equal(t, int64(1), c.Stats().Bypasses)
}

func TestErrorsAreNotCached(t *testing.T) {
	c := newTestCache(Config{})
	ctx := context.Background()
	key := Fingerprint("postgres", "", "g1", "get_graph")

	var calls atomic.Int32
	failing := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return nil, apperrors.NewStoreUnavailable("postgres", nil)
	}

	_, _, err := c.GetOrLoad(ctx, key, false, failing)
	assert.True(t, apperrors.IsStoreUnavailable(err))
	_, _, err = c.GetOrLoad(ctx, key, false, failing)
	assert.True(t, apperrors.IsStoreUnavailable(err))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Stats().CachedEntries)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(Config{TTL: 30 * time.Millisecond})
	ctx := context.Background()
	key := Fingerprint("neo4j", "", "g1", "stats")

	_, _, err := c.GetOrLoad(ctx, key, false, staticLoader("v1"))
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, outcome, err := c.GetOrLoad(ctx, key, false, staticLoader("v2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(Config{MaxEntries: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := Fingerprint("neo4j", "", fmt.Sprintf("g%d", i), "get_graph")
		_, _, err := c.GetOrLoad(ctx, key, false, staticLoader("body"))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Stats().CachedEntries)

	// The oldest entry was evicted.
	_, outcome, err := c.GetOrLoad(ctx, Fingerprint("neo4j", "", "g0", "get_graph"), false, staticLoader("body"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
}

func TestInvalidateGraphScoping(t *testing.T) {
	c := newTestCache(Config{})
	ctx := context.Background()

	keys := map[string]string{
		"target graph":   Fingerprint("neo4j", "neo4j", "g1", "get_graph"),
		"target stats":   Fingerprint("neo4j", "neo4j", "g1", "stats"),
		"list same db":   Fingerprint("neo4j", "neo4j", "", "list_graphs"),
		"other graph":    Fingerprint("neo4j", "neo4j", "g2", "get_graph"),
		"other database": Fingerprint("neo4j", "movies", "g1", "get_graph"),
		"other engine":   Fingerprint("postgres", "neo4j", "g1", "get_graph"),
	}
	for _, key := range keys {
		_, _, err := c.GetOrLoad(ctx, key, false, staticLoader("body"))
		require.NoError(t, err)
	}

	c.InvalidateGraph("neo4j", "neo4j", "g1")

	outcomes := map[string]Outcome{}
	for name, key := range keys {
		_, outcome, err := c.GetOrLoad(ctx, key, false, staticLoader("body"))
		require.NoError(t, err)
		outcomes[name] = outcome
	}

	assert.Equal(t, OutcomeMiss, outcomes["target graph"])
	assert.Equal(t, OutcomeMiss, outcomes["target stats"])
	assert.Equal(t, OutcomeMiss, outcomes["list same db"])
	assert.Equal(t, OutcomeHit, outcomes["other graph"])
	assert.Equal(t, OutcomeHit, outcomes["other database"])
	assert.Equal(t, OutcomeHit, outcomes["other engine"])
}

func TestSingleFlightCoalescesConcurrentMisses(t *testing.T) {
	c := newTestCache(Config{})
	key := Fingerprint("neo4j", "", "big", "get_graph")

	var upstream atomic.Int32
	release := make(chan struct{})
	slow := func(ctx context.Context) ([]byte, error) {
		upstream.Add(1)
		<-release
		return []byte("expensive snapshot"), nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([][]byte, workers)
	started := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			body, _, err := c.GetOrLoad(context.Background(), key, false, slow)
			assert.NoError(t, err)
			results[i] = body
		}(i)
	}

	for i := 0; i < workers; i++ {
		<-started
	}
	// Give every worker a chance to reach the singleflight barrier.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// All waiters received the same snapshot from at most a handful of
	// upstream calls (exactly one when all goroutines arrived in time).
	assert.LessOrEqual(t, upstream.Load(), int32(2))
	for _, body := range results {
		assert.Equal(t, "expensive snapshot", string(body))
	}
}

func TestFingerprintParameterSensitivity(t *testing.T) {
	base := Fingerprint("neo4j", "db", "g1", "neighbors", "node1", "2")
	assert.Equal(t, base, Fingerprint("neo4j", "db", "g1", "neighbors", "node1", "2"))
	assert.NotEqual(t, base, Fingerprint("neo4j", "db", "g1", "neighbors", "node1", "3"))
	assert.NotEqual(t, base, Fingerprint("neo4j", "db", "g1", "neighbors", "node2", "2"))
	assert.NotEqual(t, base, Fingerprint("memgraph", "db", "g1", "neighbors", "node1", "2"))
}
