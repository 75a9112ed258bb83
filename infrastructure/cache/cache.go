// Package cache implements the process-local result cache: a bounded LRU of
// serialised snapshots keyed by request fingerprint, with TTL expiry,
// single-flight miss coalescing, per-graph invalidation and observable
// counters.
package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Outcome describes how a cached read was served. It surfaces verbatim in
// the X-Cache response header.
type Outcome string

const (
	OutcomeHit    Outcome = "HIT"
	OutcomeMiss   Outcome = "MISS"
	OutcomeBypass Outcome = "BYPASS"
	OutcomeNone   Outcome = "N/A"
)

// fingerprint fields are joined with a separator that cannot appear in
// engine or operation names and is vanishingly unlikely in identifiers.
const sep = "\x1f"

// Fingerprint builds the cache key for one read:
// (engine, database, graph_id, operation, hash of remaining parameters).
// Identical fingerprints must yield identical snapshots.
func Fingerprint(engine, database, graphID, operation string, params ...string) string {
	h := fnv.New64a()
	for _, p := range params {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return strings.Join([]string{engine, database, graphID, operation, fmt.Sprintf("%016x", h.Sum64())}, sep)
}

// Config bounds the cache.
type Config struct {
	// TTL after which an entry expires regardless of use. Never above five
	// minutes; config clamps before it gets here.
	TTL time.Duration
	// MaxEntries caps the LRU; the oldest entry is evicted beyond it.
	MaxEntries int
}

// Stats is the counter snapshot exposed on the introspection endpoint.
type Stats struct {
	CachedEntries int   `json:"cachedGraphs"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Bypasses      int64 `json:"bypasses"`
}

// ResultCache maps fingerprints to serialised result snapshots. Snapshots
// are immutable byte slices, so a cached read is immune to concurrent
// deletion of its underlying graph.
type ResultCache struct {
	lru    *expirable.LRU[string, []byte]
	group  singleflight.Group
	logger *zap.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	bypasses atomic.Int64
}

// New creates a ResultCache with the given bounds.
func New(cfg Config, logger *zap.Logger) *ResultCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &ResultCache{
		lru:    expirable.NewLRU[string, []byte](cfg.MaxEntries, nil, cfg.TTL),
		logger: logger,
	}
}

// Loader produces a fresh serialised snapshot on a cache miss or bypass.
type Loader func(ctx context.Context) ([]byte, error)

// GetOrLoad serves the snapshot for key.
//
// On a hit the cached snapshot is returned. On a miss, concurrent callers
// for the same key coalesce into one upstream call and all receive the same
// snapshot. With bypass set, the upstream is always called and the cached
// entry refreshed. Errors are never cached, so a failed load stays cheap to
// retry.
func (c *ResultCache) GetOrLoad(ctx context.Context, key string, bypass bool, load Loader) ([]byte, Outcome, error) {
	if bypass {
		c.bypasses.Add(1)
		body, err := c.loadShared(ctx, key, load)
		if err != nil {
			return nil, OutcomeBypass, err
		}
		return body, OutcomeBypass, nil
	}

	if body, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return body, OutcomeHit, nil
	}

	c.misses.Add(1)
	body, err := c.loadShared(ctx, key, load)
	if err != nil {
		return nil, OutcomeMiss, err
	}
	return body, OutcomeMiss, nil
}

// loadShared funnels concurrent loads of one key through a single upstream
// call and stores the result.
func (c *ResultCache) loadShared(ctx context.Context, key string, load Loader) ([]byte, error) {
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		body, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, body)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("coalesced concurrent cache load", zap.String("key", key))
	}
	return v.([]byte), nil
}

// InvalidateGraph drops every entry whose fingerprint references the
// (engine, database, graphID) triple, including list-level entries for the
// same engine and database (their fingerprints carry an empty graph id).
// Called on every write that touches the triple.
func (c *ResultCache) InvalidateGraph(engine, database, graphID string) {
	prefix := engine + sep + database + sep
	removed := 0
	for _, key := range c.lru.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		fields := strings.SplitN(key, sep, 5)
		if len(fields) < 4 {
			continue
		}
		if entryGraph := fields[2]; entryGraph == graphID || entryGraph == "" {
			c.lru.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("invalidated cache entries",
			zap.String("engine", engine),
			zap.String("database", database),
			zap.String("graphID", graphID),
			zap.Int("removed", removed),
		)
	}
}

// Stats returns a point-in-time snapshot of the counters.
func (c *ResultCache) Stats() Stats {
	return Stats{
		CachedEntries: c.lru.Len(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Bypasses:      c.bypasses.Load(),
	}
}
