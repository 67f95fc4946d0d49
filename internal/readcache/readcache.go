// Package readcache serves node graphs and per-request entity lookups on
// the read path. Graphs are cached by event and validated against the
// event's persisted generation on every read, so a regenerated map is never
// served from cache. Ledger writes never go through this package.
package readcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// Source is the canonical store behind the cache.
type Source interface {
	Generation(ctx context.Context, eventID string) (int64, error)
	Graph(ctx context.Context, eventID string) (*hunt.Graph, error)
	Event(ctx context.Context, id string) (hunt.Event, error)
	Team(ctx context.Context, eventID, teamID string) (hunt.Team, error)
}

// Remote is an optional second-level cache shared between processes.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type entry struct {
	graph    *hunt.Graph
	loadedAt time.Time
}

type Cache struct {
	src    Source
	remote Remote
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	loads   singleflight.Group
}

// New returns a graph cache. remote may be nil.
func New(src Source, remote Remote, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		src:     src,
		remote:  remote,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func remoteKey(eventID string, gen int64) string {
	return fmt.Sprintf("hunt:graph:%s:%d", eventID, gen)
}

// Graph returns the event's node graph at its current generation.
func (c *Cache) Graph(ctx context.Context, eventID string) (*hunt.Graph, error) {
	gen, err := c.src.Generation(ctx, eventID)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	e, ok := c.entries[eventID]
	c.mu.RUnlock()
	if ok && e.graph.Generation == gen && c.now().Sub(e.loadedAt) < c.ttl {
		return e.graph, nil
	}

	// The load is shared by every waiter, so one caller going away must
	// not cancel it for the rest.
	v, err, _ := c.loads.Do(remoteKey(eventID, gen), func() (any, error) {
		return c.load(context.WithoutCancel(ctx), eventID, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*hunt.Graph), nil
}

func (c *Cache) load(ctx context.Context, eventID string, gen int64) (*hunt.Graph, error) {
	if g := c.fromRemote(ctx, eventID, gen); g != nil {
		c.keep(g)
		return g, nil
	}

	g, err := c.src.Graph(ctx, eventID)
	if err != nil {
		return nil, err
	}
	c.keep(g)

	if c.remote != nil {
		data, err := json.Marshal(g)
		if err == nil {
			err = c.remote.Set(ctx, remoteKey(eventID, g.Generation), data, c.ttl)
		}
		if err != nil {
			c.logger.Warn("storing graph in remote cache", "event", eventID, "error", err)
		}
	}
	return g, nil
}

func (c *Cache) fromRemote(ctx context.Context, eventID string, gen int64) *hunt.Graph {
	if c.remote == nil {
		return nil
	}
	data, ok, err := c.remote.Get(ctx, remoteKey(eventID, gen))
	if err != nil {
		c.logger.Warn("reading remote graph cache", "event", eventID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var g hunt.Graph
	if err := json.Unmarshal(data, &g); err != nil || g.Generation != gen {
		c.logger.Warn("discarding remote graph", "event", eventID, "generation", gen, "error", err)
		return nil
	}
	return &g
}

// keep stores g unless a newer generation is already cached.
func (c *Cache) keep(g *hunt.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[g.EventID]; ok && cur.graph.Generation > g.Generation {
		return
	}
	c.entries[g.EventID] = entry{graph: g, loadedAt: c.now()}
}

// Invalidate drops the cached graph of an event. Remote entries are keyed by
// generation and expire on their own.
func (c *Cache) Invalidate(eventID string) {
	c.mu.Lock()
	delete(c.entries, eventID)
	c.mu.Unlock()
}
