package readcache

import (
	"context"
	"sync"

	"github.com/playperu/treasurehunt/internal/hunt"
)

type teamKey struct{ eventID, teamID string }

type result[T any] struct {
	v   T
	err error
}

// Batch memoizes entity lookups for the lifetime of one request, so a
// handler that touches the same event or team several times reads it once.
// Values returned by a Batch may be stale by the end of the request and
// must never feed a write.
type Batch struct {
	cache *Cache

	mu     sync.Mutex
	events map[string]result[hunt.Event]
	teams  map[teamKey]result[hunt.Team]
	graphs map[string]result[*hunt.Graph]
}

func (c *Cache) NewBatch() *Batch {
	return &Batch{
		cache:  c,
		events: make(map[string]result[hunt.Event]),
		teams:  make(map[teamKey]result[hunt.Team]),
		graphs: make(map[string]result[*hunt.Graph]),
	}
}

func (b *Batch) Event(ctx context.Context, id string) (hunt.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.events[id]; ok {
		return r.v, r.err
	}
	ev, err := b.cache.src.Event(ctx, id)
	b.events[id] = result[hunt.Event]{ev, err}
	return ev, err
}

// Team returns a copy of the memoized ledger.
func (b *Batch) Team(ctx context.Context, eventID, teamID string) (hunt.Team, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := teamKey{eventID, teamID}
	r, ok := b.teams[k]
	if !ok {
		t, err := b.cache.src.Team(ctx, eventID, teamID)
		r = result[hunt.Team]{t, err}
		b.teams[k] = r
	}
	return r.v.Clone(), r.err
}

func (b *Batch) Graph(ctx context.Context, eventID string) (*hunt.Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.graphs[eventID]; ok {
		return r.v, r.err
	}
	g, err := b.cache.Graph(ctx, eventID)
	b.graphs[eventID] = result[*hunt.Graph]{g, err}
	return g, err
}

type batchKey struct{}

// WithBatch returns a context carrying b.
func WithBatch(ctx context.Context, b *Batch) context.Context {
	return context.WithValue(ctx, batchKey{}, b)
}

// FromContext returns the request's batch, or nil.
func FromContext(ctx context.Context) *Batch {
	b, _ := ctx.Value(batchKey{}).(*Batch)
	return b
}
