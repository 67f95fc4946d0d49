// Package activity sequences, persists and fans out the activity stream of
// each event. A subscriber first receives the recent window from storage
// and then live activity, without gaps or duplicates, in (At, ID) order.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// ErrLagged closes a subscription whose queue overflowed. The client is
// expected to reconnect, which replays the recent window.
var ErrLagged = errors.New("activity: subscriber fell behind")

// Outbox is where activity is written as it is staged: a store transaction,
// so the activity commits with the change that produced it, or the store
// itself.
type Outbox interface {
	AppendActivity(ctx context.Context, acts ...hunt.Activity) error
	LastActivityAt(ctx context.Context, eventID string) (time.Time, error)
}

// Store persists and reads back activity.
type Store interface {
	Outbox
	RecentActivity(ctx context.Context, eventID string, limit int) ([]hunt.Activity, error)
	EachActivity(ctx context.Context, eventID string, fn func(hunt.Activity) error) error
}

// stream is the per-event sequencer and subscriber set. Staged batches wait
// in pending, in sequence order, until they are settled; committed ones are
// delivered from the head so subscribers never see activity out of order.
// mu is never held across storage calls.
type stream struct {
	mu      sync.Mutex
	last    time.Time
	pending []*batch
	subs    map[*Subscription]struct{}
}

type batch struct {
	acts      []hunt.Activity
	settled   bool
	committed bool
}

type Broadcaster struct {
	store  Store
	logger *slog.Logger
	replay int
	buffer int
	now    func() time.Time

	mu      sync.Mutex
	streams map[string]*stream
}

// New returns a broadcaster that replays up to replay recent activities to
// new subscribers and disconnects subscribers more than buffer activities
// behind.
func New(store Store, logger *slog.Logger, replay, buffer int) *Broadcaster {
	return &Broadcaster{
		store:   store,
		logger:  logger,
		replay:  replay,
		buffer:  buffer,
		now:     time.Now,
		streams: make(map[string]*stream),
	}
}

func (b *Broadcaster) stream(eventID string) *stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[eventID]
	if !ok {
		st = &stream{subs: make(map[*Subscription]struct{})}
		b.streams[eventID] = st
	}
	return st
}

// Publish stages the drafts directly in the store and delivers them. It
// returns the published activities in order.
func (b *Broadcaster) Publish(ctx context.Context, drafts ...hunt.Activity) ([]hunt.Activity, error) {
	staged, err := b.Stage(ctx, b.store, drafts...)
	if err != nil {
		return nil, err
	}
	staged.Commit()
	return staged.Activities(), nil
}

// Stage assigns IDs and strictly increasing timestamps to the drafts and
// writes them to out. Nothing reaches subscribers until the returned Staged
// is committed; drafts of different events are sequenced independently.
func (b *Broadcaster) Stage(ctx context.Context, out Outbox, drafts ...hunt.Activity) (*Staged, error) {
	var order []string
	byEvent := make(map[string][]hunt.Activity)
	for _, d := range drafts {
		if _, ok := byEvent[d.EventID]; !ok {
			order = append(order, d.EventID)
		}
		byEvent[d.EventID] = append(byEvent[d.EventID], d)
	}

	staged := &Staged{b: b}
	for _, eventID := range order {
		p, err := b.stage(ctx, out, eventID, byEvent[eventID])
		if err != nil {
			staged.Discard()
			return nil, err
		}
		staged.parts = append(staged.parts, p)
	}
	return staged, nil
}

func (b *Broadcaster) stage(ctx context.Context, out Outbox, eventID string, acts []hunt.Activity) (part, error) {
	stored, err := out.LastActivityAt(ctx, eventID)
	if err != nil {
		return part{}, fmt.Errorf("loading activity sequence: %w", err)
	}

	st := b.stream(eventID)
	p := part{st: st, batch: &batch{acts: acts}}
	st.mu.Lock()
	if stored.After(st.last) {
		st.last = stored
	}
	for i := range acts {
		at := b.now().UTC()
		if !at.After(st.last) {
			at = st.last.Add(time.Nanosecond)
		}
		acts[i].At = at
		acts[i].ID = uuid.Must(uuid.NewV7()).String()
		st.last = at
	}
	st.pending = append(st.pending, p.batch)
	st.mu.Unlock()

	if err := out.AppendActivity(ctx, acts...); err != nil {
		b.settle(p, false)
		return part{}, fmt.Errorf("persisting activity: %w", err)
	}
	return p, nil
}

// settle marks a batch committed or discarded and delivers every settled
// batch at the head of the stream's queue.
func (b *Broadcaster) settle(p part, commit bool) {
	st := p.st
	st.mu.Lock()
	defer st.mu.Unlock()
	if p.batch.settled {
		return
	}
	p.batch.settled, p.batch.committed = true, commit

	for len(st.pending) > 0 && st.pending[0].settled {
		head := st.pending[0]
		st.pending[0] = nil
		st.pending = st.pending[1:]
		if !head.committed {
			continue
		}
		for sub := range st.subs {
			if !sub.deliver(head.acts) {
				delete(st.subs, sub)
				b.logger.Warn("activity subscriber lagged", "event", sub.eventID)
			}
		}
	}
}

type part struct {
	st    *stream
	batch *batch
}

// Staged is activity written to an Outbox but not yet delivered. Once the
// write is durable call Commit; if it was rolled back call Discard. Either
// must be called, or later activity of the same event is held back.
type Staged struct {
	b     *Broadcaster
	parts []part
}

// Activities returns the staged activities in sequence order.
func (s *Staged) Activities() []hunt.Activity {
	var out []hunt.Activity
	for _, p := range s.parts {
		out = append(out, p.batch.acts...)
	}
	return out
}

// Commit delivers the staged activity to subscribers.
func (s *Staged) Commit() { s.settle(true) }

// Discard drops the staged activity.
func (s *Staged) Discard() { s.settle(false) }

func (s *Staged) settle(commit bool) {
	for _, p := range s.parts {
		s.b.settle(p, commit)
	}
}

// Subscribe opens a stream of the event's activity: the recent window
// first, then live activity. The subscription ends when ctx is done, when
// Close is called or when the subscriber falls behind; in every case the
// Events channel is closed.
func (b *Broadcaster) Subscribe(ctx context.Context, eventID string) (*Subscription, error) {
	sub := &Subscription{
		eventID: eventID,
		st:      b.stream(eventID),
		limit:   b.replay + b.buffer,
		out:     make(chan hunt.Activity),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	sub.st.mu.Lock()
	sub.st.subs[sub] = struct{}{}
	sub.st.mu.Unlock()

	history, err := b.store.RecentActivity(ctx, eventID, b.replay)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("loading recent activity: %w", err)
	}
	sub.prime(history)

	go sub.pump(ctx)
	return sub, nil
}

// Recent returns up to limit of the event's latest activities.
func (b *Broadcaster) Recent(ctx context.Context, eventID string, limit int) ([]hunt.Activity, error) {
	if limit <= 0 || limit > b.replay {
		limit = b.replay
	}
	return b.store.RecentActivity(ctx, eventID, limit)
}
