package activity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/playperu/treasurehunt/internal/hunt"
)

type memStore struct {
	mu       sync.Mutex
	acts     []hunt.Activity
	onRecent func()
}

func (m *memStore) AppendActivity(_ context.Context, acts ...hunt.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acts = append(m.acts, acts...)
	return nil
}

func (m *memStore) RecentActivity(_ context.Context, eventID string, limit int) ([]hunt.Activity, error) {
	if m.onRecent != nil {
		m.onRecent()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []hunt.Activity
	for _, a := range m.acts {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) LastActivityAt(_ context.Context, eventID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	for _, a := range m.acts {
		if a.EventID == eventID && a.At.After(last) {
			last = a.At
		}
	}
	return last, nil
}

func (m *memStore) EachActivity(ctx context.Context, eventID string, fn func(hunt.Activity) error) error {
	acts, _ := m.RecentActivity(ctx, eventID, 1<<30)
	for _, a := range acts {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

var frozen = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestBroadcaster(store Store, replay, buffer int) *Broadcaster {
	b := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), replay, buffer)
	b.now = func() time.Time { return frozen }
	return b
}

func draft(n int) hunt.Activity {
	a, err := hunt.NewActivity("ev1", "t1", hunt.ActivityNodeCompleted, map[string]int{"n": n})
	if err != nil {
		panic(err)
	}
	return a
}

func payloads(acts []hunt.Activity) []string {
	var out []string
	for _, a := range acts {
		out = append(out, string(a.Payload))
	}
	return out
}

func expectNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case a := <-sub.Events():
		t.Fatalf("unexpected activity %s", a.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func receive(t *testing.T, sub *Subscription, n int) []hunt.Activity {
	t.Helper()
	var got []hunt.Activity
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case a, ok := <-sub.Events():
			if !ok {
				t.Fatalf("stream closed after %d of %d activities (err %v)", len(got), n, sub.Err())
			}
			got = append(got, a)
		case <-timeout:
			t.Fatalf("received %d of %d activities", len(got), n)
		}
	}
	return got
}

func TestPublishSequencesTimestamps(t *testing.T) {
	b := newTestBroadcaster(&memStore{}, 10, 10)

	acts, err := b.Publish(context.Background(), draft(1), draft(2), draft(3))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(acts); i++ {
		if !acts[i-1].At.Before(acts[i].At) {
			t.Errorf("activity %d at %v not after %v", i, acts[i].At, acts[i-1].At)
		}
		if acts[i].ID == "" || acts[i].ID == acts[i-1].ID {
			t.Errorf("activity %d has id %q", i, acts[i].ID)
		}
	}
}

func TestPublishContinuesAfterRestart(t *testing.T) {
	store := &memStore{}
	later := frozen.Add(time.Hour)
	store.acts = []hunt.Activity{{ID: "old", EventID: "ev1", Type: hunt.ActivityEventLaunched, At: later}}

	b := newTestBroadcaster(store, 10, 10)
	acts, err := b.Publish(context.Background(), draft(1))
	if err != nil {
		t.Fatal(err)
	}
	if !acts[0].At.After(later) {
		t.Errorf("new activity at %v, want after %v", acts[0].At, later)
	}
}

func TestStagedActivityWaitsForCommit(t *testing.T) {
	store := &memStore{}
	b := newTestBroadcaster(store, 10, 10)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	first, err := b.Stage(ctx, store, draft(1))
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Stage(ctx, store, draft(2))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Activities()[0].Before(second.Activities()[0]) {
		t.Fatal("staged activity not sequenced in staging order")
	}

	// The later batch settles first; it is held until the earlier one is.
	second.Commit()
	expectNothing(t, sub)

	first.Commit()
	got := receive(t, sub, 2)
	if p := payloads(got); p[0] != `{"n":1}` || p[1] != `{"n":2}` {
		t.Errorf("payloads = %v", p)
	}
}

func TestDiscardedActivityIsNotDelivered(t *testing.T) {
	store := &memStore{}
	b := newTestBroadcaster(store, 10, 10)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	rolledBack, err := b.Stage(ctx, &memStore{}, draft(1))
	if err != nil {
		t.Fatal(err)
	}
	kept, err := b.Stage(ctx, store, draft(2))
	if err != nil {
		t.Fatal(err)
	}
	kept.Commit()
	expectNothing(t, sub)

	rolledBack.Discard()
	rolledBack.Discard()
	got := receive(t, sub, 1)
	if got[0].ID != kept.Activities()[0].ID {
		t.Errorf("delivered %s, want the committed activity", got[0].Payload)
	}
	expectNothing(t, sub)
}

func TestSubscribeReplaysThenStreams(t *testing.T) {
	store := &memStore{}
	b := newTestBroadcaster(store, 10, 10)
	ctx := context.Background()

	if _, err := b.Publish(ctx, draft(1), draft(2)); err != nil {
		t.Fatal(err)
	}
	sub, err := b.Subscribe(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if _, err := b.Publish(ctx, draft(3)); err != nil {
		t.Fatal(err)
	}
	got := receive(t, sub, 3)
	for i, want := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		if string(got[i].Payload) != want {
			t.Errorf("activity %d payload = %s, want %s", i, got[i].Payload, want)
		}
	}
}

// An activity published between registering the subscriber and reading the
// recent window shows up in both; it must be delivered exactly once.
func TestSubscribeMergesOverlapWithoutDuplicates(t *testing.T) {
	store := &memStore{}
	b := newTestBroadcaster(store, 10, 10)
	ctx := context.Background()

	if _, err := b.Publish(ctx, draft(1)); err != nil {
		t.Fatal(err)
	}
	var once sync.Once
	store.onRecent = func() {
		once.Do(func() {
			if _, err := b.Publish(ctx, draft(2)); err != nil {
				t.Error(err)
			}
		})
	}

	sub, err := b.Subscribe(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if _, err := b.Publish(ctx, draft(3)); err != nil {
		t.Fatal(err)
	}

	got := receive(t, sub, 3)
	seen := map[string]bool{}
	for i, a := range got {
		if seen[a.ID] {
			t.Errorf("duplicate activity %s", a.ID)
		}
		seen[a.ID] = true
		if i > 0 && !got[i-1].Before(a) {
			t.Errorf("activity %d out of order", i)
		}
	}

	select {
	case a := <-sub.Events():
		t.Errorf("unexpected extra activity %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	b := newTestBroadcaster(&memStore{}, 2, 3)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	for i := range 20 {
		if _, err := b.Publish(ctx, draft(i)); err != nil {
			t.Fatal(err)
		}
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if ok {
				continue
			}
			if !errors.Is(sub.Err(), ErrLagged) {
				t.Fatalf("Err = %v, want ErrLagged", sub.Err())
			}
			return
		case <-timeout:
			t.Fatal("lagging subscription was not closed")
		}
	}
}

func TestCloseEndsStream(t *testing.T) {
	b := newTestBroadcaster(&memStore{}, 10, 10)

	sub, err := b.Subscribe(context.Background(), "ev1")
	if err != nil {
		t.Fatal(err)
	}
	sub.Close()
	sub.Close()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("received activity after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Events not closed")
	}
	if sub.Err() != nil {
		t.Errorf("Err = %v, want nil", sub.Err())
	}
	if _, err := b.Publish(context.Background(), draft(1)); err != nil {
		t.Fatalf("publishing after close: %v", err)
	}
}

func TestContextEndsStream(t *testing.T) {
	b := newTestBroadcaster(&memStore{}, 10, 10)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := b.Subscribe(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("received activity after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("Events not closed after cancel")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	b := newTestBroadcaster(&memStore{}, 10, 10)
	ctx := context.Background()

	published, err := b.Publish(ctx, draft(1), draft(2), draft(3))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := b.WriteArchive(ctx, &buf, "ev1"); err != nil {
		t.Fatal(err)
	}
	got, err := ReadArchive(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(published) {
		t.Fatalf("archive has %d activities, want %d", len(got), len(published))
	}
	for i := range got {
		if got[i].ID != published[i].ID || !got[i].At.Equal(published[i].At) {
			t.Errorf("activity %d = %+v, want %+v", i, got[i], published[i])
		}
	}
}
