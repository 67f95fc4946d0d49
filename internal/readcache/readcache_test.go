package readcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/playperu/treasurehunt/internal/hunt"
)

type fakeSource struct {
	mu     sync.Mutex
	gen    int64
	loads  atomic.Int32
	teams  atomic.Int32
	events atomic.Int32
	gate   chan struct{}
}

func (f *fakeSource) Generation(_ context.Context, eventID string) (int64, error) {
	if eventID != "ev1" {
		return 0, hunt.Errorf(hunt.CodeNotFound, "event %q not found", eventID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen, nil
}

func (f *fakeSource) Graph(ctx context.Context, eventID string) (*hunt.Graph, error) {
	f.loads.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()
	return hunt.NewGraph(eventID, gen, []hunt.Node{{ID: "start", Kind: hunt.NodeStart}})
}

func (f *fakeSource) Event(_ context.Context, id string) (hunt.Event, error) {
	f.events.Add(1)
	return hunt.Event{ID: id, Status: hunt.EventStatusActive}, nil
}

func (f *fakeSource) Team(_ context.Context, eventID, teamID string) (hunt.Team, error) {
	f.teams.Add(1)
	return hunt.NewTeam(teamID, eventID, "Foxes", []string{"u1"}, ""), nil
}

func (f *fakeSource) bump() {
	f.mu.Lock()
	f.gen++
	f.mu.Unlock()
}

type fakeRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func (r *fakeRemote) Get(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	v, ok := r.data[key]
	return v, ok, nil
}

func (r *fakeRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGraphCachedUntilGenerationChanges(t *testing.T) {
	src := &fakeSource{gen: 1}
	c := New(src, nil, time.Hour, discardLogger())
	ctx := context.Background()

	for range 3 {
		g, err := c.Graph(ctx, "ev1")
		if err != nil {
			t.Fatal(err)
		}
		if g.Generation != 1 {
			t.Fatalf("generation = %d, want 1", g.Generation)
		}
	}
	if n := src.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}

	src.bump()
	g, err := c.Graph(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Generation != 2 {
		t.Errorf("generation after bump = %d, want 2", g.Generation)
	}
	if n := src.loads.Load(); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestGraphExpiresAfterTTL(t *testing.T) {
	src := &fakeSource{gen: 1}
	c := New(src, nil, time.Minute, discardLogger())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := c.Graph(ctx, "ev1"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Second)
	if _, err := c.Graph(ctx, "ev1"); err != nil {
		t.Fatal(err)
	}
	if n := src.loads.Load(); n != 1 {
		t.Fatalf("loads within TTL = %d, want 1", n)
	}
	now = now.Add(time.Minute)
	if _, err := c.Graph(ctx, "ev1"); err != nil {
		t.Fatal(err)
	}
	if n := src.loads.Load(); n != 2 {
		t.Errorf("loads after TTL = %d, want 2", n)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	src := &fakeSource{gen: 1}
	c := New(src, nil, time.Hour, discardLogger())
	ctx := context.Background()

	if _, err := c.Graph(ctx, "ev1"); err != nil {
		t.Fatal(err)
	}
	c.Invalidate("ev1")
	if _, err := c.Graph(ctx, "ev1"); err != nil {
		t.Fatal(err)
	}
	if n := src.loads.Load(); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	src := &fakeSource{gen: 1, gate: make(chan struct{})}
	c := New(src, nil, time.Hour, discardLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Graph(ctx, "ev1")
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := src.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestSharedLoadSurvivesFirstCallerCancel(t *testing.T) {
	src := &fakeSource{gen: 1, gate: make(chan struct{})}
	c := New(src, nil, time.Hour, discardLogger())

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Graph(firstCtx, "ev1")
		first <- err
	}()
	for src.loads.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	go func() {
		_, err := c.Graph(context.Background(), "ev1")
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(src.gate)

	if err := <-second; err != nil {
		t.Fatalf("waiting caller failed with the first caller's cancellation: %v", err)
	}
	<-first
	if n := src.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestRemoteServesOtherProcesses(t *testing.T) {
	src := &fakeSource{gen: 3}
	remote := &fakeRemote{data: map[string][]byte{}}
	ctx := context.Background()

	first := New(src, remote, time.Hour, discardLogger())
	if _, err := first.Graph(ctx, "ev1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := remote.data["hunt:graph:ev1:3"]; !ok {
		t.Fatalf("remote keys = %v", remote.data)
	}

	second := New(src, remote, time.Hour, discardLogger())
	g, err := second.Graph(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Generation != 3 || g.Len() != 1 {
		t.Errorf("graph = gen %d len %d", g.Generation, g.Len())
	}
	if n := src.loads.Load(); n != 1 {
		t.Errorf("store loads = %d, want 1", n)
	}
}

func TestGraphUnknownEvent(t *testing.T) {
	c := New(&fakeSource{gen: 1}, nil, time.Hour, discardLogger())
	if _, err := c.Graph(context.Background(), "nope"); !errors.Is(err, hunt.ErrNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestBatchMemoizes(t *testing.T) {
	src := &fakeSource{gen: 1}
	c := New(src, nil, time.Hour, discardLogger())
	ctx := WithBatch(context.Background(), c.NewBatch())
	b := FromContext(ctx)
	if b == nil {
		t.Fatal("batch missing from context")
	}

	for range 3 {
		if _, err := b.Event(ctx, "ev1"); err != nil {
			t.Fatal(err)
		}
		team, err := b.Team(ctx, "ev1", "t1")
		if err != nil {
			t.Fatal(err)
		}
		team.Pot = 99 // callers get copies
	}
	if src.events.Load() != 1 || src.teams.Load() != 1 {
		t.Errorf("events = %d teams = %d, want 1 and 1", src.events.Load(), src.teams.Load())
	}
	team, _ := b.Team(ctx, "ev1", "t1")
	if team.Pot != 0 {
		t.Errorf("memoized team was mutated: pot = %d", team.Pot)
	}
	if FromContext(context.Background()) != nil {
		t.Error("FromContext on a bare context should be nil")
	}
}
