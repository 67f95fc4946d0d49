package activity

import (
	"context"
	"sort"
	"sync"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// Subscription is one observer of an event's activity stream.
type Subscription struct {
	eventID string
	st      *stream
	limit   int
	out     chan hunt.Activity
	wake    chan struct{}
	done    chan struct{}

	mu     sync.Mutex
	queue  []hunt.Activity
	last   *hunt.Activity
	primed bool
	closed bool
	err    error
	once   sync.Once
}

// Events delivers activity in (At, ID) order. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan hunt.Activity {
	return s.out
}

// Err reports why the subscription ended: ErrLagged, or nil when it was
// closed or its context ended.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.shut(nil)
	s.st.mu.Lock()
	delete(s.st.subs, s)
	s.st.mu.Unlock()
}

func (s *Subscription) shut(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.err = err
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

// prime merges the stored window with whatever was delivered live since
// registration, dropping duplicates by ID.
func (s *Subscription) prime(history []hunt.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(history)+len(s.queue))
	merged := make([]hunt.Activity, 0, len(history)+len(s.queue))
	for _, a := range append(history, s.queue...) {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		merged = append(merged, a)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })

	s.queue = merged
	if n := len(merged); n > 0 {
		last := merged[n-1]
		s.last = &last
	}
	s.primed = true
	s.signal()
}

// deliver queues live activity. It reports false when the subscription is
// closed or has just been closed for lagging.
func (s *Subscription) deliver(acts []hunt.Activity) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	for _, a := range acts {
		if s.primed && s.last != nil && !s.last.Before(a) {
			continue
		}
		if len(s.queue) >= s.limit {
			s.mu.Unlock()
			s.shut(ErrLagged)
			return false
		}
		s.queue = append(s.queue, a)
		if s.primed {
			last := a
			s.last = &last
		}
	}
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			case <-ctx.Done():
				s.Close()
				return
			}
		}
		a := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- a:
		case <-s.done:
			return
		case <-ctx.Done():
			s.Close()
			return
		}
	}
}
