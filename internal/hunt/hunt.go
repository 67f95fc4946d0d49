// Package hunt defines the treasure hunt domain: node graphs, team ledgers,
// submissions, buffs, checkpoint trades and the activity they produce.
// It does no I/O; storage and transport live in other packages.
package hunt

import "time"

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
)

// Event is one running competition. Generation is bumped every time the
// node graph is regenerated and is the only signal caches use to detect a
// stale topology.
type Event struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     EventStatus `json:"status"`
	Generation int64       `json:"generation"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Mutable reports whether team ledgers of the event accept mutations.
func (e Event) Mutable() error {
	switch e.Status {
	case EventStatusActive:
		return nil
	case EventStatusCompleted:
		return Errorf(CodeInvalidState, "event has finished")
	default:
		return Errorf(CodeInvalidState, "event has not started")
	}
}

// Caller is the identity behind an action, regardless of whether it came
// from a web session or was relayed by the chat bot.
type Caller struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
	Source string   `json:"source"`
}

const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
)

func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanReview reports review authority. Admins can always review.
func (c Caller) CanReview() bool {
	return c.HasRole(RoleReviewer) || c.HasRole(RoleAdmin)
}
