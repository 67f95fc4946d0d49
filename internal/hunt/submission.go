package hunt

import (
	"strings"
	"time"
)

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "PENDING"
	SubmissionApproved SubmissionStatus = "APPROVED"
	SubmissionDenied   SubmissionStatus = "DENIED"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionDeny
}

// Submission is a team's claim that it completed a node's objective.
type Submission struct {
	ID          string           `json:"id"`
	EventID     string           `json:"eventId"`
	TeamID      string           `json:"teamId"`
	NodeID      string           `json:"nodeId"`
	Proof       string           `json:"proof"`
	Status      SubmissionStatus `json:"status"`
	SubmittedBy string           `json:"submittedBy"`
	ReviewedBy  string           `json:"reviewedBy,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	ReviewedAt  *time.Time       `json:"reviewedAt,omitempty"`
}

// Review moves a pending submission to its terminal status. Denials need a
// reason; anything but a pending submission is a Conflict.
func (s *Submission) Review(d Decision, reviewer, reason string, at time.Time) error {
	if !d.Valid() {
		return Errorf(CodeInvalidInput, "decision must be approve or deny")
	}
	if s.Status != SubmissionPending {
		return Errorf(CodeConflict, "submission %q already %s", s.ID, strings.ToLower(string(s.Status)))
	}
	reason = strings.TrimSpace(reason)
	if d == DecisionDeny && reason == "" {
		return Errorf(CodeInvalidInput, "a reason is required to deny a submission")
	}
	if d == DecisionApprove {
		s.Status = SubmissionApproved
	} else {
		s.Status = SubmissionDenied
	}
	s.ReviewedBy = reviewer
	s.Reason = reason
	s.ReviewedAt = &at
	return nil
}
