package engine

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/store"
)

type submissionPayload struct {
	SubmissionID string `json:"submissionId"`
	NodeID       string `json:"nodeId"`
	By           string `json:"by"`
	Reason       string `json:"reason,omitempty"`
}

// Submit records a team's claim that it completed a node's objective. The
// node must be workable for the team and have no other pending submission.
func (e *Engine) Submit(ctx context.Context, caller hunt.Caller, eventID, teamID, nodeID, proof string) (sub hunt.Submission, err error) {
	ctx, span := e.start(ctx, "Submit",
		attribute.String("event.id", eventID),
		attribute.String("team.id", teamID),
		attribute.String("node.id", nodeID),
	)
	defer func() { finish(span, err) }()

	proof = strings.TrimSpace(proof)
	if proof == "" {
		return hunt.Submission{}, hunt.Errorf(hunt.CodeInvalidInput, "proof is required")
	}
	g, err := e.graphs.Graph(ctx, eventID)
	if err != nil {
		return hunt.Submission{}, err
	}
	n, ok := g.Node(nodeID)
	if !ok {
		return hunt.Submission{}, hunt.Errorf(hunt.CodeNotFound, "node %q not found", nodeID)
	}
	if n.Objective == nil {
		return hunt.Submission{}, hunt.Errorf(hunt.CodeInvalidInput, "node %q has no objective to submit", nodeID)
	}

	err = e.inTx(ctx, func(tx *store.Tx, out *outbox) error {
		ev, err := tx.Event(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ev.Mutable(); err != nil {
			return err
		}
		t, err := tx.Team(ctx, eventID, teamID)
		if err != nil {
			return err
		}
		if err := requireMember(&t, caller); err != nil {
			return err
		}
		if err := g.CheckWorkable(&t, nodeID); err != nil {
			return err
		}
		sub = hunt.Submission{
			EventID:     eventID,
			TeamID:      teamID,
			NodeID:      nodeID,
			Proof:       proof,
			Status:      hunt.SubmissionPending,
			SubmittedBy: caller.ID,
			CreatedAt:   e.now(),
		}
		if err := tx.InsertSubmission(ctx, &sub); err != nil {
			return err
		}
		return out.record(ctx, eventID, teamID, hunt.ActivitySubmissionCreated, submissionPayload{
			SubmissionID: sub.ID,
			NodeID:       nodeID,
			By:           caller.ID,
		})
	})
	if err != nil {
		return hunt.Submission{}, err
	}
	return sub, nil
}

// ReviewResult is the reviewed submission and, for approvals, the ledger
// after the completion was credited.
type ReviewResult struct {
	Submission hunt.Submission `json:"submission"`
	Result     *Result         `json:"result,omitempty"`
}

// Review approves or denies a pending submission. The status change and the
// ledger credit commit together, so of two racing approvals exactly one
// grants the reward and the other fails with Conflict.
func (e *Engine) Review(ctx context.Context, caller hunt.Caller, eventID, submissionID string, decision hunt.Decision, reason string) (res ReviewResult, err error) {
	ctx, span := e.start(ctx, "Review",
		attribute.String("event.id", eventID),
		attribute.String("submission.id", submissionID),
		attribute.String("decision", string(decision)),
	)
	defer func() { finish(span, err) }()

	if err := requireCaller(caller); err != nil {
		return ReviewResult{}, err
	}
	if !caller.CanReview() {
		return ReviewResult{}, hunt.Errorf(hunt.CodeUnauthorized, "reviewer role required")
	}
	if !decision.Valid() {
		return ReviewResult{}, hunt.Errorf(hunt.CodeInvalidInput, "decision must be approve or deny")
	}
	g, err := e.graphs.Graph(ctx, eventID)
	if err != nil {
		return ReviewResult{}, err
	}

	err = e.inTx(ctx, func(tx *store.Tx, out *outbox) error {
		res = ReviewResult{}

		sub, err := tx.Submission(ctx, submissionID)
		if err != nil {
			return err
		}
		if sub.EventID != eventID {
			return hunt.Errorf(hunt.CodeNotFound, "submission %q not found", submissionID)
		}
		ev, err := tx.Event(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ev.Mutable(); err != nil {
			return err
		}
		if err := sub.Review(decision, caller.ID, reason, e.now()); err != nil {
			return err
		}
		if decision == hunt.DecisionApprove {
			t, err := tx.Team(ctx, eventID, sub.TeamID)
			if err != nil {
				return err
			}
			// A sibling or a concurrent approval may have taken the node
			// since the submission was made. Denials stay possible.
			if err := g.CheckWorkable(&t, sub.NodeID); err != nil {
				return hunt.Errorf(hunt.CodeConflict, "cannot approve submission %q: %s", sub.ID, err)
			}
		}
		if err := tx.FinishSubmission(ctx, sub); err != nil {
			return err
		}
		res.Submission = sub

		typ := hunt.ActivitySubmissionApproved
		if decision == hunt.DecisionDeny {
			typ = hunt.ActivitySubmissionDenied
		}
		if err := out.record(ctx, eventID, sub.TeamID, typ, submissionPayload{
			SubmissionID: sub.ID,
			NodeID:       sub.NodeID,
			By:           caller.ID,
			Reason:       sub.Reason,
		}); err != nil {
			return err
		}
		if decision == hunt.DecisionDeny {
			return nil
		}

		credit, err := e.ledger.ApplyNodeCompletion(ctx, tx, g, sub.TeamID, sub.NodeID, sub.ID)
		if err != nil {
			return err
		}
		if credit.Replayed {
			return hunt.Errorf(hunt.CodeConflict, "submission %q was already credited", sub.ID)
		}
		res.Result = resultOf(credit)
		return out.changes(ctx, eventID, sub.TeamID, credit.Changes)
	})
	if err != nil {
		return ReviewResult{}, err
	}

	sub := res.Submission
	e.logger.Info("submission reviewed",
		"event", eventID, "submission", sub.ID, "team", sub.TeamID,
		"node", sub.NodeID, "decision", decision, "by", caller.ID)
	return res, nil
}

// TeamSubmissions lists a team's submissions. Team members and reviewers
// may read them.
func (e *Engine) TeamSubmissions(ctx context.Context, caller hunt.Caller, eventID, teamID string) (subs []hunt.Submission, err error) {
	ctx, span := e.start(ctx, "TeamSubmissions", attribute.String("event.id", eventID), attribute.String("team.id", teamID))
	defer func() { finish(span, err) }()

	t, err := e.team(ctx, eventID, teamID)
	if err != nil {
		return nil, err
	}
	if !caller.CanReview() {
		if err := requireMember(&t, caller); err != nil {
			return nil, err
		}
	}
	return e.store.TeamSubmissions(ctx, eventID, teamID)
}
