package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/playperu/treasurehunt/internal/activity"
	"github.com/playperu/treasurehunt/internal/database"
	"github.com/playperu/treasurehunt/internal/engine"
	"github.com/playperu/treasurehunt/internal/hunt"
	"github.com/playperu/treasurehunt/internal/migrations"
	"github.com/playperu/treasurehunt/internal/readcache"
	"github.com/playperu/treasurehunt/internal/store"
)

var (
	admin    = hunt.Caller{ID: "admin-1", Roles: []string{hunt.RoleAdmin}, Source: "staff"}
	reviewer = hunt.Caller{ID: "rev-1", Roles: []string{hunt.RoleReviewer}, Source: "staff"}
	ana      = hunt.Caller{ID: "u1", Name: "Ana", Source: "web"}
	bruno    = hunt.Caller{ID: "u2", Name: "Bruno", Source: "chat", Roles: []string{"team-owls"}}
)

func testNodes() []hunt.Node {
	return []hunt.Node{
		{ID: "start", Kind: hunt.NodeStart},
		{
			ID: "x", Kind: hunt.NodeChallenge, Requires: []string{"start"},
			Objective: &hunt.Objective{Type: "kill_count", Quantity: 100},
			Rewards:   hunt.Reward{Currency: 5_000_000},
		},
		{
			ID: "y", Kind: hunt.NodeChallenge, Requires: []string{"x"},
			Objective: &hunt.Objective{Type: "item_collect", Quantity: 10},
			Rewards:   hunt.Reward{Currency: 1_000_000},
		},
		{
			ID: "armory", Kind: hunt.NodeChallenge, Requires: []string{"start"},
			Objective: &hunt.Objective{Type: "item_collect", Quantity: 5},
			Rewards: hunt.Reward{
				Keys:  []hunt.KeyGrant{{Color: "red", Quantity: 3}, {Color: "blue", Quantity: 1}},
				Buffs: []hunt.BuffGrant{{Type: "half", Objectives: []string{"kill_count"}, Reduction: 0.5, Uses: 1}},
			},
		},
		{
			ID: "cp", Kind: hunt.NodeCheckpoint, Requires: []string{"armory"},
			Offers: []hunt.Offer{
				{ID: "deal", Cost: []hunt.KeyCost{{Color: "red", Quantity: 2}, {Color: "blue", Quantity: 1}}, Payout: 2_000_000},
				{ID: "alt", Cost: []hunt.KeyCost{{Color: hunt.AnyColor, Quantity: 1}}, Payout: 500_000},
			},
		},
		{
			ID: "cave-a", Kind: hunt.NodeChallenge, GroupID: "cave", Tier: "easy", Requires: []string{"x"},
			Objective: &hunt.Objective{Type: "kill_count", Quantity: 40},
			Rewards:   hunt.Reward{Currency: 100_000},
		},
		{
			ID: "cave-b", Kind: hunt.NodeChallenge, GroupID: "cave", Tier: "hard", Requires: []string{"x"},
			Objective: &hunt.Objective{Type: "boss_kill", Quantity: 1},
			Rewards:   hunt.Reward{Currency: 400_000},
		},
	}
}

type fixture struct {
	eng *engine.Engine
	st  *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(db)
	graphs := readcache.New(st, nil, time.Minute, logger)
	bc := activity.New(st, logger, 100, 100)
	return &fixture{eng: engine.New(st, graphs, bc, logger), st: st}
}

// launched returns a running event "ev1" with teams "foxes" (member u1) and
// "owls" (chat role team-owls).
func launched(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.eng.CreateEvent(ctx, admin, "ev1", "Spring Hunt"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.RegenerateMap(ctx, admin, "ev1", testNodes()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.CreateTeam(ctx, admin, "ev1", "foxes", "Foxes", []string{"u1"}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.CreateTeam(ctx, admin, "ev1", "owls", "Owls", nil, "team-owls"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Launch(ctx, admin, "ev1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	return f
}

func (f *fixture) complete(t *testing.T, caller hunt.Caller, teamID, nodeID string) engine.ReviewResult {
	t.Helper()
	ctx := context.Background()
	sub, err := f.eng.Submit(ctx, caller, "ev1", teamID, nodeID, "https://proof.example/"+nodeID)
	if err != nil {
		t.Fatalf("Submit %s: %v", nodeID, err)
	}
	res, err := f.eng.Review(ctx, reviewer, "ev1", sub.ID, hunt.DecisionApprove, "")
	if err != nil {
		t.Fatalf("approving %s: %v", nodeID, err)
	}
	return res
}

func (f *fixture) team(t *testing.T, teamID string) engine.TeamView {
	t.Helper()
	v, err := f.eng.Team(context.Background(), "ev1", teamID)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func workableIDs(v engine.TeamView) []string {
	var ids []string
	for _, n := range v.Workable {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestLaunchBootstrapsTeams(t *testing.T) {
	f := launched(t)

	for _, id := range []string{"foxes", "owls"} {
		v := f.team(t, id)
		if !slices.Equal(v.Team.Completed, []string{"start"}) {
			t.Errorf("%s completed = %v, want [start]", id, v.Team.Completed)
		}
		if got := workableIDs(v); !slices.Equal(got, []string{"x", "armory"}) {
			t.Errorf("%s workable = %v, want [x armory]", id, got)
		}
	}

	_, err := f.eng.Launch(context.Background(), admin, "ev1")
	if !errors.Is(err, hunt.ErrInvalidState) {
		t.Errorf("second Launch err = %v, want InvalidState", err)
	}
}

func TestScenarioACompletionCreditsAndUnlocks(t *testing.T) {
	f := launched(t)

	res := f.complete(t, ana, "foxes", "x")
	if res.Submission.Status != hunt.SubmissionApproved || res.Submission.ReviewedBy != reviewer.ID {
		t.Errorf("submission = %+v", res.Submission)
	}
	team := res.Result.Team
	if team.Pot != 5_000_000 {
		t.Errorf("pot = %d, want 5000000", team.Pot)
	}
	if !team.HasCompleted("x") {
		t.Error("x not completed")
	}
	if !slices.Equal(res.Result.Unlocked, []string{"y", "cave-a", "cave-b"}) {
		t.Errorf("unlocked = %v", res.Result.Unlocked)
	}

	acts, err := f.eng.RecentActivity(context.Background(), "ev1", 100)
	if err != nil {
		t.Fatal(err)
	}
	var types []hunt.ActivityType
	for _, a := range acts {
		if a.TeamID == "foxes" {
			types = append(types, a.Type)
		}
	}
	for _, want := range []hunt.ActivityType{
		hunt.ActivitySubmissionCreated,
		hunt.ActivitySubmissionApproved,
		hunt.ActivityNodeCompleted,
		hunt.ActivityResourceGained,
		hunt.ActivityNodesUnlocked,
	} {
		if !slices.Contains(types, want) {
			t.Errorf("activity %v missing %s", types, want)
		}
	}
}

func TestScenarioBCheckpointTrade(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	f.complete(t, ana, "foxes", "armory")
	v := f.team(t, "foxes")
	if len(v.Checkpoints) != 1 || v.Checkpoints[0].ID != "cp" {
		t.Fatalf("checkpoints = %+v", v.Checkpoints)
	}

	res, err := f.eng.PurchaseCheckpoint(ctx, ana, "ev1", "foxes", "cp", "deal", "")
	if err != nil {
		t.Fatalf("PurchaseCheckpoint: %v", err)
	}
	if res.Team.Keys["red"] != 1 || res.Team.Keys["blue"] != 0 {
		t.Errorf("keys = %v, want red:1 blue:0", res.Team.Keys)
	}
	if res.Team.Pot != 2_000_000 {
		t.Errorf("pot = %d, want 2000000", res.Team.Pot)
	}

	_, err = f.eng.PurchaseCheckpoint(ctx, ana, "ev1", "foxes", "cp", "alt", "")
	if !errors.Is(err, hunt.ErrConflict) {
		t.Errorf("second trade err = %v, want Conflict", err)
	}
	after := f.team(t, "foxes")
	if after.Team.Pot != 2_000_000 || after.Team.Keys["red"] != 1 {
		t.Errorf("ledger changed by rejected trade: pot %d keys %v", after.Team.Pot, after.Team.Keys)
	}
	if len(after.Checkpoints) != 0 {
		t.Errorf("traded checkpoint still listed: %+v", after.Checkpoints)
	}
}

func TestScenarioCBuffApplication(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	f.complete(t, ana, "foxes", "armory")
	v := f.team(t, "foxes")
	if len(v.Team.Buffs) != 1 {
		t.Fatalf("buffs = %+v", v.Team.Buffs)
	}
	buffID := v.Team.Buffs[0].ID

	_, err := f.eng.ApplyBuff(ctx, ana, "ev1", "foxes", buffID, "armory", "")
	if !errors.Is(err, hunt.ErrConflict) {
		t.Errorf("buff on completed node err = %v, want Conflict", err)
	}

	res, err := f.eng.ApplyBuff(ctx, ana, "ev1", "foxes", buffID, "x", "")
	if err != nil {
		t.Fatalf("ApplyBuff: %v", err)
	}
	if len(res.Team.Buffs) != 0 {
		t.Errorf("buff not removed: %+v", res.Team.Buffs)
	}
	v = f.team(t, "foxes")
	for _, n := range v.Workable {
		if n.ID == "x" && n.Required != 50 {
			t.Errorf("x required = %d, want 50", n.Required)
		}
	}

	_, err = f.eng.ApplyBuff(ctx, ana, "ev1", "foxes", buffID, "x", "")
	if !errors.Is(err, hunt.ErrExhausted) {
		t.Errorf("reapply err = %v, want Exhausted", err)
	}
}

func TestBuffRejectsWrongObjectiveType(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	f.complete(t, ana, "foxes", "armory")
	f.complete(t, ana, "foxes", "x")
	buffID := f.team(t, "foxes").Team.Buffs[0].ID

	_, err := f.eng.ApplyBuff(ctx, ana, "ev1", "foxes", buffID, "y", "")
	if !errors.Is(err, hunt.ErrInvalidBuffTarget) {
		t.Errorf("err = %v, want InvalidBuffTarget", err)
	}
}

func TestBuffReplayedKey(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	f.complete(t, ana, "foxes", "armory")
	buffID := f.team(t, "foxes").Team.Buffs[0].ID

	if _, err := f.eng.ApplyBuff(ctx, ana, "ev1", "foxes", buffID, "x", "req-1"); err != nil {
		t.Fatal(err)
	}
	res, err := f.eng.ApplyBuff(ctx, ana, "ev1", "foxes", buffID, "x", "req-1")
	if err != nil {
		t.Fatalf("replay err = %v", err)
	}
	if !res.Replayed {
		t.Error("replay not reported")
	}
}

func TestScenarioDConcurrentApproval(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	sub, err := f.eng.Submit(ctx, ana, "ev1", "foxes", "x", "screenshot")
	if err != nil {
		t.Fatal(err)
	}

	const reviewers = 8
	errs := make([]error, reviewers)
	var wg sync.WaitGroup
	for i := range reviewers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.eng.Review(ctx, reviewer, "ev1", sub.ID, hunt.DecisionApprove, "")
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, hunt.ErrConflict):
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d approvals succeeded, want 1", ok)
	}
	if pot := f.team(t, "foxes").Team.Pot; pot != 5_000_000 {
		t.Errorf("pot = %d, want 5000000", pot)
	}
}

func TestConcurrentTradesAtOneCheckpoint(t *testing.T) {
	f := launched(t)
	ctx := context.Background()
	f.complete(t, ana, "foxes", "armory")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, offer := range []string{"deal", "alt"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.eng.PurchaseCheckpoint(ctx, ana, "ev1", "foxes", "cp", offer, "")
		}()
	}
	wg.Wait()

	if (errs[0] == nil) == (errs[1] == nil) {
		t.Fatalf("errs = %v, want exactly one success", errs)
	}
	team := f.team(t, "foxes").Team
	if len(team.Trades) != 1 {
		t.Errorf("trades = %+v", team.Trades)
	}
	spent := 0
	for _, q := range team.Trades[0].Spent {
		spent += q
	}
	held := team.Keys["red"] + team.Keys["blue"]
	if held+spent != 4 {
		t.Errorf("keys held %d + spent %d, want 4", held, spent)
	}
}

func TestLocationGroupExclusive(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	f.complete(t, ana, "foxes", "x")
	f.complete(t, ana, "foxes", "cave-b")

	if got := workableIDs(f.team(t, "foxes")); slices.Contains(got, "cave-a") {
		t.Errorf("workable %v still lists cave-a", got)
	}
	_, err := f.eng.Submit(ctx, ana, "ev1", "foxes", "cave-a", "proof")
	if !errors.Is(err, hunt.ErrConflict) {
		t.Errorf("sibling submit err = %v, want Conflict", err)
	}
}

func TestPendingSiblingCannotBeApproved(t *testing.T) {
	f := launched(t)
	ctx := context.Background()
	f.complete(t, ana, "foxes", "x")

	easy, err := f.eng.Submit(ctx, ana, "ev1", "foxes", "cave-a", "proof a")
	if err != nil {
		t.Fatal(err)
	}
	f.complete(t, ana, "foxes", "cave-b")

	_, err = f.eng.Review(ctx, reviewer, "ev1", easy.ID, hunt.DecisionApprove, "")
	if !errors.Is(err, hunt.ErrConflict) {
		t.Errorf("err = %v, want Conflict", err)
	}
	if pot := f.team(t, "foxes").Team.Pot; pot != 5_400_000 {
		t.Errorf("pot = %d, want 5400000", pot)
	}

	res, err := f.eng.Review(ctx, reviewer, "ev1", easy.ID, hunt.DecisionDeny, "location already claimed")
	if err != nil {
		t.Fatalf("denying stale submission: %v", err)
	}
	if res.Submission.Status != hunt.SubmissionDenied {
		t.Errorf("status = %q, want DENIED", res.Submission.Status)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	if _, err := f.eng.Submit(ctx, ana, "ev1", "foxes", "x", "proof"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		caller hunt.Caller
		team   string
		node   string
		proof  string
		want   error
	}{
		{"duplicate pending", ana, "foxes", "x", "again", hunt.ErrConflict},
		{"locked node", ana, "foxes", "y", "proof", hunt.ErrNodeNotAvailable},
		{"completed node", ana, "foxes", "start", "proof", hunt.ErrInvalidInput},
		{"checkpoint", ana, "foxes", "cp", "proof", hunt.ErrInvalidInput},
		{"unknown node", ana, "foxes", "ghost", "proof", hunt.ErrNotFound},
		{"empty proof", ana, "foxes", "armory", "  ", hunt.ErrInvalidInput},
		{"not a member", ana, "owls", "x", "proof", hunt.ErrUnauthorized},
		{"anonymous", hunt.Caller{}, "foxes", "armory", "proof", hunt.ErrUnauthorized},
		{"unknown team", ana, "wolves", "x", "proof", hunt.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Submit(ctx, tt.caller, "ev1", tt.team, tt.node, tt.proof)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChatRoleActsForTeam(t *testing.T) {
	f := launched(t)

	res := f.complete(t, bruno, "owls", "x")
	if res.Submission.SubmittedBy != bruno.ID {
		t.Errorf("submitted by %q", res.Submission.SubmittedBy)
	}
}

func TestDenyNeedsReasonAndKeepsNodeOpen(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	sub, err := f.eng.Submit(ctx, ana, "ev1", "foxes", "x", "blurry photo")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Review(ctx, reviewer, "ev1", sub.ID, hunt.DecisionDeny, ""); !errors.Is(err, hunt.ErrInvalidInput) {
		t.Errorf("deny without reason err = %v, want InvalidInput", err)
	}
	if _, err := f.eng.Review(ctx, ana, "ev1", sub.ID, hunt.DecisionDeny, "no"); !errors.Is(err, hunt.ErrUnauthorized) {
		t.Errorf("review by member err = %v, want Unauthorized", err)
	}

	res, err := f.eng.Review(ctx, reviewer, "ev1", sub.ID, hunt.DecisionDeny, "cannot read counter")
	if err != nil {
		t.Fatal(err)
	}
	if res.Submission.Status != hunt.SubmissionDenied || res.Result != nil {
		t.Errorf("review = %+v", res)
	}
	if _, err := f.eng.Review(ctx, reviewer, "ev1", sub.ID, hunt.DecisionApprove, ""); !errors.Is(err, hunt.ErrConflict) {
		t.Errorf("approving denied submission err = %v, want Conflict", err)
	}
	if got := workableIDs(f.team(t, "foxes")); !slices.Contains(got, "x") {
		t.Errorf("workable %v lost x after denial", got)
	}
	if _, err := f.eng.Submit(ctx, ana, "ev1", "foxes", "x", "clear photo"); err != nil {
		t.Errorf("resubmit after denial: %v", err)
	}

	subs, err := f.eng.TeamSubmissions(ctx, ana, "ev1", "foxes")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].Status != hunt.SubmissionDenied || subs[1].Status != hunt.SubmissionPending {
		t.Errorf("submissions = %+v", subs)
	}
	if _, err := f.eng.TeamSubmissions(ctx, bruno, "ev1", "foxes"); !errors.Is(err, hunt.ErrUnauthorized) {
		t.Errorf("outsider listing err = %v, want Unauthorized", err)
	}
}

func TestRegenerateOnlyInDraft(t *testing.T) {
	f := launched(t)

	_, err := f.eng.RegenerateMap(context.Background(), admin, "ev1", testNodes())
	if !errors.Is(err, hunt.ErrInvalidState) {
		t.Errorf("err = %v, want InvalidState", err)
	}
}

func TestRegenerateRejectsUnplayableMap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.eng.CreateEvent(ctx, admin, "ev1", "Hunt"); err != nil {
		t.Fatal(err)
	}

	nodes := testNodes()
	nodes[3].Rewards.Buffs = []hunt.BuffGrant{{Type: "half", Objectives: []string{"kill_count"}, Reduction: 0.5}}
	if _, err := f.eng.RegenerateMap(ctx, admin, "ev1", nodes); !errors.Is(err, hunt.ErrInvalidInput) {
		t.Fatalf("zero-use buff err = %v, want InvalidInput", err)
	}

	gen, err := f.st.Generation(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if gen != 0 {
		t.Errorf("generation = %d, want 0 after rejected map", gen)
	}
}

func TestRegenerateBumpsGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.eng.CreateEvent(ctx, admin, "ev1", "Hunt"); err != nil {
		t.Fatal(err)
	}
	first, err := f.eng.RegenerateMap(ctx, admin, "ev1", testNodes()[:2])
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.eng.Event(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(v.Nodes))
	}

	second, err := f.eng.RegenerateMap(ctx, admin, "ev1", testNodes())
	if err != nil {
		t.Fatal(err)
	}
	if second.Generation <= first.Generation {
		t.Errorf("generation %d not after %d", second.Generation, first.Generation)
	}
	v, err = f.eng.Event(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Nodes) != len(testNodes()) || len(v.Groups) != 1 {
		t.Errorf("stale graph served: %d nodes, %d groups", len(v.Nodes), len(v.Groups))
	}

	if _, err := f.eng.RegenerateMap(ctx, reviewer, "ev1", testNodes()); !errors.Is(err, hunt.ErrUnauthorized) {
		t.Errorf("reviewer regenerate err = %v, want Unauthorized", err)
	}
}

func TestLaunchNeedsMap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.eng.CreateEvent(ctx, admin, "ev1", "Hunt"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Launch(ctx, admin, "ev1"); !errors.Is(err, hunt.ErrInvalidState) {
		t.Errorf("err = %v, want InvalidState", err)
	}
}

func TestCompletedEventIsFrozen(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	pending, err := f.eng.Submit(ctx, ana, "ev1", "foxes", "x", "proof")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Complete(ctx, admin, "ev1"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.eng.Submit(ctx, ana, "ev1", "foxes", "armory", "proof"); !errors.Is(err, hunt.ErrInvalidState) {
		t.Errorf("submit err = %v, want InvalidState", err)
	}
	if _, err := f.eng.Review(ctx, reviewer, "ev1", pending.ID, hunt.DecisionApprove, ""); !errors.Is(err, hunt.ErrInvalidState) {
		t.Errorf("review err = %v, want InvalidState", err)
	}
	if _, err := f.eng.AdjustPot(ctx, admin, "ev1", "foxes", 10, "late bonus", ""); !errors.Is(err, hunt.ErrInvalidState) {
		t.Errorf("adjust err = %v, want InvalidState", err)
	}
	if _, err := f.eng.CreateTeam(ctx, admin, "ev1", "late", "Late", []string{"u9"}, ""); !errors.Is(err, hunt.ErrInvalidState) {
		t.Errorf("create team err = %v, want InvalidState", err)
	}
}

func TestLateTeamIsBootstrapped(t *testing.T) {
	f := launched(t)

	team, err := f.eng.CreateTeam(context.Background(), admin, "ev1", "late", "Late", []string{"u9"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !team.HasCompleted("start") || !team.IsAvailable("x") {
		t.Errorf("late team not bootstrapped: %+v", team)
	}
}

func TestAdjustPotAndLeaderboard(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	f.complete(t, ana, "foxes", "x")
	if _, err := f.eng.AdjustPot(ctx, admin, "ev1", "owls", 7_000_000, "judges' prize", "adj-1"); err != nil {
		t.Fatal(err)
	}
	res, err := f.eng.AdjustPot(ctx, admin, "ev1", "owls", 7_000_000, "judges' prize", "adj-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Replayed || res.Team.Pot != 7_000_000 {
		t.Errorf("replayed adjustment = %+v", res)
	}

	tests := []struct {
		name   string
		caller hunt.Caller
		amount int64
		reason string
		want   error
	}{
		{"not admin", reviewer, 10, "x", hunt.ErrUnauthorized},
		{"no reason", admin, 10, " ", hunt.ErrInvalidInput},
		{"zero", admin, 0, "noop", hunt.ErrInvalidInput},
		{"negative pot", admin, -8_000_000, "penalty", hunt.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.AdjustPot(ctx, tt.caller, "ev1", "owls", tt.amount, tt.reason, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	board, err := f.eng.Leaderboard(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 2 || board[0].TeamID != "owls" || board[1].TeamID != "foxes" {
		t.Errorf("leaderboard = %+v", board)
	}
}

func TestSubscribeReceivesCommittedActivity(t *testing.T) {
	f := launched(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := f.eng.Subscribe(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	f.complete(t, ana, "foxes", "x")

	timeout := time.After(2 * time.Second)
	for {
		select {
		case a, ok := <-sub.Events():
			if !ok {
				t.Fatalf("stream closed: %v", sub.Err())
			}
			if a.Type == hunt.ActivitySubmissionApproved {
				return
			}
		case <-timeout:
			t.Fatal("approval never streamed")
		}
	}
}

func TestSubscribeUnknownEvent(t *testing.T) {
	f := newFixture(t)
	if _, err := f.eng.Subscribe(context.Background(), "nope"); !errors.Is(err, hunt.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestActivityCommitsWithMutation(t *testing.T) {
	f := launched(t)
	ctx := context.Background()

	types := func() []hunt.ActivityType {
		t.Helper()
		acts, err := f.st.RecentActivity(ctx, "ev1", 1000)
		if err != nil {
			t.Fatal(err)
		}
		var out []hunt.ActivityType
		for _, a := range acts {
			out = append(out, a.Type)
		}
		return out
	}

	f.complete(t, ana, "foxes", "x")
	after := types()
	if !slices.Contains(after, hunt.ActivitySubmissionApproved) || !slices.Contains(after, hunt.ActivityNodeCompleted) {
		t.Fatalf("approval activity not stored with the ledger change: %v", after)
	}

	if _, err := f.eng.PurchaseCheckpoint(ctx, ana, "ev1", "foxes", "cp", "deal", ""); !errors.Is(err, hunt.ErrNodeNotAvailable) {
		t.Fatalf("purchase err = %v, want NodeNotAvailable", err)
	}
	if _, err := f.eng.AdjustPot(ctx, admin, "ev1", "foxes", -1_000_000_000, "typo", ""); err == nil {
		t.Fatal("expected the pot to refuse going negative")
	}
	if got := types(); len(got) != len(after) {
		t.Errorf("failed mutations stored activity: %v", got[len(after):])
	}
}
