package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"turnero/internal/models"
	"turnero/internal/stagegraph"
	"turnero/internal/store"
)

type fakeStore struct {
	store.TicketStore

	getTicketFn func(ctx context.Context, ticketID string) (models.Ticket, error)
	callFn      func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error)
	finishFn    func(ctx context.Context, input store.FinishInput) (models.Ticket, error)
	attendFn    func(ctx context.Context, input store.ClaimActionInput) (models.Ticket, error)
	snapshotFn  func(ctx context.Context, queueDate time.Time) ([]models.Ticket, error)
	auditFn     func(ctx context.Context, ticketID string) ([]models.AuditEntry, error)
	setNameFn   func(ctx context.Context, input store.SetDisplayNameInput) (models.Ticket, error)
}

func (f fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.getTicketFn == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return f.getTicketFn(ctx, ticketID)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	if f.callFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) FinishTicket(ctx context.Context, input store.FinishInput) (models.Ticket, error) {
	if f.finishFn == nil {
		return models.Ticket{}, nil
	}
	return f.finishFn(ctx, input)
}

func (f fakeStore) MarkAttending(ctx context.Context, input store.ClaimActionInput) (models.Ticket, error) {
	if f.attendFn == nil {
		return models.Ticket{}, nil
	}
	return f.attendFn(ctx, input)
}

func (f fakeStore) Snapshot(ctx context.Context, queueDate time.Time) ([]models.Ticket, error) {
	if f.snapshotFn == nil {
		return nil, nil
	}
	return f.snapshotFn(ctx, queueDate)
}

func (f fakeStore) ListAuditEntries(ctx context.Context, ticketID string) ([]models.AuditEntry, error) {
	if f.auditFn == nil {
		return nil, nil
	}
	return f.auditFn(ctx, ticketID)
}

func (f fakeStore) SetDisplayName(ctx context.Context, input store.SetDisplayNameInput) (models.Ticket, error) {
	if f.setNameFn == nil {
		return models.Ticket{TicketID: input.TicketID}, nil
	}
	return f.setNameFn(ctx, input)
}

func newTestEngine(st fakeStore) *Engine {
	return NewEngine(st, stagegraph.Default())
}

var boxAgent = Identity{ActorID: "agent-1", Role: models.RoleBoxAgent, Station: 3}

func TestCallNextUnknownStage(t *testing.T) {
	engine := newTestEngine(fakeStore{})
	_, _, err := engine.CallNext(context.Background(), "LOBBY", boxAgent)
	if !errors.Is(err, store.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage, got %v", err)
	}
}

func TestCallNextForbiddenRole(t *testing.T) {
	engine := newTestEngine(fakeStore{})
	cashier := Identity{ActorID: "agent-2", Role: models.RoleCashierAgent}
	_, _, err := engine.CallNext(context.Background(), models.StageBox, cashier)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCallNextAdminBypassesRoleCheck(t *testing.T) {
	called := false
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			called = true
			return models.Ticket{TicketID: "t1"}, true, nil
		},
	}
	engine := newTestEngine(st)
	admin := Identity{ActorID: "admin-1", Role: models.RoleAdmin, Station: 1}
	if _, _, err := engine.CallNext(context.Background(), models.StageBox, admin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("store was never reached")
	}
}

func TestCallNextStationBoundRequiresStation(t *testing.T) {
	engine := newTestEngine(fakeStore{})
	noStation := Identity{ActorID: "agent-1", Role: models.RoleBoxAgent}
	_, _, err := engine.CallNext(context.Background(), models.StageBox, noStation)
	if !errors.Is(err, store.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage, got %v", err)
	}
}

func TestCallNextAgentBound(t *testing.T) {
	var captured store.CallNextInput
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			captured = input
			return models.Ticket{TicketID: "t1"}, true, nil
		},
	}
	engine := newTestEngine(st)
	psico := Identity{ActorID: "agent-9", Role: models.RolePsychoAgent}
	if _, _, err := engine.CallNext(context.Background(), models.StagePsico, psico); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.StationBound {
		t.Fatal("PSICO claims must not be station-bound")
	}
	if captured.AgentID != "agent-9" {
		t.Fatalf("agent not forwarded: %s", captured.AgentID)
	}
	if len(captured.PickChain) != 2 || captured.PickChain[1] != models.StageBox {
		t.Fatalf("unexpected pick chain %v", captured.PickChain)
	}
}

func TestCallNextRetriesSerializationOnce(t *testing.T) {
	attempts := 0
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			attempts++
			if attempts == 1 {
				return models.Ticket{}, false, store.ErrSerialization
			}
			return models.Ticket{TicketID: "t1"}, true, nil
		},
	}
	engine := newTestEngine(st)
	ticket, found, err := engine.CallNext(context.Background(), models.StageBox, boxAgent)
	if err != nil || !found {
		t.Fatalf("expected retry to succeed, got found=%v err=%v", found, err)
	}
	if ticket.TicketID != "t1" || attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestCallNextGivesUpAfterSecondConflict(t *testing.T) {
	attempts := 0
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			attempts++
			return models.Ticket{}, false, store.ErrSerialization
		},
	}
	engine := newTestEngine(st)
	_, _, err := engine.CallNext(context.Background(), models.StageBox, boxAgent)
	if !errors.Is(err, store.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestFinishTerminal(t *testing.T) {
	var captured store.FinishInput
	st := fakeStore{
		getTicketFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{TicketID: ticketID, Stage: models.StageFinal, Status: models.StatusInService}, nil
		},
		finishFn: func(ctx context.Context, input store.FinishInput) (models.Ticket, error) {
			captured = input
			return models.Ticket{TicketID: input.TicketID, Status: models.StatusFinished}, nil
		},
	}
	engine := newTestEngine(st)
	returnDesk := Identity{ActorID: "agent-1", Role: models.RoleBoxAgent, Station: 9}

	ticket, err := engine.Finish(context.Background(), "t1", "", returnDesk)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if ticket.Status != models.StatusFinished {
		t.Fatalf("expected FINISHED, got %s", ticket.Status)
	}
	if !captured.Terminal || captured.TargetStage != "" {
		t.Fatalf("expected terminal finish, got %+v", captured)
	}

	// Naming a different stage at a terminal stage is a mistake.
	if _, err := engine.Finish(context.Background(), "t1", models.StageBox, returnDesk); !errors.Is(err, store.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage, got %v", err)
	}
}

func TestFinalStageOperatedByBoxAgents(t *testing.T) {
	called := false
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			called = true
			return models.Ticket{TicketID: "t1", Stage: models.StageFinal}, true, nil
		},
	}
	engine := newTestEngine(st)

	returnDesk := Identity{ActorID: "agent-1", Role: models.RoleBoxAgent, Station: 9}
	if _, _, err := engine.CallNext(context.Background(), models.StageFinal, returnDesk); err != nil {
		t.Fatalf("box agent must operate FINAL: %v", err)
	}
	if !called {
		t.Fatal("store was never reached")
	}

	for _, role := range []string{models.RolePsychoAgent, models.RoleCashierAgent} {
		other := Identity{ActorID: "agent-2", Role: role, Station: 9}
		if _, _, err := engine.CallNext(context.Background(), models.StageFinal, other); !errors.Is(err, ErrForbidden) {
			t.Fatalf("role %s: expected ErrForbidden at FINAL, got %v", role, err)
		}
	}
}

func TestFinishRequiresInService(t *testing.T) {
	finishCalled := false
	st := fakeStore{
		getTicketFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{TicketID: ticketID, Stage: models.StageBox, Status: models.StatusWaiting}, nil
		},
		finishFn: func(ctx context.Context, input store.FinishInput) (models.Ticket, error) {
			finishCalled = true
			return models.Ticket{}, nil
		},
	}
	engine := newTestEngine(st)

	if _, err := engine.Finish(context.Background(), "t1", models.StagePsico, boxAgent); !errors.Is(err, store.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for waiting ticket, got %v", err)
	}
	if finishCalled {
		t.Fatal("store must not be reached for an invalid transition")
	}
}

func TestFinishSingleEdgeImpliesTarget(t *testing.T) {
	var captured store.FinishInput
	st := fakeStore{
		getTicketFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{TicketID: ticketID, Stage: models.StagePsico, Status: models.StatusInService}, nil
		},
		finishFn: func(ctx context.Context, input store.FinishInput) (models.Ticket, error) {
			captured = input
			return models.Ticket{TicketID: input.TicketID, Stage: input.TargetStage}, nil
		},
	}
	engine := newTestEngine(st)
	psico := Identity{ActorID: "agent-9", Role: models.RolePsychoAgent}

	if _, err := engine.Finish(context.Background(), "t1", "", psico); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if captured.TargetStage != models.StageCashier || captured.Terminal {
		t.Fatalf("expected implied CASHIER target, got %+v", captured)
	}
	if captured.FromStage != models.StagePsico {
		t.Fatalf("expected FromStage PSICO, got %s", captured.FromStage)
	}
}

func TestFinishBranchRequiresValidTarget(t *testing.T) {
	st := fakeStore{
		getTicketFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{TicketID: ticketID, Stage: models.StageBox, Status: models.StatusInService}, nil
		},
	}
	engine := newTestEngine(st)

	if _, err := engine.Finish(context.Background(), "t1", "", boxAgent); !errors.Is(err, store.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage without target, got %v", err)
	}
	if _, err := engine.Finish(context.Background(), "t1", models.StageReception, boxAgent); !errors.Is(err, store.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage for backward target, got %v", err)
	}
}

func TestFinishForbiddenRole(t *testing.T) {
	st := fakeStore{
		getTicketFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{TicketID: ticketID, Stage: models.StagePsico, Status: models.StatusInService}, nil
		},
	}
	engine := newTestEngine(st)
	if _, err := engine.Finish(context.Background(), "t1", "", boxAgent); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSnapshotBucketsByStageInOrder(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	st := fakeStore{
		snapshotFn: func(ctx context.Context, queueDate time.Time) ([]models.Ticket, error) {
			return []models.Ticket{
				{TicketID: "t1", Stage: models.StageBox, Status: models.StatusWaiting},
				{TicketID: "t2", Stage: models.StageBox, Status: models.StatusInService},
				{TicketID: "t3", Stage: models.StageReception, Status: models.StatusWaiting},
				{TicketID: "t4", Stage: "GHOST", Status: models.StatusWaiting},
			}, nil
		},
	}
	engine := newTestEngine(st)

	snapshot, err := engine.Snapshot(context.Background(), date)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Date != "2026-03-02" {
		t.Fatalf("unexpected date %s", snapshot.Date)
	}
	if len(snapshot.Stages) != 5 {
		t.Fatalf("expected 5 stages, got %d", len(snapshot.Stages))
	}
	if snapshot.Stages[0].Stage != models.StageReception || len(snapshot.Stages[0].Waiting) != 1 {
		t.Fatalf("unexpected RECEPTION bucket %+v", snapshot.Stages[0])
	}
	box := snapshot.Stages[1]
	if box.Stage != models.StageBox || len(box.Waiting) != 1 || len(box.InService) != 1 {
		t.Fatalf("unexpected BOX bucket %+v", box)
	}
	// Tickets at undeclared stages are dropped, not crashed on.
	total := 0
	for _, stage := range snapshot.Stages {
		total += len(stage.Waiting) + len(stage.InService)
	}
	if total != 3 {
		t.Fatalf("expected 3 bucketed tickets, got %d", total)
	}
}

func TestSetDisplayNameOwnership(t *testing.T) {
	station := 3
	agentID := "agent-9"
	st := fakeStore{
		getTicketFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			switch ticketID {
			case "station-claimed":
				return models.Ticket{TicketID: ticketID, ClaimedStation: &station}, nil
			case "agent-claimed":
				return models.Ticket{TicketID: ticketID, ClaimedBy: &agentID}, nil
			default:
				return models.Ticket{TicketID: ticketID}, nil
			}
		},
	}
	engine := newTestEngine(st)

	if _, err := engine.SetDisplayName(context.Background(), "station-claimed", "Ana", boxAgent); err != nil {
		t.Fatalf("claiming station must rename: %v", err)
	}
	other := Identity{ActorID: "agent-2", Role: models.RoleBoxAgent, Station: 7}
	if _, err := engine.SetDisplayName(context.Background(), "station-claimed", "Ana", other); !errors.Is(err, store.ErrNotYourTicket) {
		t.Fatalf("expected ErrNotYourTicket, got %v", err)
	}
	psico := Identity{ActorID: agentID, Role: models.RolePsychoAgent}
	if _, err := engine.SetDisplayName(context.Background(), "agent-claimed", "Ana", psico); err != nil {
		t.Fatalf("claiming agent must rename: %v", err)
	}
	if _, err := engine.SetDisplayName(context.Background(), "unclaimed", "Ana", other); !errors.Is(err, store.ErrNotYourTicket) {
		t.Fatalf("expected ErrNotYourTicket for unclaimed ticket, got %v", err)
	}
	admin := Identity{ActorID: "admin-1", Role: models.RoleAdmin}
	if _, err := engine.SetDisplayName(context.Background(), "unclaimed", "Ana", admin); err != nil {
		t.Fatalf("admin must rename anything: %v", err)
	}
}

func TestAuditTrailChecksTicketExists(t *testing.T) {
	engine := newTestEngine(fakeStore{})
	if _, err := engine.AuditTrail(context.Background(), "missing"); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}
