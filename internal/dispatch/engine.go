package dispatch

import (
	"context"
	"errors"
	"time"

	"turnero/internal/models"
	"turnero/internal/stagegraph"
	"turnero/internal/store"
)

// ErrForbidden is returned when an identity's role cannot operate the
// requested stage.
var ErrForbidden = errors.New("role not allowed for stage")

// Identity is the authenticated caller of a queue operation, resolved from
// token claims per request.
type Identity struct {
	ActorID string
	Role    string
	Station int
}

func (id Identity) canOperate(def stagegraph.Stage) bool {
	if id.Role == models.RoleAdmin {
		return true
	}
	return id.Role == def.Role
}

// Engine runs every queue operation through one parameterized code path: the
// stage graph decides pick chains, bindings and derive targets, the store
// decides nothing but row state. Serialization conflicts are retried once.
type Engine struct {
	store store.TicketStore
	graph *stagegraph.Graph
}

func NewEngine(st store.TicketStore, graph *stagegraph.Graph) *Engine {
	return &Engine{store: st, graph: graph}
}

func (e *Engine) Graph() *stagegraph.Graph {
	return e.graph
}

func (e *Engine) Create(ctx context.Context, displayName *string, queueDate time.Time, actorID *string) (models.Ticket, error) {
	return e.store.CreateTicket(ctx, store.CreateTicketInput{
		DisplayName: displayName,
		QueueDate:   queueDate,
		ActorID:     actorID,
		CreatedAt:   time.Now().UTC(),
	})
}

func (e *Engine) Get(ctx context.Context, ticketID string) (models.Ticket, error) {
	return e.store.GetTicket(ctx, ticketID)
}

// CallNext claims the next waiting ticket for a stage. The second return is
// false when every queue along the pick chain is empty.
func (e *Engine) CallNext(ctx context.Context, stage string, id Identity) (models.Ticket, bool, error) {
	def, ok := e.graph.Stage(stage)
	if !ok {
		return models.Ticket{}, false, store.ErrInvalidStage
	}
	if !id.canOperate(def) {
		return models.Ticket{}, false, ErrForbidden
	}
	chain, _ := e.graph.PickChain(stage)
	input := store.CallNextInput{
		Stage:        stage,
		PickChain:    chain,
		QueueDate:    today(),
		Station:      id.Station,
		AgentID:      id.ActorID,
		StationBound: def.Binding == stagegraph.BindingStation,
		CalledAt:     time.Now().UTC(),
	}
	if input.StationBound && id.Station <= 0 {
		return models.Ticket{}, false, store.ErrInvalidStage
	}

	ticket, found, err := e.store.CallNext(ctx, input)
	if errors.Is(err, store.ErrSerialization) {
		ticket, found, err = e.store.CallNext(ctx, input)
	}
	return ticket, found, err
}

func (e *Engine) Attend(ctx context.Context, ticketID string, id Identity) (models.Ticket, error) {
	return e.claimAction(ctx, ticketID, id, e.store.MarkAttending)
}

func (e *Engine) Cancel(ctx context.Context, ticketID string, id Identity) (models.Ticket, error) {
	return e.claimAction(ctx, ticketID, id, e.store.CancelClaim)
}

func (e *Engine) claimAction(ctx context.Context, ticketID string, id Identity, apply func(context.Context, store.ClaimActionInput) (models.Ticket, error)) (models.Ticket, error) {
	input := store.ClaimActionInput{
		TicketID:   ticketID,
		Station:    id.Station,
		AgentID:    id.ActorID,
		OccurredAt: time.Now().UTC(),
	}
	ticket, err := apply(ctx, input)
	if errors.Is(err, store.ErrSerialization) {
		ticket, err = apply(ctx, input)
	}
	return ticket, err
}

// Finish ends service on a ticket the caller is serving. At a terminal stage
// the ticket is FINISHED; with a single forward edge the target is implied;
// at a branching stage the caller must name one of the branch targets.
func (e *Engine) Finish(ctx context.Context, ticketID, target string, id Identity) (models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	def, ok := e.graph.Stage(ticket.Stage)
	if !ok {
		return models.Ticket{}, store.ErrInvalidStage
	}
	if !id.canOperate(def) {
		return models.Ticket{}, ErrForbidden
	}
	if !stagegraph.ValidTransition(models.ActionFinish, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidStatus
	}

	input := store.FinishInput{
		TicketID:   ticketID,
		Station:    id.Station,
		AgentID:    id.ActorID,
		FromStage:  ticket.Stage,
		OccurredAt: time.Now().UTC(),
	}
	if def.Terminal {
		if target != "" && target != ticket.Stage {
			return models.Ticket{}, store.ErrInvalidStage
		}
		input.Terminal = true
	} else {
		targets := e.graph.DeriveTargets(ticket.Stage)
		switch {
		case len(targets) == 1 && (target == "" || target == targets[0]):
			input.TargetStage = targets[0]
		case target != "" && contains(targets, target):
			input.TargetStage = target
		default:
			return models.Ticket{}, store.ErrInvalidStage
		}
	}

	finished, err := e.store.FinishTicket(ctx, input)
	if errors.Is(err, store.ErrSerialization) {
		finished, err = e.store.FinishTicket(ctx, input)
	}
	return finished, err
}

func (e *Engine) ActiveTicket(ctx context.Context, station int) (models.Ticket, bool, error) {
	return e.store.ActiveTicket(ctx, today(), station)
}

// StageQueue is one stage's slice of the board: who waits and who is being
// served, in arrival order.
type StageQueue struct {
	Stage     string          `json:"stage"`
	Waiting   []models.Ticket `json:"waiting"`
	InService []models.Ticket `json:"in_service"`
}

type Snapshot struct {
	Date   string       `json:"date"`
	Stages []StageQueue `json:"stages"`
}

// Snapshot buckets the day's live tickets by stage, in pipeline order.
func (e *Engine) Snapshot(ctx context.Context, queueDate time.Time) (Snapshot, error) {
	tickets, err := e.store.Snapshot(ctx, queueDate)
	if err != nil {
		return Snapshot{}, err
	}
	stages := e.graph.Stages()
	snapshot := Snapshot{
		Date:   queueDate.Format("2006-01-02"),
		Stages: make([]StageQueue, len(stages)),
	}
	byStage := make(map[string]*StageQueue, len(stages))
	for i, stage := range stages {
		snapshot.Stages[i].Stage = stage
		byStage[stage] = &snapshot.Stages[i]
	}
	for _, ticket := range tickets {
		bucket, ok := byStage[ticket.Stage]
		if !ok {
			continue
		}
		if ticket.Status == models.StatusInService {
			bucket.InService = append(bucket.InService, ticket)
		} else {
			bucket.Waiting = append(bucket.Waiting, ticket)
		}
	}
	return snapshot, nil
}

// SetDisplayName renames a ticket. Admins may rename any ticket; everyone
// else only the ticket they are currently claiming.
func (e *Engine) SetDisplayName(ctx context.Context, ticketID, name string, id Identity) (models.Ticket, error) {
	if id.Role != models.RoleAdmin {
		ticket, err := e.store.GetTicket(ctx, ticketID)
		if err != nil {
			return models.Ticket{}, err
		}
		if !ownsClaim(ticket, id) {
			return models.Ticket{}, store.ErrNotYourTicket
		}
	}
	return e.store.SetDisplayName(ctx, store.SetDisplayNameInput{
		TicketID:    ticketID,
		DisplayName: name,
		ActorID:     id.ActorID,
		OccurredAt:  time.Now().UTC(),
	})
}

func (e *Engine) AuditTrail(ctx context.Context, ticketID string) ([]models.AuditEntry, error) {
	if _, err := e.store.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return e.store.ListAuditEntries(ctx, ticketID)
}

func ownsClaim(ticket models.Ticket, id Identity) bool {
	if ticket.ClaimedStation != nil {
		return *ticket.ClaimedStation == id.Station
	}
	if ticket.ClaimedBy != nil {
		return *ticket.ClaimedBy == id.ActorID
	}
	return false
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
