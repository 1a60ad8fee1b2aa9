package store

import (
	"context"
	"encoding/json"
	"time"

	"turnero/internal/models"
)

type CreateTicketInput struct {
	DisplayName *string
	QueueDate   time.Time
	ActorID     *string
	CreatedAt   time.Time
}

type CallNextInput struct {
	Stage     string
	PickChain []string
	QueueDate time.Time
	Station   int
	AgentID   string
	// StationBound claims are guarded by the occupancy check and run under
	// serializable isolation; agent-bound claims skip both.
	StationBound bool
	CalledAt     time.Time
}

type ClaimActionInput struct {
	TicketID   string
	Station    int
	AgentID    string
	OccurredAt time.Time
}

type FinishInput struct {
	TicketID    string
	Station     int
	AgentID     string
	FromStage   string
	TargetStage string
	// Terminal marks the ticket FINISHED instead of deriving it forward.
	Terminal   bool
	OccurredAt time.Time
}

type SetDisplayNameInput struct {
	TicketID    string
	DisplayName string
	ActorID     string
	OccurredAt  time.Time
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, bool, error)
	MarkAttending(ctx context.Context, input ClaimActionInput) (models.Ticket, error)
	CancelClaim(ctx context.Context, input ClaimActionInput) (models.Ticket, error)
	FinishTicket(ctx context.Context, input FinishInput) (models.Ticket, error)
	ActiveTicket(ctx context.Context, queueDate time.Time, station int) (models.Ticket, bool, error)
	Snapshot(ctx context.Context, queueDate time.Time) ([]models.Ticket, error)
	SetDisplayName(ctx context.Context, input SetDisplayNameInput) (models.Ticket, error)
	ListAuditEntries(ctx context.Context, ticketID string) ([]models.AuditEntry, error)
	SweepDay(ctx context.Context, before time.Time, batch int) (int, error)

	Authenticate(ctx context.Context, email, password string) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)

	ListOutboxEvents(ctx context.Context, afterID int64, limit int) ([]OutboxEvent, error)
	GetOffset(ctx context.Context, consumer string) (int64, error)
	UpdateOffset(ctx context.Context, consumer string, lastID int64) error
	CleanupOutbox(ctx context.Context, olderThan time.Time) (int, error)
}

type OutboxEvent struct {
	EventID   int64           `json:"event_id"`
	Type      string          `json:"type"`
	QueueDate time.Time       `json:"queue_date"`
	Stage     string          `json:"stage"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
