package models

import (
	"encoding/json"
	"time"
)

type Ticket struct {
	TicketID       string     `json:"ticket_id"`
	DisplayName    *string    `json:"display_name,omitempty"`
	QueueDate      time.Time  `json:"queue_date"`
	Stage          string     `json:"stage"`
	Status         string     `json:"status"`
	ClaimedStation *int       `json:"claimed_station,omitempty"`
	ClaimedBy      *string    `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	ClaimedFrom    *string    `json:"claimed_from,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

const (
	StatusWaiting   = "WAITING"
	StatusInService = "IN_SERVICE"
	StatusFinished  = "FINISHED"
	StatusCancelled = "CANCELLED"
)

const (
	StageReception = "RECEPTION"
	StageBox       = "BOX"
	StagePsico     = "PSICO"
	StageCashier   = "CASHIER"
	StageFinal     = "FINAL"
)

// Claimed reports whether the ticket is currently bound to a station or agent.
func (t Ticket) Claimed() bool {
	return t.ClaimedStation != nil || t.ClaimedBy != nil
}

// Terminal reports whether the ticket can never be mutated again.
func (t Ticket) Terminal() bool {
	return t.Status == StatusFinished || t.Status == StatusCancelled
}

type AuditEntry struct {
	EntryID   int64           `json:"entry_id"`
	TicketID  string          `json:"ticket_id"`
	ActorID   *string         `json:"actor_id,omitempty"`
	Action    string          `json:"action"`
	FromStage *string         `json:"from_stage,omitempty"`
	ToStage   *string         `json:"to_stage,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	ActionCreate      = "CREATE"
	ActionCallNext    = "CALL_NEXT"
	ActionAttend      = "ATTEND"
	ActionCancelClaim = "CANCEL_CLAIM"
	ActionFinish      = "FINISH"
	ActionDerive      = "DERIVE"
	ActionSetName     = "SET_NAME"
	ActionDaySweep    = "DAY_SWEEP"
)
