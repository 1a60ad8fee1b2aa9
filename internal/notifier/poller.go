package notifier

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"turnero/internal/dispatch"
	"turnero/internal/hub"
	"turnero/internal/store"
)

const consumerName = "realtime"

// Envelope is what subscribers receive for every committed mutation.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// MarshalSnapshot wraps a board snapshot in the realtime envelope, for
// on-demand snapshot requests over the same channel.
func MarshalSnapshot(snapshot dispatch.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: "queue.snapshot", Payload: payload, CreatedAt: time.Now().UTC()})
}

// Poller tails the outbox and broadcasts committed events through the hub.
// The persisted offset makes delivery resume where it left off after a
// restart; delivered rows older than the retention window are pruned.
type Poller struct {
	store     store.TicketStore
	hub       *hub.Hub
	interval  time.Duration
	batchSize int
	retention time.Duration
	running   int32
}

func NewPoller(st store.TicketStore, h *hub.Hub, interval time.Duration, batchSize int, retention time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &Poller{store: st, hub: h, interval: interval, batchSize: batchSize, retention: retention}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
				continue
			}
			p.poll(ctx)
			atomic.StoreInt32(&p.running, 0)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	offset, err := p.store.GetOffset(pollCtx, consumerName)
	if err != nil {
		log.Printf("notifier: load offset: %v", err)
		return
	}
	events, err := p.store.ListOutboxEvents(pollCtx, offset, p.batchSize)
	if err != nil {
		log.Printf("notifier: list outbox: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}

	for _, event := range events {
		env := Envelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt}
		payload, err := json.Marshal(env)
		if err != nil {
			log.Printf("notifier: marshal event %d: %v", event.EventID, err)
			continue
		}
		p.hub.Broadcast(payload, hub.Subscription{
			Date:  event.QueueDate.Format("2006-01-02"),
			Stage: event.Stage,
		})
		offset = event.EventID
	}

	if err := p.store.UpdateOffset(pollCtx, consumerName, offset); err != nil {
		log.Printf("notifier: update offset: %v", err)
		return
	}
	if _, err := p.store.CleanupOutbox(pollCtx, time.Now().UTC().Add(-p.retention)); err != nil {
		log.Printf("notifier: cleanup outbox: %v", err)
	}
}
