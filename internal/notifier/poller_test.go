package notifier

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"turnero/internal/dispatch"
	"turnero/internal/hub"
	"turnero/internal/store"
)

func snapshotFixture() dispatch.Snapshot {
	return dispatch.Snapshot{
		Date:   "2026-03-02",
		Stages: []dispatch.StageQueue{{Stage: "BOX"}},
	}
}

type fakeOutboxStore struct {
	store.TicketStore

	events  []store.OutboxEvent
	offset  int64
	cleaned bool
}

func (f *fakeOutboxStore) GetOffset(ctx context.Context, consumer string) (int64, error) {
	return f.offset, nil
}

func (f *fakeOutboxStore) ListOutboxEvents(ctx context.Context, afterID int64, limit int) ([]store.OutboxEvent, error) {
	var out []store.OutboxEvent
	for _, event := range f.events {
		if event.EventID > afterID && len(out) < limit {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeOutboxStore) UpdateOffset(ctx context.Context, consumer string, lastID int64) error {
	f.offset = lastID
	return nil
}

func (f *fakeOutboxStore) CleanupOutbox(ctx context.Context, olderThan time.Time) (int, error) {
	f.cleaned = true
	return 0, nil
}

func TestPollDeliversAndAdvancesOffset(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	st := &fakeOutboxStore{
		events: []store.OutboxEvent{
			{EventID: 1, Type: "ticket.created", QueueDate: date, Stage: "RECEPTION", Payload: json.RawMessage(`{"ticket_id":"t1"}`)},
			{EventID: 2, Type: "ticket.called", QueueDate: date, Stage: "BOX", Payload: json.RawMessage(`{"ticket_id":"t1"}`)},
		},
	}
	h := hub.New()
	client := &hub.Client{ID: "c1", Send: make(chan []byte, 4), Subscription: hub.Subscription{Date: "2026-03-02"}}
	h.Register(client)

	p := NewPoller(st, h, time.Second, 100, time.Hour)
	p.poll(context.Background())

	if got := len(client.Send); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
	var env Envelope
	if err := json.Unmarshal(<-client.Send, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != "ticket.created" {
		t.Fatalf("unexpected envelope type %s", env.Type)
	}
	if st.offset != 2 {
		t.Fatalf("expected offset advanced to 2, got %d", st.offset)
	}
	if !st.cleaned {
		t.Fatal("expected delivered rows to be pruned")
	}

	// A second poll with no new events is a no-op.
	p.poll(context.Background())
	if got := len(client.Send); got != 1 {
		t.Fatalf("expected no further deliveries, got %d extra", got-1)
	}
}

func TestPollRespectsStageSubscription(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	st := &fakeOutboxStore{
		events: []store.OutboxEvent{
			{EventID: 1, Type: "ticket.called", QueueDate: date, Stage: "BOX", Payload: json.RawMessage(`{}`)},
			{EventID: 2, Type: "ticket.called", QueueDate: date, Stage: "PSICO", Payload: json.RawMessage(`{}`)},
		},
	}
	h := hub.New()
	client := &hub.Client{ID: "c1", Send: make(chan []byte, 4), Subscription: hub.Subscription{Date: "2026-03-02", Stage: "PSICO"}}
	h.Register(client)

	NewPoller(st, h, time.Second, 100, time.Hour).poll(context.Background())

	if got := len(client.Send); got != 1 {
		t.Fatalf("expected only the PSICO event, got %d", got)
	}
}

func TestMarshalSnapshotEnvelope(t *testing.T) {
	payload, err := MarshalSnapshot(snapshotFixture())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "queue.snapshot" {
		t.Fatalf("unexpected type %s", env.Type)
	}
	if len(env.Payload) == 0 {
		t.Fatal("expected embedded snapshot payload")
	}
}
