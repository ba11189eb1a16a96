package relay

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/thiagoors/clinic-queue-system/internal/hub"
	"github.com/thiagoors/clinic-queue-system/internal/store"
)

const zeroUUID = "00000000-0000-0000-0000-000000000000"

// OutboxStore is the slice of the persistence layer the relay needs.
type OutboxStore interface {
	ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error)
	GetOffset(ctx context.Context) (store.OutboxOffset, error)
	UpdateOffset(ctx context.Context, offset store.OutboxOffset) error
	CleanupOutbox(ctx context.Context, before time.Time) error
}

// Envelope is the wire shape delivered to realtime clients.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Relay polls the transactional outbox and fans each event out to its hub
// channel in publish order. Delivery is at-least-once: the offset advances
// only after a batch is handed to the hub.
type Relay struct {
	store     OutboxStore
	hub       *hub.Hub
	interval  time.Duration
	batchSize int
}

func New(st OutboxStore, h *hub.Hub, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{store: st, hub: h, interval: interval, batchSize: batchSize}
}

func (r *Relay) Run(ctx context.Context) {
	offset, err := r.store.GetOffset(ctx)
	if err != nil {
		log.Printf("relay load offset error: %v", err)
	}
	if offset.LastEventTime.IsZero() {
		offset.LastEventTime = time.Unix(0, 0).UTC()
	}
	if offset.LastEventID == "" {
		offset.LastEventID = zeroUUID
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			offset = r.drain(ctx, offset)
		}
	}
}

func (r *Relay) drain(ctx context.Context, offset store.OutboxOffset) store.OutboxOffset {
	events, err := r.store.ListOutboxEvents(ctx, offset, r.batchSize)
	if err != nil {
		log.Printf("relay list events error: %v", err)
		return offset
	}
	if len(events) == 0 {
		return offset
	}

	for _, event := range events {
		payload, err := json.Marshal(Envelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt})
		if err != nil {
			log.Printf("relay marshal event %s error: %v", event.EventID, err)
			continue
		}
		r.hub.Publish(event.Channel, payload)
		offset.LastEventTime = event.CreatedAt
		offset.LastEventID = event.EventID
	}

	if err := r.store.UpdateOffset(ctx, offset); err != nil {
		log.Printf("relay update offset error: %v", err)
		return offset
	}
	if err := r.store.CleanupOutbox(ctx, offset.LastEventTime); err != nil {
		log.Printf("relay cleanup outbox error: %v", err)
	}
	return offset
}
