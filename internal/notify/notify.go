package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Event types emitted by the ledger subsystem. The notification layer owns
// rendering and delivery; we only publish the facts.
const (
	EventLowBalance          = "low_balance"
	EventPaymentCompleted    = "payment_completed"
	EventPaymentFailed       = "payment_failed"
	EventCreditsAwarded      = "credits_awarded"
	EventAchievementUnlocked = "achievement_unlocked"
)

// Subject is the NATS subject notification events are published on.
const Subject = "notifications.events"

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

type Event struct {
	UserID    uuid.UUID         `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Priority  string            `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// NatsEmitter publishes events as JSON to the notifications subject.
// Publish failures are logged and dropped: notification delivery must never
// fail a ledger operation.
type NatsEmitter struct {
	conn *nats.Conn
	log  *slog.Logger
}

func NewNatsEmitter(conn *nats.Conn, log *slog.Logger) *NatsEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &NatsEmitter{conn: conn, log: log}
}

var _ Emitter = (*NatsEmitter)(nil)

func (e *NatsEmitter) Emit(ctx context.Context, ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("notify: marshal event", "type", ev.Type, "error", err)
		return
	}
	if err := e.conn.Publish(Subject, data); err != nil {
		e.log.Error("notify: publish event", "type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}

// NopEmitter discards all events. Used in tests and when NATS is not configured.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

var _ Emitter = NopEmitter{}
