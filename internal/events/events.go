// Package events publishes lifecycle and ledger events to downstream
// collaborators (notifications, analytics) after a state change commits.
// Delivery is best-effort: a failed publish is logged and counted and never
// undoes the committed change.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/observability"
)

// Type names an event. It doubles as the routing key on topic exchanges.
type Type string

const (
	RideRequested   Type = "ride.requested"
	RideAccepted    Type = "ride.accepted"
	RideProgressed  Type = "ride.progressed"
	RideCompleted   Type = "ride.completed"
	RideCancelled   Type = "ride.cancelled"
	RideRated       Type = "ride.rated"
	TripPublished   Type = "trip.published"
	SeatsClaimed    Type = "trip.seats_claimed"
	BookingCanceled Type = "trip.booking_cancelled"
	PickupUpdated   Type = "trip.pickup_updated"
	TripProgressed  Type = "trip.progressed"
	TripCompleted   Type = "trip.completed"
	TripCancelled   Type = "trip.cancelled"
	WalletToppedUp  Type = "wallet.topped_up"
	DocumentStored  Type = "actor.document_recorded"
)

// Event is the JSON document written to the broker.
type Event struct {
	ID          uuid.UUID             `json:"id"`
	Type        Type                  `json:"type"`
	AggregateID uuid.UUID             `json:"aggregate_id"`
	ActorID     uuid.UUID             `json:"actor_id"`
	Status      string                `json:"status,omitempty"`
	Seats       int                   `json:"seats,omitempty"`
	Deltas      []domain.BalanceDelta `json:"deltas,omitempty"`
	OccurredAt  time.Time             `json:"occurred_at"`
}

// New stamps a fresh event.
func New(typ Type, aggregateID, actorID uuid.UUID) Event {
	return Event{
		ID:          uuid.New(),
		Type:        typ,
		AggregateID: aggregateID,
		ActorID:     actorID,
		OccurredAt:  time.Now().UTC(),
	}
}

// Publisher delivers one event to a broker.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// publishTimeout bounds a single delivery attempt.
const publishTimeout = 2 * time.Second

// Emitter is what the engines hold. Emit never fails.
type Emitter struct {
	pub Publisher
	log *slog.Logger
}

// NewEmitter wraps pub. A nil pub logs events instead of sending them.
func NewEmitter(pub Publisher, log *slog.Logger) *Emitter {
	if pub == nil {
		pub = NewLogPublisher(log)
	}
	return &Emitter{pub: pub, log: log}
}

// Emit publishes ev detached from the caller's cancellation, so an event for
// a committed change is still attempted after the request has returned.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := e.pub.Publish(ctx, ev); err != nil {
		observability.EventPublishFailuresTotal.WithLabelValues(string(ev.Type)).Inc()
		e.log.WarnContext(ctx, "event publish failed",
			"type", ev.Type,
			"aggregate_id", ev.AggregateID,
			"error", err,
		)
	}
}

// Close releases the underlying publisher.
func (e *Emitter) Close() error {
	return e.pub.Close()
}

// LogPublisher writes events to the logger at debug level. It is the
// publisher used when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.log.DebugContext(ctx, "event",
		"type", ev.Type,
		"aggregate_id", ev.AggregateID,
		"actor_id", ev.ActorID,
		"status", ev.Status,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory. Tests use it to assert on what
// the engines emitted.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the published event types in order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
