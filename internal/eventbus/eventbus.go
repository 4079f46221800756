// Package eventbus provides the domain Event Bus (C4): an in-process
// publish/subscribe point for the orchestrator's lifecycle events, wrapping
// the teacher's generic internal/pubsub.Broker[T] with the typed subjects of
// spec.md §4.4 instead of the teacher's CreatedEvent/UpdatedEvent/DeletedEvent
// CRUD-shaped subjects.
package eventbus

import (
	"context"

	"github.com/flowctl/flowctl/internal/ids"
	"github.com/flowctl/flowctl/internal/pubsub"
	"github.com/flowctl/flowctl/internal/workflow"
)

// Subject names one of the domain event kinds a session lifecycle emits.
type Subject string

const (
	SessionStarted        Subject = "session_started"
	ContextDiscovered      Subject = "context_discovered"
	PolicyEvaluated        Subject = "policy_evaluated"
	StateTransitioned      Subject = "state_transitioned"
	SessionCompleted       Subject = "session_completed"
	CompensationTriggered  Subject = "compensation_triggered"
	CompensationSucceeded  Subject = "compensation_succeeded"
	CompensationFailed     Subject = "compensation_failed"
)

// DomainEvent is the payload carried for every subject; fields not relevant
// to Subject are left zero, the same tagged-shape convention used by
// workflow.State and workflow.Trigger.
type DomainEvent struct {
	Subject   Subject          `json:"subject"`
	SessionID ids.SessionID    `json:"session_id"`

	// PolicyEvaluated
	GuardResult *workflow.GuardResultSummary `json:"guard_result,omitempty"`

	// StateTransitioned
	From    *workflow.State   `json:"from,omitempty"`
	To      *workflow.State   `json:"to,omitempty"`
	Trigger *workflow.Trigger `json:"trigger,omitempty"`

	// CompensationTriggered/Succeeded/Failed
	CompensationID string `json:"compensation_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Bus is the Event Bus port the orchestrator publishes to and any listener
// (CLI status streaming, future webhooks) subscribes to.
type Bus struct {
	broker *pubsub.Broker[DomainEvent]
}

// New constructs a Bus. capacity bounds each subscriber's buffered channel
// (orchestrator.event_channel_capacity, default 256, per spec.md §6.2);
// publishing never blocks a transition commit — a slow or absent subscriber
// just misses events once its channel is full, mirroring pubsub.Broker's
// drop-on-full semantics.
func New(capacity int) *Bus {
	return &Bus{broker: pubsub.NewBrokerWithBuffer[DomainEvent](capacity)}
}

// Publish fires a domain event to every current subscriber. Fire-and-forget:
// callers never wait on delivery (§5's "Event emission... never blocks a
// transition commit").
func (b *Bus) Publish(ev DomainEvent) {
	b.broker.Publish(pubsub.CreatedEvent, ev)
}

// Subscribe returns a channel of domain events, automatically unsubscribed
// and closed when ctx is done.
func (b *Bus) Subscribe(ctx context.Context) <-chan pubsub.Event[DomainEvent] {
	return b.broker.Subscribe(ctx)
}

// Close shuts down the bus and every open subscription.
func (b *Bus) Close() { b.broker.Close() }
