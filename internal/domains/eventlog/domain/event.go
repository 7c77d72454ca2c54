package domain

import (
	"errors"
	"time"
)

// AggregateType names the kind of business entity an event belongs to.
type AggregateType string

const (
	AggregateWorkItem AggregateType = "work_item"
	AggregateCase     AggregateType = "support_case"
)

// EventType identifies the payload shape carried by an event.
type EventType string

// ActorType records who caused an event.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorUser   ActorType = "user"
	ActorAI     ActorType = "ai"
)

// Actor identifies the origin of a command and the events it produced.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// SystemActor is used by automations such as the SLA sweep.
func SystemActor(id string) Actor {
	return Actor{Type: ActorSystem, ID: id}
}

// Valid reports whether the actor type is one of the known values.
func (a Actor) Valid() bool {
	switch a.Type {
	case ActorSystem, ActorUser, ActorAI:
		return true
	default:
		return false
	}
}

// Event is an immutable fact appended to the log.
type Event struct {
	GlobalSequence    int64
	AggregateType     AggregateType
	AggregateID       string
	AggregateSequence int64
	Type              EventType
	Data              Payload
	OccurredAt        time.Time
	Actor             Actor
}

var (
	ErrEmptyAggregateID  = errors.New("aggregate id is required")
	ErrNoPayloads        = errors.New("at least one payload is required")
	ErrInvalidActor      = errors.New("actor type must be system, user or ai")
	ErrAggregateMismatch = errors.New("payload does not belong to aggregate type")
)
