package bus

import "time"

// Event is a fact that occurred. It travels through the broker and may have
// any number of handlers, each in any number of processes.
//
// On the wire an event is identified by its name: the Go type name, or the
// value returned by EventName when the event implements Named.
type Event interface {
	OccurredAt() time.Time
}

// Named lets an event choose its wire name instead of its Go type name.
type Named interface {
	EventName() string
}

// BaseEvent carries the creation timestamp shared by all events.
// Embed it in event structs and build it with NewBaseEvent.
type BaseEvent struct {
	TimeStamp time.Time `json:"TimeStamp"`
}

// NewBaseEvent stamps the current time.
func NewBaseEvent() BaseEvent { return BaseEvent{TimeStamp: time.Now()} }

func (e BaseEvent) OccurredAt() time.Time { return e.TimeStamp }
