package bus

import "context"

// Bus is a minimal, tech-agnostic interface that mirrors the capabilities of the
// concrete event bus while remaining non-generic for interface compatibility.
//
// Typed helpers remain available via generic helper functions in the servicebus package.
// This interface is intended for consumers that want to depend only on contracts.
type Bus interface {
	// Bind (untyped) – type-safe bindings continue via helper funcs in servicebus.
	BindCommandOf(sample any, handler func(ctx context.Context, v any) error) error
	SubscribeOf(sample Event, handler string, call func(ctx context.Context, e any) error) error

	// Commands, in process only
	SendCommand(ctx context.Context, cmd Command) error

	// Events, through the broker
	Publish(ctx context.Context, event Event) error

	// Lifecycle
	Close() error
}
