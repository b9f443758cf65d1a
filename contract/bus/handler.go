package bus

import "context"

// CommandHandler handles commands of type C.
// Implementations must be safe for concurrent use by multiple goroutines.
type CommandHandler[C Command] interface {
	Handle(ctx context.Context, c C) error
}

// EventHandler handles broker events of type E.
// A fresh handler is built for every delivered message, so implementations
// need not be safe for concurrent use.
type EventHandler[E Event] interface {
	Handle(ctx context.Context, e E) error
}
