package servicebus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// CommandMiddleware wraps command handler execution. Middlewares are executed in registration order.
type CommandMiddleware func(next func(ctx context.Context, cmd any) error) func(ctx context.Context, cmd any) error

// CommandBus is a thin facade over Bus for commands.
type CommandBus struct{ b *Bus }

// NewCommandBus constructs a CommandBus over a Bus.
func NewCommandBus(b *Bus) *CommandBus { return &CommandBus{b: b} }

// Send executes a command using the underlying Bus.
func (c *CommandBus) Send(ctx context.Context, cmd cbus.Command) error {
	return c.b.SendCommand(ctx, cmd)
}

// BindCommandOf registers a handler for a specific command type.
// Provide a zero value of the command type via sample.
func (b *Bus) BindCommandOf(sample any, handler func(ctx context.Context, cmd any) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := reflect.TypeOf(sample)
	if t == nil {
		return fmt.Errorf("bind command <nil>: %w", berr.ErrHandlerTypeMismatch)
	}

	if _, exists := b.cmd[t]; exists {
		return fmt.Errorf("bind command %s: %w", t.String(), berr.ErrHandlerExists)
	}

	b.cmd[t] = func(ctx context.Context, v any) error { return handler(ctx, v) }

	return nil
}

// BindCommand registers a handler for command type C. Duplicate bindings are rejected.
func BindCommand[C cbus.Command](b *Bus, h cbus.CommandHandler[C]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := reflect.TypeFor[C]()

	if _, exists := b.cmd[t]; exists {
		return fmt.Errorf("bind command %s: %w", t.String(), berr.ErrHandlerExists)
	}

	b.cmd[t] = func(ctx context.Context, v any) error {
		c, ok := v.(C)
		if !ok {
			return fmt.Errorf("send %s: %w", reflect.TypeOf(v).String(), berr.ErrHandlerTypeMismatch)
		}

		return h.Handle(ctx, c)
	}

	return nil
}

// SendCommand runs the single handler bound to the command's type on the
// caller's goroutine and returns its error unchanged. Commands never touch
// the broker.
func (b *Bus) SendCommand(ctx context.Context, cmd cbus.Command) error {
	return b.sendWithMiddleware(ctx, cmd)
}

// SendCommandWithMiddleware executes a command with additional per-call middleware.
func (b *Bus) SendCommandWithMiddleware(ctx context.Context, cmd cbus.Command, mws ...CommandMiddleware) error {
	return b.sendWithMiddleware(ctx, cmd, mws...)
}

func (b *Bus) sendWithMiddleware(ctx context.Context, cmd cbus.Command, mws ...CommandMiddleware) error {
	t := reflect.TypeOf(cmd)
	if t == nil {
		return fmt.Errorf("send <nil>: %w", berr.ErrHandlerNotFound)
	}

	b.mu.RLock()
	f, ok := b.cmd[t]
	chain := make([]CommandMiddleware, 0, len(b.cmdMW)+len(mws))
	chain = append(chain, b.cmdMW...)
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("send %s: %w", t.String(), berr.ErrHandlerNotFound)
	}

	chain = append(chain, mws...)

	// Build chain so the first registered middleware runs first
	final := f
	for i := len(chain) - 1; i >= 0; i-- {
		final = chain[i](final)
	}

	start := time.Now()
	err := final(ctx, cmd)
	b.metrics.RecordCommand(ctx, t.String(), time.Since(start), err)

	return err
}

// Chain executes commands in order and stops on the first error.
func (b *Bus) Chain(ctx context.Context, cmds ...cbus.Command) error {
	for _, c := range cmds {
		if err := b.sendWithMiddleware(ctx, c); err != nil {
			return err
		}
	}

	return nil
}

// BatchOptions controls Batch execution behavior.
// OnProgress is called after each command completes (success or failure) with done and total.
// OnError is called when a command returns an error with its index, the command value, and the error.
type BatchOptions struct {
	OnProgress func(done, total int)
	OnError    func(index int, cmd cbus.Command, err error)
}

// BatchOpt configures BatchOptions.
type BatchOpt func(*BatchOptions)

// WithBatchProgress sets the progress callback.
func WithBatchProgress(fn func(done, total int)) BatchOpt {
	return func(o *BatchOptions) { o.OnProgress = fn }
}

// WithBatchOnError sets the error callback.
func WithBatchOnError(fn func(index int, cmd cbus.Command, err error)) BatchOpt {
	return func(o *BatchOptions) { o.OnError = fn }
}

// Batch executes the provided commands sequentially.
// It respects context cancellation, reports progress, and aggregates errors.
func (b *Bus) Batch(ctx context.Context, cmds []cbus.Command, opts ...BatchOpt) error {
	var o BatchOptions
	for _, f := range opts {
		f(&o)
	}

	total := len(cmds)

	var errs []error

	for i, c := range cmds {
		if err := ctx.Err(); err != nil { // canceled or deadline exceeded
			return errors.Join(append(errs, err)...)
		}

		err := b.sendWithMiddleware(ctx, c)
		if err != nil {
			if o.OnError != nil {
				o.OnError(i, c, err)
			}

			errs = append(errs, err)
		}

		if o.OnProgress != nil {
			o.OnProgress(i+1, total)
		}
	}

	return errors.Join(errs...)
}
