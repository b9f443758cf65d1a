// Package registry maps event names to their concrete event type and to the
// handlers subscribed to them.
//
// The registry is written while the process wires its subscriptions and read
// by every consumer loop afterwards. Entries are never removed once a
// subscription is running.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/next-trace/scg-event-bus/codec"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Decoder builds a fresh value of the registered event type from a payload.
type Decoder func(data []byte) (any, error)

// Invoker runs one handler against a decoded event.
type Invoker func(ctx context.Context, evt any) error

// EventType is the concrete type registered for an event name.
type EventType struct {
	Name   string
	Type   reflect.Type
	Decode Decoder
}

// Descriptor identifies one handler for one event name. Handler must be
// unique per event name.
type Descriptor struct {
	Handler string
	Invoke  Invoker
}

// Route is a snapshot of everything needed to dispatch one message.
type Route struct {
	Event    EventType
	Handlers []Descriptor
}

type entry struct {
	event    EventType
	handlers []Descriptor
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register appends desc to the handlers of ev.Name. The event type is recorded
// the first time the name is seen, in which case first is true.
//
// A second registration of the same handler for the same name fails with
// ErrHandlerExists. A different Go type claiming an existing name fails with
// ErrEventNameConflict.
func (r *Registry) Register(ev EventType, desc Descriptor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ev.Name]
	if !ok {
		r.entries[ev.Name] = &entry{event: ev, handlers: []Descriptor{desc}}
		return true, nil
	}

	if e.event.Type != ev.Type {
		return false, fmt.Errorf("register %s as %s (have %s): %w",
			ev.Name, typeString(ev.Type), typeString(e.event.Type), berr.ErrEventNameConflict)
	}

	for _, h := range e.handlers {
		if h.Handler == desc.Handler {
			return false, fmt.Errorf("handler %s already registered for %q: %w", desc.Handler, ev.Name, berr.ErrHandlerExists)
		}
	}

	e.handlers = append(e.handlers, desc)

	return false, nil
}

// Forget drops name and all its handlers. It only exists to undo a first
// registration whose consumer could not be started.
func (r *Registry) Forget(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
}

// Lookup returns the route for name. Handlers are in registration order.
func (r *Registry) Lookup(name string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Route{}, false
	}

	return Route{Event: e.event, Handlers: append([]Descriptor(nil), e.handlers...)}, true
}

// Names returns the registered event names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	r.mu.RUnlock()

	sort.Strings(names)

	return names
}

// EventTypeOf describes E for registration, decoding payloads with c.
func EventTypeOf[E cbus.Event](c cbus.Codec) EventType {
	return EventType{
		Name: c.Name(codec.Sample[E]()),
		Type: reflect.TypeFor[E](),
		Decode: func(data []byte) (any, error) {
			var e E
			if err := c.Decode(data, &e); err != nil {
				return nil, err
			}

			return e, nil
		},
	}
}

// EventTypeFor describes the dynamic type of sample. Payloads decode into a
// new value of that type, not into sample itself.
func EventTypeFor(sample cbus.Event, c cbus.Codec) EventType {
	t := reflect.TypeOf(sample)

	return EventType{
		Name: c.Name(sample),
		Type: t,
		Decode: func(data []byte) (any, error) {
			ptr := reflect.New(t)
			if err := c.Decode(data, ptr.Interface()); err != nil {
				return nil, err
			}

			return ptr.Elem().Interface(), nil
		},
	}
}

// DescriptorOf describes handler type H. newHandler is called once per
// delivered message.
func DescriptorOf[E cbus.Event, H cbus.EventHandler[E]](newHandler func() H) Descriptor {
	return Descriptor{
		Handler: reflect.TypeFor[H]().String(),
		Invoke: func(ctx context.Context, v any) error {
			e, ok := v.(E)
			if !ok {
				return fmt.Errorf("invoke %T: %w", v, berr.ErrHandlerTypeMismatch)
			}

			return newHandler().Handle(ctx, e)
		},
	}
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}
