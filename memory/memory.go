package memory

import (
	"github.com/next-trace/scg-event-bus/adapters/inmemory"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	"github.com/next-trace/scg-event-bus/servicebus"
)

// New constructs an event bus backed by the in-memory transport and returns it
// as a contract.Bus along with a cleanup function that closes the bus.
func New() (cbus.Bus, func()) { //nolint:ireturn
	sb := servicebus.New(inmemory.New(), nil)
	cleanup := func() { _ = sb.Close() }

	return sb, cleanup
}
