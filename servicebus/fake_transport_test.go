package servicebus_test

import (
	"context"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
)

// fakeTransport routes published bodies straight to the stream of the same
// name and lets tests inject arbitrary deliveries.
type fakeTransport struct {
	mu         sync.Mutex
	streams    map[string]chan cbus.Delivery
	consumes   map[string]int
	publishErr error
	consumeErr error
	closed     bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		streams:  make(map[string]chan cbus.Delivery),
		consumes: make(map[string]int),
	}
}

func (f *fakeTransport) DeclareQueue(ctx context.Context, name string) error { return ctx.Err() }

func (f *fakeTransport) Publish(ctx context.Context, name string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}

	if ch, ok := f.streams[name]; ok {
		ch <- cbus.Delivery{RoutingKey: name, Body: body}
	}

	return nil
}

func (f *fakeTransport) Consume(ctx context.Context, name string) (<-chan cbus.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.consumes[name]++

	if f.consumeErr != nil {
		return nil, f.consumeErr
	}

	ch := make(chan cbus.Delivery, 16)
	f.streams[name] = ch

	return ch, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	return nil
}

func (f *fakeTransport) inject(stream string, d cbus.Delivery) {
	f.mu.Lock()
	ch := f.streams[stream]
	f.mu.Unlock()

	ch <- d
}

// drop closes a stream, as a lost broker connection would.
func (f *fakeTransport) drop(stream string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	close(f.streams[stream])
	delete(f.streams, stream)
}

func (f *fakeTransport) consumeCalls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.consumes[name]
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}
