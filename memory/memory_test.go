package memory

import (
	"context"
	"testing"
	"time"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
)

type testCmd struct{}

type testEvt struct {
	cbus.BaseEvent
	N int
}

func TestNewMemoryBus_BasicFlow(t *testing.T) {
	b, cleanup := New()
	defer cleanup()

	ctx := context.Background()

	// Bind and send a command
	cmdCount := 0
	if err := b.BindCommandOf(testCmd{}, func(ctx context.Context, v any) error {
		cmdCount++
		return nil
	}); err != nil {
		t.Fatalf("bind command: %v", err)
	}
	if err := b.SendCommand(ctx, testCmd{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if cmdCount != 1 {
		t.Fatalf("expected cmdCount=1 got %d", cmdCount)
	}

	// Subscribe and publish an event through the in-memory broker
	got := make(chan int, 1)
	if err := b.SubscribeOf(testEvt{}, "counter", func(ctx context.Context, v any) error {
		got <- v.(testEvt).N
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Publish(ctx, testEvt{BaseEvent: cbus.NewBaseEvent(), N: 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case n := <-got:
		if n != 7 {
			t.Fatalf("expected N=7 got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewMemoryBus_PublishBeyondBufferWithoutSubscribers(t *testing.T) {
	b, cleanup := New()
	defer cleanup()

	for i := 0; i < 2000; i++ {
		if err := b.Publish(t.Context(), testEvt{BaseEvent: cbus.NewBaseEvent(), N: i}); err != nil {
			t.Fatalf("publish #%d with zero subscribers: %v", i, err)
		}
	}
}
