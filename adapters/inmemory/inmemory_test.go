package inmemory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/next-trace/scg-event-bus/adapters/inmemory"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

func TestPublishThenConsume(t *testing.T) {
	tr := inmemory.New(inmemory.WithRecording())
	defer tr.Close()

	if err := tr.Publish(t.Context(), "FundsTransferred", []byte(`{"Amount":100}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ch, err := tr.Consume(t.Context(), "FundsTransferred")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	select {
	case d := <-ch:
		if d.RoutingKey != "FundsTransferred" || string(d.Body) != `{"Amount":100}` {
			t.Fatalf("unexpected delivery: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery")
	}

	if got := len(tr.Published()); got != 1 {
		t.Fatalf("want 1 recorded publish, got %d", got)
	}
}

func TestPublishCopiesBody(t *testing.T) {
	tr := inmemory.New(inmemory.WithRecording())
	defer tr.Close()

	body := []byte("abc")
	if err := tr.Publish(t.Context(), "q", body); err != nil {
		t.Fatalf("publish: %v", err)
	}

	body[0] = 'z'

	if got := string(tr.Published()[0].Body); got != "abc" {
		t.Fatalf("body aliased caller slice: %q", got)
	}
}

func TestDeclareQueue_Idempotent(t *testing.T) {
	tr := inmemory.New()
	defer tr.Close()

	for i := 0; i < 3; i++ {
		if err := tr.DeclareQueue(t.Context(), "q"); err != nil {
			t.Fatalf("declare %d: %v", i, err)
		}
	}
}

func TestPublish_QueueFullDropsWithoutError(t *testing.T) {
	tr := inmemory.NewWithBuffer(4)
	defer tr.Close()

	for i := 0; i < 10; i++ {
		if err := tr.Publish(t.Context(), "q", []byte{byte(i)}); err != nil {
			t.Fatalf("publish #%d with no consumer: %v", i, err)
		}
	}

	if got := tr.Dropped(); got != 6 {
		t.Fatalf("want 6 dropped, got %d", got)
	}

	ch, err := tr.Consume(t.Context(), "q")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	for want := byte(0); want < 4; want++ {
		select {
		case d := <-ch:
			if d.Body[0] != want {
				t.Fatalf("want oldest messages kept, got %v at %d", d.Body, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
}

func TestPublish_NoRecordingByDefault(t *testing.T) {
	tr := inmemory.New()
	defer tr.Close()

	for i := 0; i < 100; i++ {
		if err := tr.Publish(t.Context(), "q", []byte("x")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if got := len(tr.Published()); got != 0 {
		t.Fatalf("want no retained records, got %d", got)
	}
}

func TestConsume_StreamClosesOnCancelAndClose(t *testing.T) {
	tr := inmemory.New()

	ctx, cancel := context.WithCancel(t.Context())

	ch, err := tr.Consume(ctx, "q")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed stream")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}

	ch2, err := tr.Consume(t.Context(), "q")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	_ = tr.Close()

	select {
	case _, ok := <-ch2:
		if ok {
			t.Fatal("expected closed stream")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after Close")
	}

	if err := tr.Publish(t.Context(), "q", nil); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed after close, got %v", err)
	}

	if _, err := tr.Consume(t.Context(), "q"); !errors.Is(err, berr.ErrBusClosed) {
		t.Fatalf("want ErrBusClosed after close, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	tr := inmemory.New()
	defer tr.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := tr.Publish(ctx, "q", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
