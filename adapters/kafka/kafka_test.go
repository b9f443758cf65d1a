package kafka_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/next-trace/scg-event-bus/adapters/kafka"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

type fakeClient struct {
	mu         sync.Mutex
	produced   []*kgo.Record
	committed  []*kgo.Record
	produceErr error

	fetches chan kgo.Fetches
	done    chan struct{}
	once    sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{fetches: make(chan kgo.Fetches, 4), done: make(chan struct{})}
}

func (f *fakeClient) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res kgo.ProduceResults
	for _, r := range rs {
		f.produced = append(f.produced, r)
		res = append(res, kgo.ProduceResult{Record: r, Err: f.produceErr})
	}

	return res
}

func (f *fakeClient) PollFetches(ctx context.Context) kgo.Fetches {
	select {
	case fs := <-f.fetches:
		return fs
	case <-f.done:
		return kgo.NewErrFetch(kgo.ErrClientClosed)
	case <-ctx.Done():
		return kgo.NewErrFetch(ctx.Err())
	}
}

func (f *fakeClient) CommitRecords(_ context.Context, rs ...*kgo.Record) error {
	f.mu.Lock()
	f.committed = append(f.committed, rs...)
	f.mu.Unlock()

	return nil
}

func (f *fakeClient) Close() { f.once.Do(func() { close(f.done) }) }

func (f *fakeClient) isClosed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeClient) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.committed)
}

type factory struct {
	mu      sync.Mutex
	clients []*fakeClient
	optsLen []int
	err     error
}

func (fa *factory) build(opts ...kgo.Opt) (kafka.Client, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.err != nil && len(fa.clients) > 0 {
		return nil, fa.err
	}

	c := newFakeClient()
	fa.clients = append(fa.clients, c)
	fa.optsLen = append(fa.optsLen, len(opts))

	return c, nil
}

func fetchOf(topic string, values ...string) kgo.Fetches {
	recs := make([]*kgo.Record, 0, len(values))
	for _, v := range values {
		recs = append(recs, &kgo.Record{Topic: topic, Value: []byte(v)})
	}

	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      topic,
		Partitions: []kgo.FetchPartition{{Partition: 0, Records: recs}},
	}}}}
}

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := kafka.New(kafka.Config{})
	if !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}

	_, err = kafka.NewWithFactory(kafka.Config{Brokers: []string{"b:9092"}}, nil)
	if !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}

func TestPublish_TopicIsEventName(t *testing.T) {
	fa := &factory{}

	tr, err := kafka.NewWithFactory(kafka.Config{Brokers: []string{"b:9092"}}, fa.build)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err = tr.Publish(t.Context(), "FundsTransferred", []byte(`{"Amount":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	p := fa.clients[0]
	if len(p.produced) != 1 || p.produced[0].Topic != "FundsTransferred" || string(p.produced[0].Value) != `{"Amount":1}` {
		t.Fatalf("produced=%+v", p.produced)
	}

	p.produceErr = errors.New("NOT_LEADER_FOR_PARTITION")
	if err = tr.Publish(t.Context(), "FundsTransferred", nil); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}

	p.produceErr = context.Canceled
	if err = tr.Publish(t.Context(), "FundsTransferred", nil); !errors.Is(err, context.Canceled) || errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want bare Canceled, got %v", err)
	}
}

func TestConsume_CommitsBeforeDelivery(t *testing.T) {
	fa := &factory{}

	tr, err := kafka.NewWithFactory(kafka.Config{Brokers: []string{"b:9092"}}, fa.build)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	out, err := tr.Consume(t.Context(), "FundsTransferred")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	if len(fa.clients) != 2 {
		t.Fatalf("want dedicated consumer client, got %d clients", len(fa.clients))
	}

	// seed brokers, auto topic creation, topics, group, manual commit
	if fa.optsLen[1] != 5 {
		t.Fatalf("consumer options=%d", fa.optsLen[1])
	}

	c := fa.clients[1]
	c.fetches <- fetchOf("FundsTransferred", "a", "b")

	for _, want := range []string{"a", "b"} {
		select {
		case d := <-out:
			if d.RoutingKey != "FundsTransferred" || string(d.Body) != want {
				t.Fatalf("delivery=%+v want %q", d, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}

	if got := c.commits(); got != 2 {
		t.Fatalf("committed=%d", got)
	}

	if err = tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed stream")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}

	if !c.isClosed() || !fa.clients[0].isClosed() {
		t.Fatal("clients not closed")
	}

	if _, err = tr.Consume(t.Context(), "FundsTransferred"); !errors.Is(err, berr.ErrBusClosed) {
		t.Fatalf("want ErrBusClosed, got %v", err)
	}
}

func TestConsume_ContextCancelClosesClient(t *testing.T) {
	fa := &factory{}

	tr, err := kafka.NewWithFactory(kafka.Config{Brokers: []string{"b:9092"}}, fa.build)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())

	out, err := tr.Consume(ctx, "q")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed stream")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}

	deadline := time.Now().Add(time.Second)
	for !fa.clients[1].isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("consumer client not closed")
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func TestConsume_ClientInitError(t *testing.T) {
	fa := &factory{err: errors.New("dial tcp: refused")}

	tr, err := kafka.NewWithFactory(kafka.Config{Brokers: []string{"b:9092"}}, fa.build)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err = tr.Consume(t.Context(), "q"); !errors.Is(err, berr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}
}
