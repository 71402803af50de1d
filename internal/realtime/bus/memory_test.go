package bus

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

var testTopics = Topics{Domain: "domain-events", Command: "command-events"}

func recv(t *testing.T, ch <-chan events.Message) events.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return events.Message{}
}

func TestMemoryBusFansOutPerGroup(t *testing.T) {
	b := NewMemoryBus(logger.NewNop(), testTopics)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gotA := make(chan events.Message, 4)
	gotB := make(chan events.Message, 4)
	gotCmd := make(chan events.Message, 4)
	consumers := []struct {
		c   *MemoryConsumer
		out chan events.Message
	}{
		{b.Consumer(testTopics.Domain, "domain-handler"), gotA},
		{b.Consumer(testTopics.Domain, "fspiop-handler"), gotB},
		{b.Consumer(testTopics.Command, "command-handler"), gotCmd},
	}
	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.c.Run(ctx, func(_ context.Context, m events.Message) error {
				c.out <- m
				return nil
			})
		}()
	}

	if err := b.Send(ctx, events.Message{Type: events.TypeDomain, Name: events.BulkQuotesRequested, Key: "b1"}); err != nil {
		t.Fatalf("send domain: %v", err)
	}
	if err := b.Send(ctx, events.Message{Type: events.TypeCommand, Name: events.ProcessBulkQuotesCallback, Key: "b1"}); err != nil {
		t.Fatalf("send command: %v", err)
	}

	if m := recv(t, gotA); m.Name != events.BulkQuotesRequested {
		t.Fatalf("group a: got=%s", m.Name)
	}
	if m := recv(t, gotB); m.Name != events.BulkQuotesRequested {
		t.Fatalf("group b: got=%s", m.Name)
	}
	if m := recv(t, gotCmd); m.Name != events.ProcessBulkQuotesCallback {
		t.Fatalf("command group: got=%s", m.Name)
	}

	cancel()
	wg.Wait()
	_ = b.Close()
	if err := b.Send(context.Background(), events.Message{Type: events.TypeDomain}); err != ErrClosed {
		t.Fatalf("send after close: want=ErrClosed got=%v", err)
	}
}

func TestMemoryReplyChannels(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryReplyChannels(0)
	sub, err := r.Subscribe(ctx, "bulkQuotes-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if r.Subscribers("bulkQuotes-1") != 1 {
		t.Fatalf("subscribers: want=1 got=%d", r.Subscribers("bulkQuotes-1"))
	}
	if err := r.Publish(ctx, "bulkQuotes-2", []byte("other")); err != nil {
		t.Fatalf("publish other: %v", err)
	}
	if err := r.Publish(ctx, "bulkQuotes-1", []byte("reply")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case raw := <-sub.Messages():
		if string(raw) != "reply" {
			t.Fatalf("payload: got=%s", raw)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for reply")
	}
	if raw, ok, _ := r.LastReply(ctx, "bulkQuotes-1"); !ok || string(raw) != "reply" {
		t.Fatalf("last reply: ok=%v raw=%s", ok, raw)
	}
	if _, ok, _ := r.LastReply(ctx, "bulkQuotes-3"); ok {
		t.Fatalf("no reply expected on an unused channel")
	}
	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if r.Subscribers("bulkQuotes-1") != 0 {
		t.Fatalf("subscribers after unsubscribe: got=%d", r.Subscribers("bulkQuotes-1"))
	}
}

func TestMemoryReplyChannelsExpireLastReply(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewMemoryReplyChannels(time.Minute)
	r.now = func() time.Time { return now }

	if err := r.Publish(ctx, "parties-MSISDN-1", []byte("old")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	now = now.Add(59 * time.Second)
	if raw, ok, _ := r.LastReply(ctx, "parties-MSISDN-1"); !ok || string(raw) != "old" {
		t.Fatalf("before expiry: ok=%v raw=%s", ok, raw)
	}
	now = now.Add(time.Second)
	if _, ok, _ := r.LastReply(ctx, "parties-MSISDN-1"); ok {
		t.Fatalf("after expiry: want=miss got=hit")
	}
	if r.Cached() != 0 {
		t.Fatalf("expired reply read: want=evicted got=%d cached", r.Cached())
	}

	// replies nobody reads again are dropped by later publishes
	if err := r.Publish(ctx, "parties-MSISDN-2", []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := r.Publish(ctx, "parties-MSISDN-3", []byte("b")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if r.Cached() != 1 {
		t.Fatalf("cached after sweep: want=1 got=%d", r.Cached())
	}
}

func TestMemoryConsumerHandlesConcurrently(t *testing.T) {
	const n = 3
	b := NewMemoryBus(logger.NewNop(), testTopics)
	c := b.Consumer(testTopics.Domain, "fspiop-handler").WithConcurrency(n)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan string, n)
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx, func(_ context.Context, m events.Message) error {
			started <- m.Key
			<-release
			return nil
		})
	}()

	for i := 0; i < n; i++ {
		msg := events.Message{Type: events.TypeDomain, Name: events.PartyInfoRequested, Key: string(rune('a' + i))}
		if err := b.Send(ctx, msg); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	// every handler is parked on release, so all n must be running together
	for i := 0; i < n; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatalf("in flight: want=%d got=%d", n, i)
		}
	}
	close(release)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestDispatcherInlineKeepsOrder(t *testing.T) {
	d := newDispatcher(1)
	var got []int
	for i := 0; i < 5; i++ {
		d.Go(func() { got = append(got, i) })
	}
	d.Wait()
	for i, v := range got {
		if v != i {
			t.Fatalf("order: want=%d got=%d", i, v)
		}
	}
}

func TestTopicsFor(t *testing.T) {
	if testTopics.For(events.TypeCommand) != "command-events" || testTopics.For(events.TypeDomain) != "domain-events" {
		t.Fatalf("topic routing broken: %+v", testTopics)
	}
}

func TestRedisStreamsRoundTrip(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	suffix := time.Now().Format("150405.000000")
	topics := Topics{Domain: "test-domain-" + suffix, Command: "test-command-" + suffix}
	prod, err := NewRedisStreamProducer(logger.NewNop(), rdb, topics, 1000)
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	cons, err := NewRedisStreamConsumer(logger.NewNop(), rdb, RedisStreamConsumerConfig{
		Stream:       topics.Command,
		Group:        "command-handler",
		BlockTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Del(context.Background(), topics.Domain, topics.Command).Err() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan events.Message, 1)
	go func() {
		_ = cons.Run(ctx, func(_ context.Context, m events.Message) error {
			got <- m
			return nil
		})
	}()

	msg := events.Message{Type: events.TypeCommand, Name: events.ProcessBulkQuotesCallback, Key: "b1", Content: []byte(`{"bulkId":"b1"}`)}
	if err := prod.Send(ctx, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	m := recv(t, got)
	if m.Name != msg.Name || m.Key != "b1" || string(m.Content) != `{"bulkId":"b1"}` {
		t.Fatalf("received: %+v", m)
	}

	replies, err := NewRedisReplyChannels(logger.NewNop(), rdb, time.Minute)
	if err != nil {
		t.Fatalf("replies: %v", err)
	}
	sub, err := replies.Subscribe(ctx, "bulkTransfers-"+suffix)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() { _ = sub.Unsubscribe(context.Background()) }()
	if err := replies.Publish(ctx, "bulkTransfers-"+suffix, []byte("ok")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case raw := <-sub.Messages():
		if string(raw) != "ok" {
			t.Fatalf("reply: got=%s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply")
	}
}

func TestRedisStreamConsumerReclaimsRedelivery(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	stream := "test-reclaim-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = rdb.Del(context.Background(), stream).Err() })
	prod, err := NewRedisStreamProducer(logger.NewNop(), rdb, Topics{Domain: stream, Command: stream + "-cmd"}, 1000)
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	cons, err := NewRedisStreamConsumer(logger.NewNop(), rdb, RedisStreamConsumerConfig{
		Stream:        stream,
		Group:         "fspiop-handler",
		BlockTimeout:  50 * time.Millisecond,
		Concurrency:   4,
		ClaimMinIdle:  100 * time.Millisecond,
		ClaimInterval: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var (
		mu       sync.Mutex
		attempts = map[string]int{}
	)
	handled := make(chan string, 8)
	go func() {
		_ = cons.Run(ctx, func(_ context.Context, m events.Message) error {
			mu.Lock()
			attempts[m.Key]++
			n := attempts[m.Key]
			mu.Unlock()
			if m.Key == "flaky" && n == 1 {
				return errors.New("store unavailable")
			}
			handled <- m.Key
			return nil
		})
	}()

	for _, key := range []string{"flaky", "steady"} {
		if err := prod.Send(ctx, events.Message{Type: events.TypeDomain, Name: events.PartyInfoRequested, Key: key}); err != nil {
			t.Fatalf("send %s: %v", key, err)
		}
	}
	seen := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case k := <-handled:
			seen[k] = true
		case <-deadline:
			t.Fatalf("handled: want=flaky,steady got=%v", seen)
		}
	}
	mu.Lock()
	flaky := attempts["flaky"]
	mu.Unlock()
	if flaky != 2 {
		t.Fatalf("flaky attempts: want=2 got=%d", flaky)
	}
	// the ack follows the handler return
	var pending int64 = -1
	for i := 0; i < 20 && pending != 0; i++ {
		p, err := rdb.XPending(context.Background(), stream, "fspiop-handler").Result()
		if err != nil {
			t.Fatalf("xpending: %v", err)
		}
		pending = p.Count
		time.Sleep(25 * time.Millisecond)
	}
	if pending != 0 {
		t.Fatalf("pending after success: want=0 got=%d", pending)
	}
}
