package reqresp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
)

type spySubscriber struct {
	mu            sync.Mutex
	subscribes    int
	unsubscribes  int
	channels      []string
	ch            chan []byte
	unsubCtxErr   error
	failSubscribe error
}

func newSpySubscriber() *spySubscriber { return &spySubscriber{ch: make(chan []byte, 1)} }

func (s *spySubscriber) Subscribe(_ context.Context, channel string) (bus.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSubscribe != nil {
		return nil, s.failSubscribe
	}
	s.subscribes++
	s.channels = append(s.channels, channel)
	return spySubscription{s}, nil
}

func (s *spySubscriber) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes, s.unsubscribes
}

type spySubscription struct{ s *spySubscriber }

func (sub spySubscription) Messages() <-chan []byte { return sub.s.ch }

func (sub spySubscription) Unsubscribe(ctx context.Context) error {
	sub.s.mu.Lock()
	defer sub.s.mu.Unlock()
	sub.s.unsubscribes++
	sub.s.unsubCtxErr = ctx.Err()
	return nil
}

type reply struct {
	Value string `json:"value"`
}

func assertBalanced(t *testing.T, s *spySubscriber) {
	t.Helper()
	sub, unsub := s.counts()
	if sub != 1 || unsub != 1 {
		t.Fatalf("subscribe/unsubscribe: want=1/1 got=%d/%d", sub, unsub)
	}
}

func TestModelSucceedsOnReply(t *testing.T) {
	s := newSpySubscriber()
	requests := 0
	m := New(Config[reply]{
		Channel:    BulkQuotesChannel("q1"),
		Subscriber: s,
		Request: func(context.Context) error {
			requests++
			s.ch <- []byte(`{"value":"ok"}`)
			return nil
		},
	})
	if m.State() != StateNone {
		t.Fatalf("state: want=%s got=%s", StateNone, m.State())
	}
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	got, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Value != "ok" || requests != 1 {
		t.Fatalf("reply: got=%+v requests=%d", got, requests)
	}
	if m.State() != StateSucceeded {
		t.Fatalf("state: want=%s got=%s", StateSucceeded, m.State())
	}
	if s.channels[0] != "bulkQuotes-q1" {
		t.Fatalf("channel: got=%s", s.channels[0])
	}
	assertBalanced(t, s)

	if _, err := m.Run(context.Background()); !domainagg.IsCode(err, domainagg.CodeInvariantViolation) {
		t.Fatalf("second Run: want invariant_violation got=%v", err)
	}
}

func TestModelTimesOut(t *testing.T) {
	s := newSpySubscriber()
	m := New(Config[reply]{
		Channel:    PartiesChannel("MSISDN", "123", ""),
		Subscriber: s,
		Request:    func(context.Context) error { return nil },
		Timeout:    20 * time.Millisecond,
	})
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_, err := m.Run(context.Background())
	if !domainagg.IsCode(err, domainagg.CodeRequestTimeout) {
		t.Fatalf("want request_timeout got=%v", err)
	}
	if m.State() != StateErrored {
		t.Fatalf("state: want=%s got=%s", StateErrored, m.State())
	}
	assertBalanced(t, s)
}

func TestModelUnsubscribesOnCancelWithLiveContext(t *testing.T) {
	s := newSpySubscriber()
	ctx, cancel := context.WithCancel(context.Background())
	m := New(Config[reply]{
		Channel:    BulkTransfersChannel("t1"),
		Subscriber: s,
		Request: func(context.Context) error {
			cancel()
			return nil
		},
		Timeout: time.Minute,
	})
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_, err := m.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled got=%v", err)
	}
	assertBalanced(t, s)
	if s.unsubCtxErr != nil {
		t.Fatalf("unsubscribe ran on a cancelled context: %v", s.unsubCtxErr)
	}
}

func TestModelErrorsOnRequestAndParseFailure(t *testing.T) {
	s := newSpySubscriber()
	m := New(Config[reply]{
		Channel:    TransfersChannel("x"),
		Subscriber: s,
		Request:    func(context.Context) error { return errors.New("switch unreachable") },
	})
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := m.Run(context.Background()); !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("request failure: want retryable got=%v", err)
	}
	assertBalanced(t, s)

	s = newSpySubscriber()
	m = New(Config[reply]{
		Channel:    TransfersChannel("y"),
		Subscriber: s,
		Request: func(context.Context) error {
			s.ch <- []byte(`not json`)
			return nil
		},
	})
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := m.Run(context.Background()); !domainagg.IsCode(err, domainagg.CodeSchemaMismatch) {
		t.Fatalf("parse failure: want schema_mismatch got=%v", err)
	}
	if m.State() != StateErrored {
		t.Fatalf("state: want=%s got=%s", StateErrored, m.State())
	}
	assertBalanced(t, s)
}

func TestModelSubscribeFailureSkipsRequest(t *testing.T) {
	s := newSpySubscriber()
	s.failSubscribe = errors.New("redis down")
	called := false
	m := New(Config[reply]{
		Channel:    BulkQuotesChannel("q"),
		Subscriber: s,
		Request:    func(context.Context) error { called = true; return nil },
	})
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := m.Run(context.Background()); err == nil || called {
		t.Fatalf("want error without request: err=%v called=%v", err, called)
	}
}

func TestModelUsesCachedReply(t *testing.T) {
	replies := bus.NewMemoryReplyChannels(0)
	ctx := context.Background()
	if err := replies.Publish(ctx, BulkQuotesChannel("q9"), []byte(`{"value":"cached"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	m := New(Config[reply]{
		Channel:    BulkQuotesChannel("q9"),
		Subscriber: replies,
		Cache:      replies,
		Request: func(context.Context) error {
			t.Fatalf("request must not be resent")
			return nil
		},
	})
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	got, err := m.Run(ctx)
	if err != nil || got.Value != "cached" {
		t.Fatalf("Run: got=%+v err=%v", got, err)
	}
	if n := replies.Subscribers(BulkQuotesChannel("q9")); n != 0 {
		t.Fatalf("subscription leaked: %d", n)
	}
}

func TestInitializeValidates(t *testing.T) {
	m := New(Config[reply]{Subscriber: newSpySubscriber(), Request: func(context.Context) error { return nil }})
	if err := m.Initialize(); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("missing channel: want validation got=%v", err)
	}
}

func TestChannelNames(t *testing.T) {
	cases := map[string]string{
		PartiesChannel("MSISDN", "123", ""):     "parties-MSISDN-123",
		PartiesChannel("ACCOUNT_ID", "9", "s1"): "parties-ACCOUNT_ID-9-s1",
		BulkQuotesChannel("a"):                  "bulkQuotes-a",
		BulkTransfersChannel("b"):               "bulkTransfers-b",
		TransfersChannel("c"):                   "transfers-c",
		bus.ReplyKey(TransfersChannel("c")):     "key-transfers-c",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("channel: want=%s got=%s", want, got)
		}
	}
}
