package bus

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

const memoryQueueSize = 1024

// MemoryBus is an in-process transport for single-binary runs and tests.
// Every consumer group registered on a topic gets its own copy of each
// message. Messages sent to a topic with no group yet are dropped.
type MemoryBus struct {
	log    *logger.Logger
	topics Topics

	mu     sync.RWMutex
	groups map[string]map[string]chan events.Message
	closed bool
}

func NewMemoryBus(log *logger.Logger, topics Topics) *MemoryBus {
	if log == nil {
		log = logger.NewNop()
	}
	return &MemoryBus{
		log:    log.With("service", "MemoryBus"),
		topics: topics,
		groups: map[string]map[string]chan events.Message{},
	}
}

func (b *MemoryBus) Send(ctx context.Context, msg events.Message) error {
	topic := b.topics.For(msg.Type)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if len(b.groups[topic]) == 0 {
		b.log.Debug("no consumer group for topic", "topic", topic, "name", msg.Name)
	}
	for _, ch := range b.groups[topic] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Consumer registers group on topic. Registering the same group twice returns
// consumers sharing one queue.
func (b *MemoryBus) Consumer(topic, group string) *MemoryConsumer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[topic] == nil {
		b.groups[topic] = map[string]chan events.Message{}
	}
	ch, ok := b.groups[topic][group]
	if !ok {
		ch = make(chan events.Message, memoryQueueSize)
		b.groups[topic][group] = ch
	}
	return &MemoryConsumer{log: b.log.With("topic", topic, "group", group), ch: ch, done: make(chan struct{})}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type MemoryConsumer struct {
	log         *logger.Logger
	ch          chan events.Message
	once        sync.Once
	done        chan struct{}
	concurrency int
}

// WithConcurrency lets Run handle up to n messages at once.
func (c *MemoryConsumer) WithConcurrency(n int) *MemoryConsumer {
	c.concurrency = n
	return c
}

// Run delivers messages one at a time unless a concurrency was set. There is
// no redelivery: a handler error is logged and the message dropped.
func (c *MemoryConsumer) Run(ctx context.Context, h HandlerFunc) error {
	d := newDispatcher(c.concurrency)
	defer d.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case msg := <-c.ch:
			d.Go(func() {
				if err := h(ctx, msg); err != nil {
					c.log.Warn("handler failed", "name", msg.Name, "key", msg.Key, "error", err)
				}
			})
		}
	}
}

func (c *MemoryConsumer) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// MemoryReplyChannels is an in-process Publisher and Subscriber. Last replies
// expire after ttl, like their redis counterparts.
type MemoryReplyChannels struct {
	mu        sync.Mutex
	subs      map[string]map[*memorySubscription]struct{}
	last      map[string]cachedReply
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

type cachedReply struct {
	payload []byte
	expires time.Time
}

// NewMemoryReplyChannels keeps last replies for ttl; zero means ten minutes.
func NewMemoryReplyChannels(ttl time.Duration) *MemoryReplyChannels {
	if ttl <= 0 {
		ttl = defaultReplyTTL
	}
	return &MemoryReplyChannels{
		subs: map[string]map[*memorySubscription]struct{}{},
		last: map[string]cachedReply{},
		ttl:  ttl,
		now:  time.Now,
	}
}

func (r *MemoryReplyChannels) Publish(_ context.Context, channel string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	r.last[channel] = cachedReply{payload: append([]byte(nil), payload...), expires: now.Add(r.ttl)}
	for s := range r.subs[channel] {
		select {
		case s.ch <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

func (r *MemoryReplyChannels) LastReply(_ context.Context, channel string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.last[channel]
	if !ok {
		return nil, false, nil
	}
	if !r.now().Before(c.expires) {
		delete(r.last, channel)
		return nil, false, nil
	}
	return c.payload, true, nil
}

// sweep drops expired replies at most once per ttl. Callers hold r.mu.
func (r *MemoryReplyChannels) sweep(now time.Time) {
	if now.Before(r.nextSweep) {
		return
	}
	for ch, c := range r.last {
		if !now.Before(c.expires) {
			delete(r.last, ch)
		}
	}
	r.nextSweep = now.Add(r.ttl)
}

// Cached reports how many last replies are held, expired or not.
func (r *MemoryReplyChannels) Cached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.last)
}

func (r *MemoryReplyChannels) Subscribe(_ context.Context, channel string) (Subscription, error) {
	s := &memorySubscription{owner: r, channel: channel, ch: make(chan []byte, 1)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[channel] == nil {
		r.subs[channel] = map[*memorySubscription]struct{}{}
	}
	r.subs[channel][s] = struct{}{}
	return s, nil
}

// Subscribers reports how many subscriptions are open on channel.
func (r *MemoryReplyChannels) Subscribers(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[channel])
}

type memorySubscription struct {
	owner   *MemoryReplyChannels
	channel string
	ch      chan []byte
}

func (s *memorySubscription) Messages() <-chan []byte { return s.ch }

func (s *memorySubscription) Unsubscribe(context.Context) error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	delete(s.owner.subs[s.channel], s)
	if len(s.owner.subs[s.channel]) == 0 {
		delete(s.owner.subs, s.channel)
	}
	return nil
}
