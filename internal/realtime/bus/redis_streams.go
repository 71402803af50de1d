package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

const (
	streamFieldKey     = "key"
	streamFieldMessage = "message"

	defaultBlockTimeout  = 2 * time.Second
	defaultReadCount     = 32
	defaultClaimMinIdle  = 2 * time.Minute
	defaultClaimInterval = 30 * time.Second
)

// RedisStreamProducer appends messages to one redis stream per topic.
type RedisStreamProducer struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	topics Topics
	maxLen int64
}

func NewRedisStreamProducer(log *logger.Logger, rdb goredis.UniversalClient, topics Topics, maxLen int64) (*RedisStreamProducer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if strings.TrimSpace(topics.Domain) == "" || strings.TrimSpace(topics.Command) == "" {
		return nil, fmt.Errorf("domain and command topics required")
	}
	return &RedisStreamProducer{
		log:    log.With("service", "RedisStreamProducer"),
		rdb:    rdb,
		topics: topics,
		maxLen: maxLen,
	}, nil
}

func (p *RedisStreamProducer) Send(ctx context.Context, msg events.Message) error {
	raw, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Name, err)
	}
	args := &goredis.XAddArgs{
		Stream: p.topics.For(msg.Type),
		Values: map[string]any{streamFieldKey: msg.Key, streamFieldMessage: raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	p.log.Debug("event sent", "stream", args.Stream, "name", msg.Name, "key", msg.Key)
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (p *RedisStreamProducer) Close() error { return nil }

type RedisStreamConsumerConfig struct {
	Stream       string
	Group        string
	Consumer     string
	BlockTimeout time.Duration
	Count        int64
	// Concurrency bounds how many entries are handled at once. Zero or one
	// handles them in stream order.
	Concurrency int
	// Entries pending for at least ClaimMinIdle, in this consumer or a dead
	// one, are claimed and handled again every ClaimInterval. ClaimMinIdle
	// must exceed the longest handler run.
	ClaimMinIdle  time.Duration
	ClaimInterval time.Duration
}

// RedisStreamConsumer reads a stream through a consumer group. Entries left
// pending by a previous run of the same consumer are replayed first, and
// entries a handler asked to redeliver are reclaimed once idle. An entry is
// acknowledged once its handler returns nil, or at once when it cannot be
// parsed.
type RedisStreamConsumer struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	cfg RedisStreamConsumerConfig

	inflight sync.Map
}

func NewRedisStreamConsumer(log *logger.Logger, rdb goredis.UniversalClient, cfg RedisStreamConsumerConfig) (*RedisStreamConsumer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if strings.TrimSpace(cfg.Stream) == "" || strings.TrimSpace(cfg.Group) == "" {
		return nil, fmt.Errorf("stream and group required")
	}
	if strings.TrimSpace(cfg.Consumer) == "" {
		cfg.Consumer = cfg.Group + "-1"
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	if cfg.Count <= 0 {
		cfg.Count = defaultReadCount
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = defaultClaimMinIdle
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = defaultClaimInterval
	}
	return &RedisStreamConsumer{
		log: log.With("service", "RedisStreamConsumer", "stream", cfg.Stream, "group", cfg.Group),
		rdb: rdb,
		cfg: cfg,
	}, nil
}

func (c *RedisStreamConsumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s/%s: %w", c.cfg.Stream, c.cfg.Group, err)
	}
	return nil
}

func (c *RedisStreamConsumer) Run(ctx context.Context, h HandlerFunc) error {
	if h == nil {
		return fmt.Errorf("handler required")
	}
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.log.Info("consumer started", "consumer", c.cfg.Consumer, "concurrency", c.cfg.Concurrency)

	d := newDispatcher(c.cfg.Concurrency)
	defer d.Wait()

	// An explicit id replays this consumer's pending entries after it; ">" asks for new ones.
	cursor := "0"
	nextClaim := time.Now().Add(c.cfg.ClaimInterval)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if cursor == ">" && !time.Now().Before(nextClaim) {
			c.reclaim(ctx, d, h)
			nextClaim = time.Now().Add(c.cfg.ClaimInterval)
		}
		streams, err := c.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, cursor},
			Count:    c.cfg.Count,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xreadgroup %s: %w", c.cfg.Stream, err)
		}

		last := ""
		for _, s := range streams {
			for _, entry := range s.Messages {
				last = entry.ID
				c.dispatch(ctx, d, entry, h)
			}
		}
		if cursor != ">" {
			// walk the pending list once; entries that fail again are reclaimed later
			cursor = last
			if last == "" {
				cursor = ">"
			}
		}
	}
}

// reclaim takes over entries that stayed pending for ClaimMinIdle and hands
// them to h again.
func (c *RedisStreamConsumer) reclaim(ctx context.Context, d *dispatcher, h HandlerFunc) {
	start := "0-0"
	for ctx.Err() == nil {
		msgs, next, err := c.rdb.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.ClaimMinIdle,
			Start:    start,
			Count:    c.cfg.Count,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("xautoclaim failed", "error", err)
			}
			return
		}
		for _, entry := range msgs {
			c.log.Debug("reclaimed pending entry", "id", entry.ID)
			c.dispatch(ctx, d, entry, h)
		}
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

// dispatch hands entry to h unless it is still being handled here.
func (c *RedisStreamConsumer) dispatch(ctx context.Context, d *dispatcher, entry goredis.XMessage, h HandlerFunc) {
	if _, busy := c.inflight.LoadOrStore(entry.ID, struct{}{}); busy {
		return
	}
	d.Go(func() {
		defer c.inflight.Delete(entry.ID)
		c.handle(ctx, entry, h)
	})
}

func (c *RedisStreamConsumer) handle(ctx context.Context, entry goredis.XMessage, h HandlerFunc) {
	raw, _ := entry.Values[streamFieldMessage].(string)
	msg, err := events.Unmarshal([]byte(raw))
	if err != nil {
		c.log.Warn("dropping unparsable stream entry", "id", entry.ID, "error", err)
		c.ack(ctx, entry.ID)
		return
	}
	if err := h(ctx, msg); err != nil {
		c.log.Warn("handler asked for redelivery", "id", entry.ID, "name", msg.Name, "error", err)
		return
	}
	c.ack(ctx, entry.ID)
}

func (c *RedisStreamConsumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.log.Warn("xack failed", "id", id, "error", err)
	}
}

func (c *RedisStreamConsumer) Close() error { return nil }
