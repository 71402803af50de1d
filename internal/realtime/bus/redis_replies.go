package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// RedisReplyChannels carries switch callbacks over redis pub/sub, so the HTTP
// role and the role waiting on the reply may run in different processes.
type RedisReplyChannels struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	ttl time.Duration
}

const defaultReplyTTL = 10 * time.Minute

func NewRedisReplyChannels(log *logger.Logger, rdb goredis.UniversalClient, ttl time.Duration) (*RedisReplyChannels, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		ttl = defaultReplyTTL
	}
	return &RedisReplyChannels{log: log.With("service", "RedisReplyChannels"), rdb: rdb, ttl: ttl}, nil
}

func (r *RedisReplyChannels) Publish(ctx context.Context, channel string, payload []byte) error {
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, ReplyKey(channel), payload, r.ttl)
	pipe.Publish(ctx, channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (r *RedisReplyChannels) LastReply(ctx context.Context, channel string) ([]byte, bool, error) {
	raw, err := r.rdb.Get(ctx, ReplyKey(channel)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", ReplyKey(channel), err)
	}
	return raw, true, nil
}

func (r *RedisReplyChannels) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.rdb.Subscribe(ctx, channel)

	// ensures subscription actually started
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	s := &redisSubscription{
		log:     r.log,
		ps:      ps,
		channel: channel,
		out:     make(chan []byte, 1),
		done:    make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

type redisSubscription struct {
	log     *logger.Logger
	ps      *goredis.PubSub
	channel string
	out     chan []byte
	done    chan struct{}
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			select {
			case s.out <- []byte(m.Payload):
			case <-s.done:
				return
			default:
				s.log.Debug("reply dropped, one already pending", "channel", s.channel)
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Unsubscribe(ctx context.Context) error {
	close(s.done)
	err := s.ps.Unsubscribe(ctx, s.channel)
	if cerr := s.ps.Close(); err == nil {
		err = cerr
	}
	return err
}
