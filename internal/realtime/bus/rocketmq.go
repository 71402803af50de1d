package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"

	"github.com/yungbote/bulkflow/internal/config"
	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

const propertyEventName = "eventName"

func credentials(cfg config.RocketMQConfig) primitive.Credentials {
	return primitive.Credentials{AccessKey: cfg.AccessKey, SecretKey: cfg.SecretKey}
}

// RocketMQProducer sends messages with the bulk or party key as the sharding
// key, so one bulk transaction stays on one queue.
type RocketMQProducer struct {
	log    *logger.Logger
	topics Topics
	prod   rocketmq.Producer
}

func NewRocketMQProducer(log *logger.Logger, cfg config.RocketMQConfig, topics Topics) (*RocketMQProducer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(cfg.NameServers) == 0 {
		return nil, fmt.Errorf("no rocketmq name servers configured")
	}
	prod, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.NameServers),
		producer.WithCredentials(credentials(cfg)),
		producer.WithNamespace(strings.TrimSpace(cfg.Namespace)),
		producer.WithRetry(2),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}
	if err := prod.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer: %w", err)
	}
	return &RocketMQProducer{
		log:    log.With("service", "RocketMQProducer"),
		topics: topics,
		prod:   prod,
	}, nil
}

func (p *RocketMQProducer) Send(ctx context.Context, msg events.Message) error {
	body, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Name, err)
	}
	out := primitive.NewMessage(p.topics.For(msg.Type), body)
	out.WithKeys([]string{msg.Key})
	out.WithShardingKey(msg.Key)
	out.WithProperty(propertyEventName, string(msg.Name))
	if _, err := p.prod.SendSync(ctx, out); err != nil {
		return fmt.Errorf("rocketmq send: %w", err)
	}
	return nil
}

func (p *RocketMQProducer) Close() error { return p.prod.Shutdown() }

// RocketMQConsumer is a push consumer bound to one topic and group. Handler
// errors become ConsumeRetryLater up to the configured reconsume limit. With a
// concurrency above one, messages are pulled in batches of that size and the
// batch is handled in parallel; any failure redelivers the whole batch.
type RocketMQConsumer struct {
	log         *logger.Logger
	topic       string
	concurrency int

	mu   sync.Mutex
	cons rocketmq.PushConsumer
}

func NewRocketMQConsumer(log *logger.Logger, cfg config.RocketMQConfig, topic, group string, concurrency int) (*RocketMQConsumer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(cfg.NameServers) == 0 {
		return nil, fmt.Errorf("no rocketmq name servers configured")
	}
	opts := []consumer.Option{
		consumer.WithGroupName(group),
		consumer.WithNameServer(cfg.NameServers),
		consumer.WithCredentials(credentials(cfg)),
		consumer.WithNamespace(strings.TrimSpace(cfg.Namespace)),
		consumer.WithConsumerOrder(true),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromFirstOffset),
	}
	if cfg.MaxReconsume > 0 {
		opts = append(opts, consumer.WithMaxReconsumeTimes(int32(cfg.MaxReconsume)))
	}
	if concurrency > 1 {
		opts = append(opts, consumer.WithConsumeMessageBatchMaxSize(concurrency))
	}
	cons, err := rocketmq.NewPushConsumer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq consumer: %w", err)
	}
	return &RocketMQConsumer{
		log:         log.With("service", "RocketMQConsumer", "topic", topic, "group", group),
		topic:       topic,
		concurrency: concurrency,
		cons:        cons,
	}, nil
}

func (c *RocketMQConsumer) Run(ctx context.Context, h HandlerFunc) error {
	if h == nil {
		return fmt.Errorf("handler required")
	}
	err := c.cons.Subscribe(c.topic, consumer.MessageSelector{}, func(cctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		var failed atomic.Bool
		d := newDispatcher(c.concurrency)
		for _, m := range msgs {
			msg, err := events.Unmarshal(m.Body)
			if err != nil {
				c.log.Warn("dropping unparsable message", "msg_id", m.MsgId, "error", err)
				continue
			}
			d.Go(func() {
				if err := h(cctx, msg); err != nil {
					c.log.Warn("handler asked for redelivery", "msg_id", m.MsgId, "name", msg.Name, "error", err)
					failed.Store(true)
				}
			})
			if failed.Load() && c.concurrency <= 1 {
				break
			}
		}
		d.Wait()
		if failed.Load() {
			return consumer.ConsumeRetryLater, nil
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("subscribe to topic %s: %w", c.topic, err)
	}
	if err := c.cons.Start(); err != nil {
		return fmt.Errorf("start rocketmq consumer: %w", err)
	}
	c.log.Info("consumer started")
	<-ctx.Done()
	return c.Close()
}

func (c *RocketMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cons == nil {
		return nil
	}
	err := c.cons.Shutdown()
	c.cons = nil
	return err
}
