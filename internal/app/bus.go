package app

import (
	"fmt"

	"github.com/yungbote/bulkflow/internal/config"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
)

const (
	groupCommandHandler = "command-handler"
	groupDomainHandler  = "domain-handler"
	groupFSPIOPHandler  = "fspiop-handler"

	streamMaxLen = 100_000
)

// ReplyChannels carries switch callbacks from the API role to the waiting
// FSPIOP handler.
type ReplyChannels interface {
	bus.Publisher
	bus.Subscriber
	bus.ReplyCache
}

// Transport is the configured message bus: one producer shared by every role
// and a factory for per-group consumers.
type Transport struct {
	Producer bus.Producer
	Replies  ReplyChannels

	consumer func(topic, group string, concurrency int) (bus.Consumer, error)
}

// Consumer returns a consumer for group on topic handling up to concurrency
// messages at once.
func (t Transport) Consumer(topic, group string, concurrency int) (bus.Consumer, error) {
	return t.consumer(topic, group, concurrency)
}

func wireTransport(log *logger.Logger, cfg *config.Config, clients Clients) (Transport, error) {
	log.Info("Wiring message bus...", "backend", cfg.Bus.Backend)
	topics := bus.Topics{Domain: cfg.Bus.DomainTopic, Command: cfg.Bus.CommandTopic}

	var out Transport
	switch cfg.Bus.Backend {
	case config.BusMemory:
		mem := bus.NewMemoryBus(log, topics)
		out.Producer = mem
		out.consumer = func(topic, group string, concurrency int) (bus.Consumer, error) {
			return mem.Consumer(topic, group).WithConcurrency(concurrency), nil
		}
	case config.BusRedis:
		prod, err := bus.NewRedisStreamProducer(log, clients.Redis, topics, streamMaxLen)
		if err != nil {
			return Transport{}, fmt.Errorf("init redis stream producer: %w", err)
		}
		out.Producer = prod
		out.consumer = func(topic, group string, concurrency int) (bus.Consumer, error) {
			return bus.NewRedisStreamConsumer(log, clients.Redis, bus.RedisStreamConsumerConfig{
				Stream:        topic,
				Group:         group,
				Consumer:      group + "-" + cfg.Bus.ConsumerName,
				BlockTimeout:  cfg.Bus.BlockTimeout,
				Concurrency:   concurrency,
				ClaimMinIdle:  cfg.Bus.ClaimMinIdle,
				ClaimInterval: cfg.Bus.ClaimInterval,
			})
		}
	case config.BusRocketMQ:
		prod, err := bus.NewRocketMQProducer(log, cfg.Bus.RocketMQ, topics)
		if err != nil {
			return Transport{}, fmt.Errorf("init rocketmq producer: %w", err)
		}
		out.Producer = prod
		out.consumer = func(topic, group string, concurrency int) (bus.Consumer, error) {
			return bus.NewRocketMQConsumer(log, cfg.Bus.RocketMQ, topic, group, concurrency)
		}
	default:
		return Transport{}, fmt.Errorf("unsupported bus backend %q", cfg.Bus.Backend)
	}

	if cfg.Bus.Backend == config.BusMemory && clients.Redis == nil {
		out.Replies = bus.NewMemoryReplyChannels(0)
		return out, nil
	}
	replies, err := bus.NewRedisReplyChannels(log, clients.Redis, 0)
	if err != nil {
		_ = out.Producer.Close()
		return Transport{}, fmt.Errorf("init reply channels: %w", err)
	}
	out.Replies = replies
	return out, nil
}
