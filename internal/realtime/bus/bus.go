// Package bus moves events between the coordinator's roles and carries
// per-request reply channels.
package bus

import (
	"context"
	"errors"

	"github.com/yungbote/bulkflow/internal/events"
)

// ErrClosed is returned by a transport used after Close.
var ErrClosed = errors.New("bus closed")

// HandlerFunc processes one message. A non-nil error asks the transport to
// redeliver the message where it can.
type HandlerFunc func(ctx context.Context, msg events.Message) error

type Producer interface {
	Send(ctx context.Context, msg events.Message) error
	Close() error
}

// Consumer delivers the messages of one topic to one consumer group. Run
// blocks until ctx is done or the transport fails.
type Consumer interface {
	Run(ctx context.Context, h HandlerFunc) error
	Close() error
}

// Topics maps an event kind onto the topic (stream) carrying it.
type Topics struct {
	Domain  string
	Command string
}

func (t Topics) For(kind events.Type) string {
	if kind == events.TypeCommand {
		return t.Command
	}
	return t.Domain
}

// Reply channels carry a single switch callback back to the request waiting
// on it.

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

type Subscription interface {
	Messages() <-chan []byte
	Unsubscribe(ctx context.Context) error
}

// ReplyCache remembers the last reply published on a channel, so a request
// redelivered after its reply arrived need not be sent again.
type ReplyCache interface {
	LastReply(ctx context.Context, channel string) ([]byte, bool, error)
}

// ReplyKey is the cache key of channel's last reply.
func ReplyKey(channel string) string { return "key-" + channel }
