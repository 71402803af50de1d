package reqresp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
)

type State string

const (
	StateNone      State = "none"
	StateInit      State = "init"
	StateStart     State = "start"
	StateSucceeded State = "succeeded"
	StateErrored   State = "errored"
)

const (
	DefaultTimeout     = 60 * time.Second
	unsubscribeTimeout = 5 * time.Second
)

// RequestFunc issues the outbound request whose reply arrives on the model's channel.
type RequestFunc func(ctx context.Context) error

// ParseFunc turns a raw reply into R.
type ParseFunc[R any] func(raw []byte) (R, error)

type Config[R any] struct {
	Channel    string
	Subscriber bus.Subscriber
	// Cache is optional. When it holds a reply for Channel the request is not sent again.
	Cache   bus.ReplyCache
	Request RequestFunc
	Parse   ParseFunc[R]
	Timeout time.Duration
	Log     *logger.Logger
}

// Model waits for the reply to one outbound request. It is single-use:
// Run may be called once after Initialize.
type Model[R any] struct {
	cfg Config[R]
	log *logger.Logger

	mu    sync.Mutex
	state State
}

func New[R any](cfg Config[R]) *Model[R] {
	return &Model[R]{cfg: cfg, state: StateNone}
}

func (m *Model[R]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Model[R]) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Model[R]) Initialize() error {
	const op = "reqresp.Initialize"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateNone {
		return domainagg.NewError(domainagg.CodeInvariantViolation, op, fmt.Sprintf("already %s", m.state), nil)
	}
	switch {
	case strings.TrimSpace(m.cfg.Channel) == "":
		return domainagg.NewError(domainagg.CodeValidation, op, "channel required", nil)
	case m.cfg.Subscriber == nil:
		return domainagg.NewError(domainagg.CodeValidation, op, "subscriber required", nil)
	case m.cfg.Request == nil:
		return domainagg.NewError(domainagg.CodeValidation, op, "request func required", nil)
	}
	if m.cfg.Parse == nil {
		m.cfg.Parse = ParseJSON[R]
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = DefaultTimeout
	}
	log := m.cfg.Log
	if log == nil {
		log = logger.NewNop()
	}
	m.log = log.With("channel", m.cfg.Channel)
	m.state = StateInit
	return nil
}

// Run subscribes to the reply channel, sends the request and waits for the
// first of reply, timeout or ctx. The subscription is always released.
func (m *Model[R]) Run(ctx context.Context) (R, error) {
	const op = "reqresp.Run"
	var zero R

	m.mu.Lock()
	if m.state != StateInit {
		st := m.state
		m.mu.Unlock()
		return zero, domainagg.NewError(domainagg.CodeInvariantViolation, op, fmt.Sprintf("cannot run from %s", st), nil)
	}
	m.state = StateStart
	m.mu.Unlock()

	sub, err := m.cfg.Subscriber.Subscribe(ctx, m.cfg.Channel)
	if err != nil {
		m.setState(StateErrored)
		return zero, domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
		defer cancel()
		if err := sub.Unsubscribe(uctx); err != nil {
			m.log.Warn("unsubscribe failed", "error", err)
		}
	}()

	if m.cfg.Cache != nil {
		raw, ok, err := m.cfg.Cache.LastReply(ctx, m.cfg.Channel)
		if err != nil {
			m.log.Warn("reply cache lookup failed", "error", err)
		} else if ok {
			m.log.Debug("reply already cached, request not resent")
			return m.finish(op, raw)
		}
	}

	if err := m.cfg.Request(ctx); err != nil {
		m.setState(StateErrored)
		return zero, domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()

	select {
	case raw, ok := <-sub.Messages():
		if !ok {
			m.setState(StateErrored)
			return zero, domainagg.NewError(domainagg.CodeRetryable, op, "reply channel closed", nil)
		}
		return m.finish(op, raw)
	case <-timer.C:
		m.setState(StateErrored)
		return zero, domainagg.NewError(domainagg.CodeRequestTimeout, op, fmt.Sprintf("no reply on %s after %s", m.cfg.Channel, m.cfg.Timeout), nil)
	case <-ctx.Done():
		m.setState(StateErrored)
		return zero, domainagg.Wrap(domainagg.CodeRetryable, op, ctx.Err())
	}
}

func (m *Model[R]) finish(op string, raw []byte) (R, error) {
	out, err := m.cfg.Parse(raw)
	if err != nil {
		m.setState(StateErrored)
		var zero R
		return zero, domainagg.NewError(domainagg.CodeSchemaMismatch, op, "unparsable reply", err)
	}
	m.setState(StateSucceeded)
	return out, nil
}

func ParseJSON[R any](raw []byte) (R, error) {
	var out R
	err := json.Unmarshal(raw, &out)
	return out, err
}
