// Package command runs the bulk transaction saga. Each command event mutates
// the aggregate and, when a phase is finished, starts the next one by emitting
// domain events.
package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/bulkflow/internal/data/aggregates"
	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/platform/ctxutil"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
)

const tracerName = "bulkflow/handlers/command"

type Metrics interface {
	IncHandledEvent(handler, name, outcome string)
}

type Deps struct {
	Log      *logger.Logger
	Producer bus.Producer
	// Aggregate carries the store, hooks and workflow limits handed to every
	// aggregate the handler loads.
	Aggregate aggregates.BaseDeps
	Metrics   Metrics
	Now       func() time.Time
}

type Handler struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) (*Handler, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Producer == nil {
		return nil, fmt.Errorf("producer required")
	}
	if deps.Aggregate.Repo == nil {
		return nil, fmt.Errorf("bulk transaction repository required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Aggregate.Log == nil {
		deps.Aggregate.Log = deps.Log
	}
	return &Handler{deps: deps, log: deps.Log.With("handler", "command")}, nil
}

// Handle is a bus.HandlerFunc. Unknown or malformed messages are logged and
// dropped. It returns an error, asking the transport for redelivery, only
// when the failure is retryable.
func (h *Handler) Handle(ctx context.Context, msg events.Message) (err error) {
	ctx = events.WithTrace(ctx, msg)
	ctx = ctxutil.WithEventData(ctx, &ctxutil.EventData{Name: string(msg.Name), Key: msg.Key})
	ctx, span := otel.Tracer(tracerName).Start(ctx, string(msg.Name))
	span.SetAttributes(attribute.String("event.key", msg.Key))

	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("command handler panicked",
				"name", msg.Name,
				"key", msg.Key,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, "panic")
			outcome, err = "panic", nil
		}
		h.observe(msg.Name, outcome)
		span.End()
	}()

	p, err := events.Decode(msg)
	if err != nil {
		if domainagg.IsCode(err, domainagg.CodeUnknownEventName) {
			h.log.Warn("ignoring unknown event", "name", msg.Name, "key", msg.Key)
			outcome = "unknown"
		} else {
			h.log.Warn("dropping malformed event", "name", msg.Name, "key", msg.Key, "error", err)
			outcome = "invalid"
		}
		return nil
	}

	if err := h.route(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domainagg.Retryable(err) {
			h.log.Warn("command failed, asking for redelivery", "name", msg.Name, "key", msg.Key, "error", err)
			outcome = "retry"
			return err
		}
		h.log.Error("command failed", "name", msg.Name, "key", msg.Key, "error", err)
		outcome = "failed"
		return nil
	}
	return nil
}

func (h *Handler) route(ctx context.Context, p events.Payload) error {
	switch p := p.(type) {
	case *events.ProcessSDKOutboundBulkRequestPayload:
		return h.processBulkRequest(ctx, p)
	case *events.ProcessSDKOutboundBulkPartyInfoRequestPayload:
		return h.processPartyInfoRequest(ctx, p)
	case *events.ProcessPartyInfoCallbackPayload:
		return h.processPartyInfoCallback(ctx, p)
	case *events.ProcessSDKOutboundBulkAcceptPartyInfoPayload:
		return h.processAcceptPartyInfo(ctx, p)
	case *events.ProcessBulkQuotesCallbackPayload:
		return h.processBulkQuotesCallback(ctx, p)
	case *events.ProcessSDKOutboundBulkAcceptQuotePayload:
		return h.processAcceptQuote(ctx, p)
	case *events.ProcessBulkTransfersCallbackPayload:
		return h.processBulkTransfersCallback(ctx, p)
	default:
		h.log.Debug("not a command, ignored", "name", p.EventName())
		return nil
	}
}

func (h *Handler) observe(name events.Name, outcome string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.IncHandledEvent("command", string(name), outcome)
	}
}

func (h *Handler) load(ctx context.Context, bulkID string) (*aggregates.BulkTransactionAgg, error) {
	return aggregates.CreateFromRepo(ctx, bulkID, h.deps.Aggregate)
}

// emit sends p with the trace headers of the command being handled. Send
// failures are retryable.
func (h *Handler) emit(ctx context.Context, p events.Payload) error {
	const op = "command.emit"
	msg, err := events.Encode(p, h.deps.Now(), events.TraceHeaders(ctx)...)
	if err != nil {
		return err
	}
	if err := h.deps.Producer.Send(ctx, msg); err != nil {
		return domainagg.NewError(domainagg.CodeRetryable, op, fmt.Sprintf("send %s", msg.Name), err)
	}
	return nil
}
