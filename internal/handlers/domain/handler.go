// Package domain turns domain events into the commands the saga consumes.
// It never touches the store.
package domain

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
)

const tracerName = "bulkflow/handlers/domain"

type Metrics interface {
	IncHandledEvent(handler, name, outcome string)
}

type Deps struct {
	Log      *logger.Logger
	Producer bus.Producer
	Metrics  Metrics
	Now      func() time.Time
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
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps, log: deps.Log.With("handler", "domain")}, nil
}

// Translate maps a domain payload to its command. ok is false for events
// that no command follows from.
func Translate(p events.Payload) (events.Payload, bool) {
	switch p := p.(type) {
	case *events.SDKOutboundBulkRequestReceivedPayload:
		return &events.ProcessSDKOutboundBulkRequestPayload{Request: p.Request}, true
	case *events.SDKOutboundBulkPartyInfoRequestedPayload:
		return &events.ProcessSDKOutboundBulkPartyInfoRequestPayload{BulkTransactionID: p.BulkTransactionID}, true
	case *events.PartyInfoCallbackReceivedPayload:
		return &events.ProcessPartyInfoCallbackPayload{
			BulkTransactionID: p.BulkTransactionID,
			TransferID:        p.TransferID,
			Result:            p.Result,
		}, true
	case *events.SDKOutboundBulkAcceptPartyInfoReceivedPayload:
		return &events.ProcessSDKOutboundBulkAcceptPartyInfoPayload{
			BulkTransactionID: p.BulkTransactionID,
			Decisions:         p.Decisions,
		}, true
	case *events.BulkQuotesCallbackReceivedPayload:
		return &events.ProcessBulkQuotesCallbackPayload{
			BulkTransactionID: p.BulkTransactionID,
			BatchID:           p.BatchID,
			Response:          p.Response,
		}, true
	case *events.SDKOutboundBulkAcceptQuoteReceivedPayload:
		return &events.ProcessSDKOutboundBulkAcceptQuotePayload{
			BulkTransactionID: p.BulkTransactionID,
			Decisions:         p.Decisions,
		}, true
	case *events.BulkTransfersCallbackReceivedPayload:
		return &events.ProcessBulkTransfersCallbackPayload{
			BulkTransactionID: p.BulkTransactionID,
			BatchID:           p.BatchID,
			Response:          p.Response,
		}, true
	default:
		return nil, false
	}
}

// Handle is a bus.HandlerFunc. Only a failed send asks for redelivery; a
// panic is logged and the message dropped.
func (h *Handler) Handle(ctx context.Context, msg events.Message) (err error) {
	ctx = events.WithTrace(ctx, msg)
	ctx, span := otel.Tracer(tracerName).Start(ctx, string(msg.Name))
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("domain handler panicked",
				"name", msg.Name,
				"key", msg.Key,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, "panic")
			h.observe(msg.Name, "panic")
			err = nil
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("event.key", msg.Key))

	p, err := events.Decode(msg)
	if err != nil {
		if domainagg.IsCode(err, domainagg.CodeUnknownEventName) {
			h.log.Warn("ignoring unknown event", "name", msg.Name, "key", msg.Key)
			h.observe(msg.Name, "unknown")
		} else {
			h.log.Warn("dropping malformed event", "name", msg.Name, "key", msg.Key, "error", err)
			h.observe(msg.Name, "invalid")
		}
		return nil
	}

	cmd, ok := Translate(p)
	if !ok {
		h.observe(msg.Name, "ignored")
		return nil
	}
	out, err := events.Encode(cmd, h.deps.Now(), events.TraceHeaders(ctx)...)
	if err != nil {
		h.log.Error("encode command failed", "name", cmd.EventName(), "key", msg.Key, "error", err)
		h.observe(msg.Name, "failed")
		return nil
	}
	if err := h.deps.Producer.Send(ctx, out); err != nil {
		span.RecordError(err)
		h.log.Warn("send command failed", "name", cmd.EventName(), "key", out.Key, "error", err)
		h.observe(msg.Name, "retry")
		return err
	}
	h.log.Debug("command sent", "from", msg.Name, "name", out.Name, "key", out.Key)
	h.observe(msg.Name, "ok")
	return nil
}

func (h *Handler) observe(name events.Name, outcome string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.IncHandledEvent("domain", string(name), outcome)
	}
}
