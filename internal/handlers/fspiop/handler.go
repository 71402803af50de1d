package fspiop

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
	"github.com/yungbote/bulkflow/internal/reqresp"
)

const tracerName = "bulkflow/handlers/fspiop"

// Metrics is the subset of observability.Metrics the handler reports to.
type Metrics interface {
	IncHandledEvent(handler, name, outcome string)
	IncReqResp(kind, outcome string)
}

type Deps struct {
	Log        *logger.Logger
	Producer   bus.Producer
	Requester  Requester
	Subscriber bus.Subscriber
	// Cache is optional; see reqresp.Config.
	Cache   bus.ReplyCache
	Timeout time.Duration
	Metrics Metrics
	Now     func() time.Time
}

// Handler performs the switch round trips asked for by domain events and
// reports each outcome as a callback domain event. Timeouts and request
// failures become callbacks carrying errorInformation, so the saga always
// progresses.
type Handler struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) (*Handler, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Producer == nil || deps.Requester == nil || deps.Subscriber == nil {
		return nil, fmt.Errorf("producer, requester and subscriber required")
	}
	if deps.Timeout <= 0 {
		deps.Timeout = reqresp.DefaultTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps, log: deps.Log.With("handler", "fspiop")}, nil
}

func (h *Handler) observe(name events.Name, outcome string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.IncHandledEvent("fspiop", string(name), outcome)
	}
}

// Handle is a bus.HandlerFunc. It returns an error only when the callback
// event could not be sent. A panic is logged and the message dropped.
func (h *Handler) Handle(ctx context.Context, msg events.Message) (err error) {
	switch msg.Name {
	case events.PartyInfoRequested, events.BulkQuotesRequested, events.BulkTransfersRequested:
	default:
		return nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, string(msg.Name))
	span.SetAttributes(attribute.String("event.key", msg.Key))
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("fspiop handler panicked",
				"name", msg.Name,
				"key", msg.Key,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, "panic")
			h.observe(msg.Name, "panic")
			span.End()
			err = nil
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payload, err := events.Decode(msg)
	if err != nil {
		h.log.Warn("dropping undecodable event", "name", msg.Name, "key", msg.Key, "error", err)
		h.observe(msg.Name, "invalid")
		return nil
	}

	var out events.Payload
	switch p := payload.(type) {
	case *events.PartyInfoRequestedPayload:
		out = h.lookupParty(ctx, p)
	case *events.BulkQuotesRequestedPayload:
		out = h.requestQuotes(ctx, p)
	case *events.BulkTransfersRequestedPayload:
		out = h.requestTransfers(ctx, p)
	}

	reply, err := events.Encode(out, h.deps.Now(), msg.Headers...)
	if err != nil {
		h.observe(msg.Name, "failed")
		return fmt.Errorf("encode %s: %w", out.EventName(), err)
	}
	if err := h.deps.Producer.Send(ctx, reply); err != nil {
		h.observe(msg.Name, "failed")
		return fmt.Errorf("send %s: %w", reply.Name, err)
	}
	h.observe(msg.Name, "ok")
	return nil
}

// run performs one request/reply round trip and returns the parsed reply, or
// the errorInformation the failure maps to.
func run[R any](ctx context.Context, h *Handler, kind, channel string, request reqresp.RequestFunc) (R, *bulk.ErrorInformation) {
	m := reqresp.New(reqresp.Config[R]{
		Channel:    channel,
		Subscriber: h.deps.Subscriber,
		Cache:      h.deps.Cache,
		Request:    request,
		Timeout:    h.deps.Timeout,
		Log:        h.log,
	})
	var zero R
	if err := m.Initialize(); err != nil {
		h.reportReqResp(kind, "errored")
		return zero, bulk.NewErrorInformation(bulk.ErrorCodeInternal, err.Error())
	}
	res, err := m.Run(ctx)
	switch {
	case err == nil:
		h.reportReqResp(kind, "succeeded")
		return res, nil
	case domainagg.IsCode(err, domainagg.CodeRequestTimeout):
		h.log.Warn("switch did not reply in time", "kind", kind, "channel", channel)
		h.reportReqResp(kind, "timeout")
		return zero, bulk.NewErrorInformation(bulk.ErrorCodeServerTimeout, "Server timed out")
	default:
		h.log.Warn("switch round trip failed", "kind", kind, "channel", channel, "error", err)
		h.reportReqResp(kind, "errored")
		return zero, bulk.NewErrorInformation(bulk.ErrorCodeInternal, err.Error())
	}
}

func (h *Handler) reportReqResp(kind, outcome string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.IncReqResp(kind, outcome)
	}
}

func (h *Handler) lookupParty(ctx context.Context, p *events.PartyInfoRequestedPayload) events.Payload {
	info := p.PartyIDInfo
	channel := reqresp.PartiesChannel(info.PartyIDType, info.PartyIdentifier, info.PartySubIDOrType)
	res, errInfo := run[bulk.PartyResult](ctx, h, "parties", channel, func(ctx context.Context) error {
		return h.deps.Requester.GetParties(ctx, info)
	})
	if errInfo != nil {
		res = bulk.PartyResult{ErrorInformation: errInfo}
	}
	return &events.PartyInfoCallbackReceivedPayload{
		BulkTransactionID: p.BulkTransactionID,
		TransferID:        p.TransferID,
		Result:            res,
	}
}

func quoteDestination(req bulk.BulkQuoteRequest) string {
	if len(req.IndividualQuotes) == 0 {
		return ""
	}
	return req.IndividualQuotes[0].To.PartyIDInfo.FspID
}

func (h *Handler) requestQuotes(ctx context.Context, p *events.BulkQuotesRequestedPayload) events.Payload {
	req := p.Request
	res, errInfo := run[bulk.BulkQuoteResponse](ctx, h, "bulkQuotes", reqresp.BulkQuotesChannel(req.BulkQuoteID), func(ctx context.Context) error {
		return h.deps.Requester.PostBulkQuotes(ctx, quoteDestination(req), req)
	})
	if errInfo != nil {
		res = bulk.BulkQuoteResponse{BulkQuoteID: req.BulkQuoteID, ErrorInformation: errInfo}
	}
	return &events.BulkQuotesCallbackReceivedPayload{
		BulkTransactionID: p.BulkTransactionID,
		BatchID:           p.BatchID,
		Response:          res,
	}
}

func transferDestination(req bulk.BulkTransferRequest) string {
	if len(req.IndividualTransfers) == 0 {
		return ""
	}
	return req.IndividualTransfers[0].To.PartyIDInfo.FspID
}

func (h *Handler) requestTransfers(ctx context.Context, p *events.BulkTransfersRequestedPayload) events.Payload {
	req := p.Request
	res, errInfo := run[bulk.BulkTransferResponse](ctx, h, "bulkTransfers", reqresp.BulkTransfersChannel(req.BulkTransferID), func(ctx context.Context) error {
		return h.deps.Requester.PostBulkTransfers(ctx, transferDestination(req), req)
	})
	if errInfo != nil {
		res = bulk.BulkTransferResponse{BulkTransferID: req.BulkTransferID, ErrorInformation: errInfo}
	}
	return &events.BulkTransfersCallbackReceivedPayload{
		BulkTransactionID: p.BulkTransactionID,
		BatchID:           p.BatchID,
		Response:          res,
	}
}
