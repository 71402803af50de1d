package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/bulkflow/internal/domain/bulk"
	"github.com/yungbote/bulkflow/internal/events"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type spyProducer struct {
	sent []events.Message
	err  error
}

func (p *spyProducer) Send(_ context.Context, m events.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, m)
	return nil
}

func (p *spyProducer) Close() error { return nil }

type spyMetrics struct{ outcomes []string }

func (m *spyMetrics) IncHandledEvent(handler, name, outcome string) {
	m.outcomes = append(m.outcomes, handler+"/"+name+"/"+outcome)
}

func newHandler(t *testing.T, prod *spyProducer, metrics *spyMetrics) *Handler {
	t.Helper()
	h, err := New(Deps{
		Log:      logger.NewNop(),
		Producer: prod,
		Metrics:  metrics,
		Now:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestTranslateCoversEveryInboundDomainEvent(t *testing.T) {
	party := bulk.Party{PartyIDInfo: bulk.PartyIDInfo{PartyIDType: "MSISDN", PartyIdentifier: "123"}}
	cases := []struct {
		in   events.Payload
		want events.Name
		key  string
	}{
		{&events.SDKOutboundBulkRequestReceivedPayload{Request: bulk.BulkTransactionRequest{BulkTransactionID: "b1"}}, events.ProcessSDKOutboundBulkRequest, "b1"},
		{&events.SDKOutboundBulkPartyInfoRequestedPayload{BulkTransactionID: "b1"}, events.ProcessSDKOutboundBulkPartyInfoRequest, "b1"},
		{&events.PartyInfoCallbackReceivedPayload{BulkTransactionID: "b1", TransferID: "t1", Result: bulk.PartyResult{Party: &party}}, events.ProcessPartyInfoCallback, events.PartyKey("b1", "t1")},
		{&events.SDKOutboundBulkAcceptPartyInfoReceivedPayload{BulkTransactionID: "b1", Decisions: []bulk.PartyAcceptance{{TransferID: "t1", AcceptParty: true}}}, events.ProcessSDKOutboundBulkAcceptPartyInfo, "b1"},
		{&events.BulkQuotesCallbackReceivedPayload{BulkTransactionID: "b1", BatchID: "q1"}, events.ProcessBulkQuotesCallback, "b1"},
		{&events.SDKOutboundBulkAcceptQuoteReceivedPayload{BulkTransactionID: "b1", Decisions: []bulk.QuoteAcceptance{{TransferID: "t1"}}}, events.ProcessSDKOutboundBulkAcceptQuote, "b1"},
		{&events.BulkTransfersCallbackReceivedPayload{BulkTransactionID: "b1", BatchID: "q1"}, events.ProcessBulkTransfersCallback, "b1"},
	}
	for _, tc := range cases {
		got, ok := Translate(tc.in)
		if !ok {
			t.Fatalf("%s: not translated", tc.in.EventName())
		}
		if got.EventName() != tc.want || got.EventKey() != tc.key {
			t.Fatalf("%s: want=%s/%s got=%s/%s", tc.in.EventName(), tc.want, tc.key, got.EventName(), got.EventKey())
		}
	}

	for _, p := range []events.Payload{
		&events.PartyInfoRequestedPayload{BulkTransactionID: "b1", TransferID: "t1"},
		&events.BulkQuotesRequestedPayload{BulkTransactionID: "b1", BatchID: "q1"},
		&events.SDKOutboundBulkResponsePreparedPayload{BulkTransactionID: "b1"},
		&events.ProcessBulkQuotesCallbackPayload{BulkTransactionID: "b1", BatchID: "q1"},
	} {
		if _, ok := Translate(p); ok {
			t.Fatalf("%s: want no command", p.EventName())
		}
	}
}

func TestHandleSendsCommandWithTrace(t *testing.T) {
	prod := &spyProducer{}
	metrics := &spyMetrics{}
	h := newHandler(t, prod, metrics)

	in := &events.BulkQuotesCallbackReceivedPayload{
		BulkTransactionID: "b1",
		BatchID:           "q1",
		Response:          bulk.BulkQuoteResponse{BulkQuoteID: "q1", CurrentState: "COMPLETED"},
	}
	msg, err := events.Encode(in, fixedNow, events.Header{Key: events.HeaderTraceID, Value: "trace-9"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(prod.sent) != 1 {
		t.Fatalf("sent: want=1 got=%d", len(prod.sent))
	}
	out := prod.sent[0]
	if out.Type != events.TypeCommand || out.Name != events.ProcessBulkQuotesCallback || out.Key != "b1" {
		t.Fatalf("command: %+v", out)
	}
	if v, _ := out.Header(events.HeaderTraceID); v != "trace-9" {
		t.Fatalf("trace header: got=%q", v)
	}
	p, err := events.Decode(out)
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if got := p.(*events.ProcessBulkQuotesCallbackPayload).Response.BulkQuoteID; got != "q1" {
		t.Fatalf("response carried over: got=%q", got)
	}
	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != "domain/BulkQuotesCallbackReceived/ok" {
		t.Fatalf("outcomes: %v", metrics.outcomes)
	}
}

func TestHandleOutcomes(t *testing.T) {
	ctx := context.Background()
	prod := &spyProducer{}
	metrics := &spyMetrics{}
	h := newHandler(t, prod, metrics)

	ignored, _ := events.Encode(&events.PartyInfoRequestedPayload{
		BulkTransactionID: "b1",
		TransferID:        "t1",
		PartyIDInfo:       bulk.PartyIDInfo{PartyIDType: "MSISDN", PartyIdentifier: "1"},
	}, fixedNow)
	if err := h.Handle(ctx, ignored); err != nil {
		t.Fatalf("ignored: %v", err)
	}
	if err := h.Handle(ctx, events.Message{Type: events.TypeDomain, Name: "SomethingElse"}); err != nil {
		t.Fatalf("unknown: %v", err)
	}
	bad := events.Message{Type: events.TypeDomain, Name: events.SDKOutboundBulkPartyInfoRequested, Content: []byte(`{}`)}
	if err := h.Handle(ctx, bad); err != nil {
		t.Fatalf("malformed: %v", err)
	}
	if len(prod.sent) != 0 {
		t.Fatalf("nothing should be sent: got=%d", len(prod.sent))
	}

	prod.err = errors.New("broker down")
	ok, _ := events.Encode(&events.SDKOutboundBulkPartyInfoRequestedPayload{BulkTransactionID: "b1"}, fixedNow)
	if err := h.Handle(ctx, ok); err == nil {
		t.Fatalf("send failure must ask for redelivery")
	}

	want := []string{
		"domain/PartyInfoRequested/ignored",
		"domain/SomethingElse/unknown",
		"domain/SDKOutboundBulkPartyInfoRequested/invalid",
		"domain/SDKOutboundBulkPartyInfoRequested/retry",
	}
	if len(metrics.outcomes) != len(want) {
		t.Fatalf("outcomes: want=%v got=%v", want, metrics.outcomes)
	}
	for i := range want {
		if metrics.outcomes[i] != want[i] {
			t.Fatalf("outcome %d: want=%s got=%s", i, want[i], metrics.outcomes[i])
		}
	}
}

type panickingProducer struct{}

func (panickingProducer) Send(context.Context, events.Message) error { panic("producer closed twice") }
func (panickingProducer) Close() error                               { return nil }

func TestHandleContainsProducerPanic(t *testing.T) {
	metrics := &spyMetrics{}
	h, err := New(Deps{
		Log:      logger.NewNop(),
		Producer: panickingProducer{},
		Metrics:  metrics,
		Now:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg, err := events.Encode(&events.SDKOutboundBulkPartyInfoRequestedPayload{BulkTransactionID: "b1"}, fixedNow)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: want=nil got=%v", err)
	}
	want := "domain/" + string(events.SDKOutboundBulkPartyInfoRequested) + "/panic"
	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != want {
		t.Fatalf("outcomes: want=[%s] got=%v", want, metrics.outcomes)
	}
}
