package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
)

type shape struct {
	kind Type
	new  func() Payload
}

var shapes = map[Name]shape{
	SDKOutboundBulkRequestReceived:          {TypeDomain, func() Payload { return &SDKOutboundBulkRequestReceivedPayload{} }},
	SDKOutboundBulkPartyInfoRequested:       {TypeDomain, func() Payload { return &SDKOutboundBulkPartyInfoRequestedPayload{} }},
	PartyInfoRequested:                      {TypeDomain, func() Payload { return &PartyInfoRequestedPayload{} }},
	PartyInfoCallbackReceived:               {TypeDomain, func() Payload { return &PartyInfoCallbackReceivedPayload{} }},
	SDKOutboundBulkAcceptPartyInfoRequested: {TypeDomain, func() Payload { return &SDKOutboundBulkAcceptPartyInfoRequestedPayload{} }},
	SDKOutboundBulkAcceptPartyInfoReceived:  {TypeDomain, func() Payload { return &SDKOutboundBulkAcceptPartyInfoReceivedPayload{} }},
	BulkQuotesRequested:                     {TypeDomain, func() Payload { return &BulkQuotesRequestedPayload{} }},
	BulkQuotesCallbackReceived:              {TypeDomain, func() Payload { return &BulkQuotesCallbackReceivedPayload{} }},
	SDKOutboundBulkAcceptQuoteRequested:     {TypeDomain, func() Payload { return &SDKOutboundBulkAcceptQuoteRequestedPayload{} }},
	SDKOutboundBulkAcceptQuoteReceived:      {TypeDomain, func() Payload { return &SDKOutboundBulkAcceptQuoteReceivedPayload{} }},
	BulkTransfersRequested:                  {TypeDomain, func() Payload { return &BulkTransfersRequestedPayload{} }},
	BulkTransfersCallbackReceived:           {TypeDomain, func() Payload { return &BulkTransfersCallbackReceivedPayload{} }},
	SDKOutboundBulkResponsePrepared:         {TypeDomain, func() Payload { return &SDKOutboundBulkResponsePreparedPayload{} }},

	ProcessSDKOutboundBulkRequest:          {TypeCommand, func() Payload { return &ProcessSDKOutboundBulkRequestPayload{} }},
	ProcessSDKOutboundBulkPartyInfoRequest: {TypeCommand, func() Payload { return &ProcessSDKOutboundBulkPartyInfoRequestPayload{} }},
	ProcessPartyInfoCallback:               {TypeCommand, func() Payload { return &ProcessPartyInfoCallbackPayload{} }},
	ProcessSDKOutboundBulkAcceptPartyInfo:  {TypeCommand, func() Payload { return &ProcessSDKOutboundBulkAcceptPartyInfoPayload{} }},
	ProcessBulkQuotesCallback:              {TypeCommand, func() Payload { return &ProcessBulkQuotesCallbackPayload{} }},
	ProcessSDKOutboundBulkAcceptQuote:      {TypeCommand, func() Payload { return &ProcessSDKOutboundBulkAcceptQuotePayload{} }},
	ProcessBulkTransfersCallback:           {TypeCommand, func() Payload { return &ProcessBulkTransfersCallbackPayload{} }},
}

// KindOf reports whether name is a domain or command event.
func KindOf(name Name) (Type, bool) {
	s, ok := shapes[name]
	return s.kind, ok
}

// Names lists every registered name in sorted order.
func Names() []Name {
	out := make([]Name, 0, len(shapes))
	for n := range shapes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decode returns the typed payload of msg. It fails with unknown_event_name
// when the name is not registered, and with schema_mismatch when the content
// does not parse into the registered shape, carries fields the shape does not
// know, misses required fields, or the envelope type disagrees with the name.
func Decode(msg Message) (Payload, error) {
	const op = "events.Decode"
	s, ok := shapes[msg.Name]
	if !ok {
		return nil, domainagg.NewError(domainagg.CodeUnknownEventName, op, fmt.Sprintf("unknown event name %q", msg.Name), nil)
	}
	if msg.Type != "" && msg.Type != s.kind {
		return nil, domainagg.NewError(domainagg.CodeSchemaMismatch, op,
			fmt.Sprintf("%s is a %s, envelope says %s", msg.Name, s.kind, msg.Type), nil)
	}
	p := s.new()
	dec := json.NewDecoder(bytes.NewReader(msg.Content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, domainagg.NewError(domainagg.CodeSchemaMismatch, op, fmt.Sprintf("%s content: %v", msg.Name, err), err)
	}
	if err := bulk.Validate(p); err != nil {
		return nil, domainagg.NewError(domainagg.CodeSchemaMismatch, op, fmt.Sprintf("%s content: %v", msg.Name, err), err)
	}
	return p, nil
}

// Encode wraps p in an envelope keyed by p.EventKey().
func Encode(p Payload, now time.Time, headers ...Header) (Message, error) {
	const op = "events.Encode"
	if p == nil {
		return Message{}, domainagg.NewError(domainagg.CodeInternal, op, "nil payload", nil)
	}
	s, ok := shapes[p.EventName()]
	if !ok {
		return Message{}, domainagg.NewError(domainagg.CodeUnknownEventName, op, fmt.Sprintf("unknown event name %q", p.EventName()), nil)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Message{}, domainagg.NewError(domainagg.CodeInternal, op, err.Error(), err)
	}
	return Message{
		Type:      s.kind,
		Name:      p.EventName(),
		Key:       p.EventKey(),
		Content:   raw,
		Timestamp: now.UnixMilli(),
		Headers:   headers,
	}, nil
}
