// Package events defines the messages exchanged over the bus: the envelope,
// the event names and the typed payload carried by each name.
package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/yungbote/bulkflow/internal/platform/ctxutil"
)

// Type separates facts (domain events) from instructions (command events).
type Type string

const (
	TypeDomain  Type = "DOMAIN_EVENT"
	TypeCommand Type = "COMMAND_EVENT"
)

type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Message is the envelope written to the bus. Key is the bulk transaction id,
// or a PartyKey for per-transfer party events; it also picks the partition.
type Message struct {
	Type      Type            `json:"type"`
	Name      Name            `json:"name"`
	Key       string          `json:"key"`
	Content   json.RawMessage `json:"content"`
	Timestamp int64           `json:"timestamp"`
	Headers   []Header        `json:"headers,omitempty"`
}

// Header returns the first header named key.
func (m Message) Header(key string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// Well-known headers.
const (
	HeaderTraceID   = "x-trace-id"
	HeaderRequestID = "x-request-id"
)

// Marshal renders the envelope for transports that carry raw bytes.
func (m Message) Marshal() ([]byte, error) { return json.Marshal(m) }

// Unmarshal parses an envelope. The payload is left raw; see Decode.
func Unmarshal(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// WithTrace returns ctx carrying the trace and request ids found on m.
func WithTrace(ctx context.Context, m Message) context.Context {
	traceID, _ := m.Header(HeaderTraceID)
	requestID, _ := m.Header(HeaderRequestID)
	if traceID == "" && requestID == "" {
		return ctx
	}
	return ctxutil.WithTraceData(ctx, &ctxutil.TraceData{TraceID: traceID, RequestID: requestID})
}

// TraceHeaders renders the trace data on ctx as headers for an outgoing message.
func TraceHeaders(ctx context.Context) []Header {
	td := ctxutil.GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var out []Header
	if td.TraceID != "" {
		out = append(out, Header{Key: HeaderTraceID, Value: td.TraceID})
	}
	if td.RequestID != "" {
		out = append(out, Header{Key: HeaderRequestID, Value: td.RequestID})
	}
	return out
}
