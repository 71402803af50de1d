package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

type eventDataKey struct{}

// EventData identifies the bus message a handler is currently processing.
type EventData struct {
	Name string
	Key  string
}

func WithEventData(ctx context.Context, ed *EventData) context.Context {
	return context.WithValue(ctx, eventDataKey{}, ed)
}

func GetEventData(ctx context.Context) *EventData {
	if ed, ok := ctx.Value(eventDataKey{}).(*EventData); ok {
		return ed
	}
	return nil
}
