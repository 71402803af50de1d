package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bulkflow/internal/data/aggregates"
	"github.com/yungbote/bulkflow/internal/data/statestore"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
	"github.com/yungbote/bulkflow/internal/events"
	httpH "github.com/yungbote/bulkflow/internal/http/handlers"
	"github.com/yungbote/bulkflow/internal/observability"
	"github.com/yungbote/bulkflow/internal/platform/logger"
	"github.com/yungbote/bulkflow/internal/realtime/bus"
	"github.com/yungbote/bulkflow/internal/reqresp"
)

type spyProducer struct {
	mu   sync.Mutex
	sent []events.Message
	err  error
}

func (p *spyProducer) Send(_ context.Context, m events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, m)
	return nil
}

func (p *spyProducer) Close() error { return nil }

type env struct {
	router  *gin.Engine
	prod    *spyProducer
	store   *statestore.MemoryStore
	replies *bus.MemoryReplyChannels
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := statestore.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	prod := &spyProducer{}
	replies := bus.NewMemoryReplyChannels(0)
	log := logger.NewNop()
	deps := aggregates.BaseDeps{Repo: store, Log: log}
	r := NewRouter(RouterConfig{
		Log:             log,
		ServiceName:     "bulkflow-test",
		Metrics:         observability.NewMetrics(),
		MaxRequestBytes: 1 << 20,
		BulkHandler:     httpH.NewBulkTransactionHandler(log, prod, deps),
		CallbackHandler: httpH.NewCallbackHandler(log, replies),
		HealthHandler:   httpH.NewHealthHandler(store),
	})
	return &env{router: r, prod: prod, store: store, replies: replies}
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	var req *nethttp.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Trace-Id", "trace-http")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

const bulkBody = `{
  "bulkHomeTransactionID": "home-1",
  "from": {"partyIdInfo": {"partyIdType": "MSISDN", "partyIdentifier": "27713803912", "fspId": "payerfsp"}},
  "options": {"autoAcceptParty": {"enabled": true}, "autoAcceptQuote": {"enabled": false}},
  "individualTransfers": [
    {"homeTransactionId": "h-1", "to": {"partyIdInfo": {"partyIdType": "MSISDN", "partyIdentifier": "123"}}, "amountType": "SEND", "currency": "USD", "amount": "10"}
  ]
}`

func TestCreateAssignsIDAndEmits(t *testing.T) {
	e := newEnv(t)
	rec := e.do(nethttp.MethodPost, "/bulkTransactions", bulkBody)
	if rec.Code != nethttp.StatusAccepted {
		t.Fatalf("status: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["bulkTransactionId"] == "" || out["currentState"] != bulk.ExternalStateReceived {
		t.Fatalf("body: %v", out)
	}
	if len(e.prod.sent) != 1 {
		t.Fatalf("sent: want=1 got=%d", len(e.prod.sent))
	}
	msg := e.prod.sent[0]
	if msg.Name != events.SDKOutboundBulkRequestReceived || msg.Key != out["bulkTransactionId"] {
		t.Fatalf("message: %s/%s", msg.Name, msg.Key)
	}
	if v, _ := msg.Header(events.HeaderTraceID); v != "trace-http" {
		t.Fatalf("trace header: got=%q", v)
	}
}

func TestCreateRejectsInvalidAndUnavailable(t *testing.T) {
	e := newEnv(t)
	rec := e.do(nethttp.MethodPost, "/bulkTransactions", `{"bulkHomeTransactionID":"h","individualTransfers":[]}`)
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("invalid: want=400 got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "violations") {
		t.Fatalf("violations missing: %s", rec.Body.String())
	}
	if rec := e.do(nethttp.MethodPost, "/bulkTransactions", `{not json`); rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("malformed: want=400 got=%d", rec.Code)
	}

	e.prod.err = errors.New("broker down")
	if rec := e.do(nethttp.MethodPost, "/bulkTransactions", bulkBody); rec.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("send failure: want=503 got=%d", rec.Code)
	}
}

func TestGetReturnsSnapshotOr404(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(nethttp.MethodGet, "/bulkTransactions/missing", ""); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("missing: want=404 got=%d", rec.Code)
	}

	var req bulk.BulkTransactionRequest
	if err := json.Unmarshal([]byte(bulkBody), &req); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	req.BulkTransactionID = "5b1c0d5a-8f0e-4d43-9b2a-3f6a1f0e2c11"
	if _, err := aggregates.CreateFromRequest(context.Background(), &req, aggregates.BaseDeps{Repo: e.store}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec := e.do(nethttp.MethodGet, "/bulkTransactions/"+req.BulkTransactionID, "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp bulk.BulkTransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CurrentState != bulk.ExternalStateReceived || len(resp.IndividualTransfers) != 1 {
		t.Fatalf("snapshot: %+v", resp)
	}
}

func TestContinueEmitsDecisions(t *testing.T) {
	e := newEnv(t)
	rec := e.do(nethttp.MethodPut, "/bulkTransactions/b1", `{"individualTransfers":[{"transferId":"t1","acceptParty":true},{"transferId":"t2","acceptParty":false}]}`)
	if rec.Code != nethttp.StatusAccepted {
		t.Fatalf("party decisions: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = e.do(nethttp.MethodPut, "/bulkTransactions/b1", `{"individualTransfers":[{"transferId":"t1","acceptQuote":true}]}`)
	if rec.Code != nethttp.StatusAccepted {
		t.Fatalf("quote decisions: want=202 got=%d", rec.Code)
	}
	if len(e.prod.sent) != 2 {
		t.Fatalf("sent: want=2 got=%d", len(e.prod.sent))
	}
	p, err := events.Decode(e.prod.sent[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	party, ok := p.(*events.SDKOutboundBulkAcceptPartyInfoReceivedPayload)
	if !ok || len(party.Decisions) != 2 || party.Decisions[1].AcceptParty {
		t.Fatalf("party payload: %#v", p)
	}
	if e.prod.sent[1].Name != events.SDKOutboundBulkAcceptQuoteReceived {
		t.Fatalf("second message: %s", e.prod.sent[1].Name)
	}

	for _, body := range []string{
		`{"individualTransfers":[{"transferId":"t1","acceptParty":true},{"transferId":"t2","acceptQuote":true}]}`,
		`{"individualTransfers":[{"transferId":"t1","acceptParty":true,"acceptQuote":true}]}`,
		`{"individualTransfers":[{"transferId":"t1"}]}`,
		`{"individualTransfers":[]}`,
		`{"individualTransfers":[{"acceptQuote":true}]}`,
	} {
		if rec := e.do(nethttp.MethodPut, "/bulkTransactions/b1", body); rec.Code != nethttp.StatusBadRequest {
			t.Fatalf("%s: want=400 got=%d", body, rec.Code)
		}
	}
}

func TestCallbacksPublishOnReplyChannels(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cases := []struct {
		path    string
		channel string
	}{
		{"/parties/MSISDN/123", reqresp.PartiesChannel("MSISDN", "123", "")},
		{"/parties/MSISDN/123/error", reqresp.PartiesChannel("MSISDN", "123", "")},
		{"/parties/MSISDN/123/sub", reqresp.PartiesChannel("MSISDN", "123", "sub")},
		{"/parties/MSISDN/123/sub/error", reqresp.PartiesChannel("MSISDN", "123", "sub")},
		{"/bulkQuotes/q1", reqresp.BulkQuotesChannel("q1")},
		{"/bulkQuotes/q1/error", reqresp.BulkQuotesChannel("q1")},
		{"/bulkTransfers/x1", reqresp.BulkTransfersChannel("x1")},
		{"/bulkTransfers/x1/error", reqresp.BulkTransfersChannel("x1")},
	}
	for _, tc := range cases {
		sub, err := e.replies.Subscribe(ctx, tc.channel)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		body := `{"path":"` + tc.path + `"}`
		if rec := e.do(nethttp.MethodPut, tc.path, body); rec.Code != nethttp.StatusOK {
			t.Fatalf("%s: want=200 got=%d", tc.path, rec.Code)
		}
		select {
		case raw := <-sub.Messages():
			if string(raw) != body {
				t.Fatalf("%s: payload got=%s", tc.path, raw)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no reply on %s", tc.path, tc.channel)
		}
		_ = sub.Unsubscribe(ctx)
	}

	if rec := e.do(nethttp.MethodPut, "/bulkQuotes/q1", ""); rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("empty body: want=400 got=%d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	rec := e.do(nethttp.MethodGet, "/health", "")
	if rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), `"bulkTransactionRepoConnected":true`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(nethttp.MethodGet, "/bulkTransactions/missing", ""); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("get missing: want=404 got=%d", rec.Code)
	}
	_ = e.store.Close()
	if rec := e.do(nethttp.MethodGet, "/health", ""); rec.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("health after close: want=503 got=%d", rec.Code)
	}
	rec = e.do(nethttp.MethodGet, "/metrics", "")
	if rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), "bulkflow_api_requests_total") {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `route="/health"`) {
		t.Fatalf("health probes must not be counted")
	}
}
