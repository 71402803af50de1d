package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/bulkflow/internal/config"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

type recordingRequester struct {
	mu      sync.Mutex
	parties []bulk.PartyIDInfo
}

func (r *recordingRequester) GetParties(_ context.Context, info bulk.PartyIDInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parties = append(r.parties, info)
	return nil
}

func (r *recordingRequester) PostBulkQuotes(context.Context, string, bulk.BulkQuoteRequest) error {
	return nil
}

func (r *recordingRequester) PostBulkTransfers(context.Context, string, bulk.BulkTransferRequest) error {
	return nil
}

func (r *recordingRequester) lookups() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.parties)
}

func memoryConfig() *config.Config {
	return &config.Config{
		Env:         "test",
		ServiceName: "bulkflow-test",
		HTTP:        config.HTTPConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second, MaxRequestBytes: 1 << 20},
		Store:       config.StoreConfig{Backend: config.StoreMemory},
		Bus: config.BusConfig{
			Backend:      config.BusMemory,
			DomainTopic:  "domain-events",
			CommandTopic: "command-events",
			ConsumerName: "test",
		},
		Workflow: config.WorkflowConfig{BatchMaxEntries: 10, ChildWriteConcurrency: 2, RequestTimeout: time.Minute},
		Roles:    config.RolesConfig{CommandHandler: true, DomainHandler: true, FSPIOPHandler: true, API: true},
	}
}

const bulkBody = `{
  "bulkHomeTransactionID": "home-1",
  "from": {"partyIdInfo": {"partyIdType": "MSISDN", "partyIdentifier": "27713803912", "fspId": "payerfsp"}},
  "options": {"autoAcceptParty": {"enabled": true}, "autoAcceptQuote": {"enabled": false}},
  "individualTransfers": [
    {"homeTransactionId": "h-1", "to": {"partyIdInfo": {"partyIdType": "MSISDN", "partyIdentifier": "123"}}, "amountType": "SEND", "currency": "USD", "amount": "10"}
  ]
}`

func TestMemoryWiringRunsSagaToPartyLookup(t *testing.T) {
	req := &recordingRequester{}
	a, err := NewWithConfig(context.Background(), logger.NewNop(), memoryConfig(), WithRequester(req))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if a.Handlers.Command == nil || a.Handlers.Domain == nil || a.Handlers.FSPIOP == nil || a.Server == nil {
		t.Fatalf("every role should be wired: %+v", a.Handlers)
	}
	if len(a.roles) != 3 {
		t.Fatalf("roles: want=3 got=%d", len(a.roles))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bulkTransactions", strings.NewReader(bulkBody)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for req.lookups() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("party lookup never reached the switch")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestRunWithoutRolesFails(t *testing.T) {
	cfg := memoryConfig()
	cfg.Roles = config.RolesConfig{}
	a, err := NewWithConfig(context.Background(), logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("want error with no roles enabled")
	}
}

func TestUnknownBackendsAreRejected(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Backend = "cassandra"
	if _, err := NewWithConfig(context.Background(), logger.NewNop(), cfg); err == nil {
		t.Fatalf("want error for unknown store backend")
	}

	cfg = memoryConfig()
	cfg.Bus.Backend = "kafka"
	if _, err := NewWithConfig(context.Background(), logger.NewNop(), cfg); err == nil {
		t.Fatalf("want error for unknown bus backend")
	}
}
