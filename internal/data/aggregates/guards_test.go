package aggregates

import (
	"testing"
	"time"

	"github.com/yungbote/bulkflow/internal/domain/bulk"
)

func TestRequireStatusAllowed(t *testing.T) {
	if err := RequireStatusAllowed("RECEIVED", "RECEIVED"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireStatusAllowed("DISCOVERY_PROCESSING", "RECEIVED"); err == nil {
		t.Fatalf("expected conflict error")
	}
	if err := RequireStatusAllowed("RECEIVED"); err == nil {
		t.Fatalf("expected validation error for empty allow list")
	}
}

func TestRequireBatchMember(t *testing.T) {
	b := bulk.NewBulkBatch("dfsp-a", []string{"t1", "t2"}, nil, time.Now())
	if err := RequireBatchMember(b, "t2"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireBatchMember(b, "t3"); err == nil {
		t.Fatalf("expected invariant error")
	}
}
