package aggregates

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/bulkflow/internal/data/statestore"
	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := MapError("op", ConflictError("stale"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	for _, in := range []error{
		gorm.ErrRecordNotFound,
		goredis.Nil,
		fmt.Errorf("statestore.Load b-1: %w", statestore.ErrNotFound),
	} {
		err := MapError("op", in)
		if !domainagg.IsCode(err, domainagg.CodeNotFound) {
			t.Fatalf("%v: expected not_found code, got %q", in, domainagg.CodeOf(err))
		}
	}
}

func TestMapError_RepositoryUnavailable(t *testing.T) {
	err := MapError("op", statestore.ErrRepositoryUnavailable)
	if !domainagg.IsCode(err, domainagg.CodeRepositoryUnavailable) {
		t.Fatalf("expected repository_unavailable, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PgCodes(t *testing.T) {
	cases := map[string]domainagg.ErrorCode{
		"23505": domainagg.CodeConflict,
		"40001": domainagg.CodeRetryable,
		"40P01": domainagg.CodeRetryable,
	}
	for code, want := range cases {
		err := MapError("op", &pgconn.PgError{Code: code})
		if !domainagg.IsCode(err, want) {
			t.Fatalf("pg %s: want=%s got=%s", code, want, domainagg.CodeOf(err))
		}
	}
}

func TestMapError_ContextErrorsAreRetryable(t *testing.T) {
	if !domainagg.IsCode(MapError("op", context.DeadlineExceeded), domainagg.CodeRetryable) {
		t.Fatalf("deadline should map to retryable")
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestMapError_StoreConflictIsRetryable(t *testing.T) {
	in := fmt.Errorf("statestore.UpdateAttribute b-1/t-1: %w", statestore.ErrConflict)
	err := MapError("op", in)
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("store conflict: want=%s got=%s", domainagg.CodeRetryable, domainagg.CodeOf(err))
	}
	if !errors.Is(err, statestore.ErrConflict) {
		t.Fatalf("store conflict: cause not preserved: %v", err)
	}
}
