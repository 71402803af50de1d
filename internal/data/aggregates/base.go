package aggregates

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/bulkflow/internal/data/statestore"
	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

const (
	defaultBatchMaxEntries       = 1000
	defaultChildWriteConcurrency = 16
)

type BaseDeps struct {
	Repo  statestore.Repository
	Log   *logger.Logger
	Hooks Hooks
	Now   func() time.Time

	BatchMaxEntries       int
	ChildWriteConcurrency int
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.BatchMaxEntries <= 0 {
		d.BatchMaxEntries = defaultBatchMaxEntries
	}
	if d.ChildWriteConcurrency <= 0 {
		d.ChildWriteConcurrency = defaultChildWriteConcurrency
	}
	return d
}

func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}
	var err error
	switch {
	case deps.Repo == nil:
		err = domainagg.NewError(domainagg.CodeInternal, op, "state store not configured", nil)
	case !deps.Repo.CanCall():
		err = statestore.ErrRepositoryUnavailable
	default:
		err = fn(ctx)
	}
	mapped := MapError(op, err)

	status := "success"
	if mapped != nil {
		status = aggregateErrorStatus(mapped)
		if domainagg.IsCode(mapped, domainagg.CodeConflict) {
			deps.Hooks.IncConflict(op)
		}
		if domainagg.Retryable(mapped) {
			deps.Hooks.IncRetry(op)
		}
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return mapped
}

// executeRead runs a store read with the same error mapping and hooks as a write.
func executeRead(ctx context.Context, deps BaseDeps, op string, fn func(ctx context.Context) error) error {
	return executeWrite(ctx, deps, op, fn)
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := strings.TrimSpace(string(domainagg.CodeOf(err)))
	if code == "" {
		code = strings.TrimSpace(string(domainagg.CodeOf(MapError("aggregate.status", err))))
	}
	if code == "" {
		return "failure"
	}
	return code
}
