package aggregates

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/bulkflow/internal/data/statestore"
	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// BulkTransactionAgg coordinates one bulk transaction: the root entity it
// holds in memory and the child and batch slots it reads from the store on
// every call.
//
// Write method failures return *aggregates.Error with codes:
// CodeSchemaValidation, CodeAggregateNotFound, CodeNotFound, CodeRepositoryUnavailable,
// CodeConflict, CodeInvariantViolation, CodeRetryable, CodeInternal.
type BulkTransactionAgg struct {
	deps BaseDeps
	log  *logger.Logger
	root *bulk.BulkTransactionEntity
}

var _ domainagg.Aggregate = (*BulkTransactionAgg)(nil)

func newBulkTransactionAgg(deps BaseDeps, root *bulk.BulkTransactionEntity) *BulkTransactionAgg {
	deps = deps.withDefaults()
	return &BulkTransactionAgg{
		deps: deps,
		log:  deps.Log.With("service", "BulkTransactionAgg", "bulk_transaction_id", root.ID()),
		root: root,
	}
}

// CreateFromRequest validates req, persists the root and writes one slot per
// individual transfer. A request for a bulk id that is still RECEIVED resumes
// by writing only the children that are missing.
func CreateFromRequest(ctx context.Context, req *bulk.BulkTransactionRequest, deps BaseDeps) (*BulkTransactionAgg, error) {
	const op = "Bulk.CreateFromRequest"
	deps = deps.withDefaults()

	root, err := bulk.CreateBulkTransactionFromRequest(req, deps.Now())
	if err != nil {
		deps.Hooks.ObserveOperation(op, aggregateErrorStatus(err), 0)
		return nil, err
	}

	var agg *BulkTransactionAgg
	err = executeWrite(ctx, deps, op, func(ctx context.Context) error {
		var existing bulk.BulkTransactionState
		err := deps.Repo.Load(ctx, root.ID(), &existing)
		switch {
		case err == nil:
			if err := RequireStatusAllowed(string(existing.State), string(bulk.BulkTransactionReceived)); err != nil {
				return fmt.Errorf("bulk transaction %s already exists: %w", root.ID(), err)
			}
			root = bulk.NewBulkTransactionEntity(existing)
		case errors.Is(err, statestore.ErrNotFound):
			if err := deps.Repo.Store(ctx, root.ID(), root.ExportState()); err != nil {
				return err
			}
		default:
			return err
		}
		agg = newBulkTransactionAgg(deps, root)
		return agg.writeMissingChildren(ctx, req.IndividualTransfers)
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

func (a *BulkTransactionAgg) writeMissingChildren(ctx context.Context, reqs []bulk.IndividualTransferRequest) error {
	keys, err := a.deps.Repo.GetAllAttributeKeys(ctx, a.ID())
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		have[k] = struct{}{}
	}

	now := a.deps.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.deps.ChildWriteConcurrency)
	written := 0
	for i, r := range reqs {
		child := bulk.CreateIndividualTransferFromRequest(a.ID(), i, r, now)
		key := statestore.IndividualItemKey(child.ID())
		if _, ok := have[key]; ok {
			continue
		}
		written++
		g.Go(func() error {
			return a.deps.Repo.SetAttribute(gctx, a.ID(), key, child.ExportState())
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Debug("individual transfers written", "written", written, "total", len(reqs))
	return nil
}

// CreateFromRepo loads the root of bulk id.
func CreateFromRepo(ctx context.Context, id string, deps BaseDeps) (*BulkTransactionAgg, error) {
	const op = "Bulk.CreateFromRepo"
	deps = deps.withDefaults()
	var st bulk.BulkTransactionState
	err := executeRead(ctx, deps, op, func(ctx context.Context) error {
		err := deps.Repo.Load(ctx, id, &st)
		if errors.Is(err, statestore.ErrNotFound) {
			return domainagg.NewError(domainagg.CodeAggregateNotFound, op, "bulk transaction "+id+" not found", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return newBulkTransactionAgg(deps, bulk.NewBulkTransactionEntity(st)), nil
}

func (a *BulkTransactionAgg) Contract() domainagg.Contract {
	return domainagg.BulkTransactionAggregateContract
}

func (a *BulkTransactionAgg) ID() string                               { return a.root.ID() }
func (a *BulkTransactionAgg) Root() *bulk.BulkTransactionEntity        { return a.root }
func (a *BulkTransactionAgg) State() bulk.BulkTransactionInternalState { return a.root.State() }

// SetTxState moves the root in memory only; call Save to persist.
func (a *BulkTransactionAgg) SetTxState(next bulk.BulkTransactionInternalState) error {
	return a.root.SetTxState(next)
}

// AdvanceTxState is SetTxState that also reports whether the state changed.
// Handlers emit follow-up events only when it did.
func (a *BulkTransactionAgg) AdvanceTxState(next bulk.BulkTransactionInternalState) (bool, error) {
	return a.root.AdvanceTxState(next)
}

// Save persists the root record and bumps its version. When the stored root
// has already moved past the in-memory one, nothing is written and the
// aggregate adopts the stored root instead.
func (a *BulkTransactionAgg) Save(ctx context.Context) error {
	const op = "Bulk.Save"
	return executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		now := a.deps.Now()
		var newer *bulk.BulkTransactionState
		err := a.deps.Repo.Update(ctx, a.ID(), func(cur statestore.Slot) (any, error) {
			newer = nil
			if cur.Exists() {
				var stored bulk.BulkTransactionState
				if err := cur.Decode(&stored); err != nil {
					return nil, err
				}
				if stored.State.Rank() > a.root.State().Rank() {
					newer = &stored
					return nil, nil
				}
			}
			next := bulk.NewBulkTransactionEntity(a.root.ExportState())
			next.Touch(now)
			return next.ExportState(), nil
		})
		if err != nil {
			return err
		}
		if newer != nil {
			a.deps.Hooks.IncStale(op)
			a.log.Debug("stale root save skipped", "state", a.root.State(), "stored_state", newer.State)
			a.root = bulk.NewBulkTransactionEntity(*newer)
			return nil
		}
		a.root.Touch(now)
		return nil
	})
}

// Destroy removes the record together with every child and batch slot.
func (a *BulkTransactionAgg) Destroy(ctx context.Context) error {
	const op = "Bulk.Destroy"
	return executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		return a.deps.Repo.Remove(ctx, a.ID())
	})
}

func (a *BulkTransactionAgg) GetAllIndividualTransferIDs(ctx context.Context) ([]string, error) {
	const op = "Bulk.GetAllIndividualTransferIDs"
	var ids []string
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		var err error
		ids, err = a.transferIDs(ctx)
		return err
	})
	return ids, err
}

func (a *BulkTransactionAgg) GetIndividualTransferByID(ctx context.Context, transferID string) (*bulk.IndividualTransferEntity, error) {
	const op = "Bulk.GetIndividualTransferByID"
	var t *bulk.IndividualTransferEntity
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		var err error
		t, err = a.loadTransfer(ctx, transferID)
		return err
	})
	return t, err
}

func (a *BulkTransactionAgg) SetIndividualTransferByID(ctx context.Context, transferID string, t *bulk.IndividualTransferEntity) error {
	const op = "Bulk.SetIndividualTransferByID"
	return executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		if t == nil || t.ID() != transferID {
			return ValidationError("transfer entity does not match id " + transferID)
		}
		_, err := a.putTransfer(ctx, t)
		return err
	})
}

func (a *BulkTransactionAgg) AddIndividualTransfer(ctx context.Context, t *bulk.IndividualTransferEntity) error {
	if t == nil {
		return domainagg.NewError(domainagg.CodeValidation, "Bulk.AddIndividualTransfer", "nil transfer", nil)
	}
	return a.SetIndividualTransferByID(ctx, t.ID(), t)
}

// GetAllIndividualTransfers loads every child, ordered by id.
func (a *BulkTransactionAgg) GetAllIndividualTransfers(ctx context.Context) ([]*bulk.IndividualTransferEntity, error) {
	const op = "Bulk.GetAllIndividualTransfers"
	var out []*bulk.IndividualTransferEntity
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		var err error
		out, err = a.loadTransfers(ctx)
		return err
	})
	return out, err
}

// BuildResponse renders the current view of the bulk transaction for the initiator.
func (a *BulkTransactionAgg) BuildResponse(ctx context.Context) (bulk.BulkTransactionResponse, error) {
	children, err := a.GetAllIndividualTransfers(ctx)
	if err != nil {
		return bulk.BulkTransactionResponse{}, err
	}
	resp := bulk.BulkTransactionResponse{
		BulkTransactionID:     a.ID(),
		BulkHomeTransactionID: a.root.BulkHomeTransactionID(),
		CurrentState:          bulk.ExternalState(a.State(), a.root.IsAutoAcceptPartyEnabled()),
		InternalState:         string(a.State()),
		IndividualTransfers:   make([]bulk.IndividualTransferResponse, 0, len(children)),
	}
	for _, t := range children {
		req := t.Request()
		resp.IndividualTransfers = append(resp.IndividualTransfers, bulk.IndividualTransferResponse{
			TransferID:        t.ID(),
			HomeTransactionID: req.HomeTransactionID,
			TransactionState:  t.State(),
			To:                t.ResolvedPayee(),
			Amount:            req.Amount,
			Currency:          req.Currency,
			QuoteResponse:     t.QuoteResponse(),
			TransferResponse:  t.TransferResponse(),
			LastError:         t.LastError(),
		})
	}
	return resp, nil
}

func (a *BulkTransactionAgg) transferIDs(ctx context.Context) ([]string, error) {
	keys, err := a.deps.Repo.GetAllAttributeKeys(ctx, a.ID())
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := statestore.TransferIDFromKey(k); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (a *BulkTransactionAgg) loadTransfer(ctx context.Context, transferID string) (*bulk.IndividualTransferEntity, error) {
	var st bulk.IndividualTransferState
	if err := a.deps.Repo.GetAttribute(ctx, a.ID(), statestore.IndividualItemKey(transferID), &st); err != nil {
		return nil, err
	}
	return bulk.NewIndividualTransferEntity(st), nil
}

func (a *BulkTransactionAgg) loadTransfers(ctx context.Context) ([]*bulk.IndividualTransferEntity, error) {
	ids, err := a.transferIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*bulk.IndividualTransferEntity, 0, len(ids))
	for _, id := range ids {
		t, err := a.loadTransfer(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// putTransfer writes t unless the stored child has already moved on. A
// refused write is counted as stale and reported as written=false.
func (a *BulkTransactionAgg) putTransfer(ctx context.Context, t *bulk.IndividualTransferEntity) (bool, error) {
	now := a.deps.Now()
	written := false
	var stored bulk.IndividualTransferState
	err := a.deps.Repo.UpdateAttribute(ctx, a.ID(), statestore.IndividualItemKey(t.ID()), func(cur statestore.Slot) (any, error) {
		written = false
		if cur.Exists() {
			if err := cur.Decode(&stored); err != nil {
				return nil, err
			}
			if transferSuperseded(stored.State, t.State()) {
				return nil, nil
			}
		}
		written = true
		next := bulk.NewIndividualTransferEntity(t.ExportState())
		next.Touch(now)
		return next.ExportState(), nil
	})
	if err != nil {
		return false, err
	}
	if !written {
		a.deps.Hooks.IncStale("Bulk.putTransfer")
		a.log.Debug("stale transfer write refused", "transfer_id", t.ID(), "state", t.State(), "stored_state", stored.State)
		return false, nil
	}
	t.Touch(now)
	return true, nil
}

// updateTransfer applies mutate to the stored copy of one child and writes it
// back when mutate reports a change. The child is returned as it is stored
// afterwards.
func (a *BulkTransactionAgg) updateTransfer(ctx context.Context, transferID string, mutate func(t *bulk.IndividualTransferEntity) bool) (*bulk.IndividualTransferEntity, bool, error) {
	var (
		out     *bulk.IndividualTransferEntity
		changed bool
	)
	err := a.deps.Repo.UpdateAttribute(ctx, a.ID(), statestore.IndividualItemKey(transferID), func(cur statestore.Slot) (any, error) {
		var st bulk.IndividualTransferState
		if err := cur.Decode(&st); err != nil {
			return nil, err
		}
		out = bulk.NewIndividualTransferEntity(st)
		changed = mutate(out)
		if !changed {
			return nil, nil
		}
		out.Touch(a.deps.Now())
		return out.ExportState(), nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}
