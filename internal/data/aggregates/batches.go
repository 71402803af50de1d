package aggregates

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/yungbote/bulkflow/internal/data/statestore"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
)

const feeLimitExceeded = "payee fsp fee exceeds the configured per transfer limit"

// CreateBatches groups discovered, unbatched children by payee fsp into
// batches of at most BatchMaxEntries and moves them to AGREEMENT_PROCESSING.
// Each batch is persisted before its children point at it. Children already
// batched are never regrouped, so a second call returns no new batches.
func (a *BulkTransactionAgg) CreateBatches(ctx context.Context) ([]*bulk.BulkBatchEntity, error) {
	const op = "Bulk.CreateBatches"
	var out []*bulk.BulkBatchEntity
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		children, err := a.loadTransfers(ctx)
		if err != nil {
			return err
		}
		now := a.deps.Now()
		for _, plan := range bulk.PlanBatches(children, a.deps.BatchMaxEntries) {
			b := bulk.NewBulkBatch(plan.PayeeFspID, plan.TransferIDs, plan.Totals, now)
			if err := b.SetState(bulk.BatchAgreementProcessing); err != nil {
				return err
			}
			if _, err := a.putBatch(ctx, b); err != nil {
				return err
			}
			for _, id := range plan.TransferIDs {
				quoteID := uuid.NewString()
				_, ok, err := a.updateTransfer(ctx, id, func(t *bulk.IndividualTransferEntity) bool {
					return t.AssignBatch(b.ID(), quoteID)
				})
				if err != nil {
					return err
				}
				if !ok {
					a.log.Warn("transfer batched concurrently", "transfer_id", id, "batch_id", b.ID())
				}
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("batches created", "count", len(out))
	return out, nil
}

func (a *BulkTransactionAgg) GetAllBatchIDs(ctx context.Context) ([]string, error) {
	const op = "Bulk.GetAllBatchIDs"
	var ids []string
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		var err error
		ids, err = a.batchIDs(ctx)
		return err
	})
	return ids, err
}

func (a *BulkTransactionAgg) GetBatchByID(ctx context.Context, batchID string) (*bulk.BulkBatchEntity, error) {
	const op = "Bulk.GetBatchByID"
	var b *bulk.BulkBatchEntity
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		var err error
		b, err = a.loadBatch(ctx, batchID)
		return err
	})
	return b, err
}

func (a *BulkTransactionAgg) SetBatchByID(ctx context.Context, batchID string, b *bulk.BulkBatchEntity) error {
	const op = "Bulk.SetBatchByID"
	return executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		if b == nil || b.ID() != batchID {
			return ValidationError("batch entity does not match id " + batchID)
		}
		_, err := a.putBatch(ctx, b)
		return err
	})
}

func (a *BulkTransactionAgg) GetAllBatches(ctx context.Context) ([]*bulk.BulkBatchEntity, error) {
	const op = "Bulk.GetAllBatches"
	var out []*bulk.BulkBatchEntity
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		var err error
		out, err = a.loadBatches(ctx)
		return err
	})
	return out, err
}

// BuildBulkQuotesRequest renders the quotes request for the children of b
// still waiting on agreement.
func (a *BulkTransactionAgg) BuildBulkQuotesRequest(ctx context.Context, b *bulk.BulkBatchEntity) (bulk.BulkQuoteRequest, error) {
	const op = "Bulk.BuildBulkQuotesRequest"
	req := bulk.BulkQuoteRequest{
		BulkQuoteID:       b.BulkQuoteID(),
		HomeTransactionID: a.root.BulkHomeTransactionID(),
		From:              a.root.From(),
		Expiration:        a.root.Options().BulkExpiration,
		ExtensionList:     a.root.Extensions(),
	}
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		children, err := a.batchChildren(ctx, b)
		if err != nil {
			return err
		}
		for _, t := range children {
			if t.State() != bulk.TransferAgreementProcessing {
				continue
			}
			r := t.Request()
			req.IndividualQuotes = append(req.IndividualQuotes, bulk.IndividualQuote{
				QuoteID:       t.QuoteID(),
				TransactionID: t.ID(),
				To:            t.ResolvedPayee(),
				AmountType:    r.AmountType,
				Currency:      r.Currency,
				Amount:        r.Amount,
				Note:          r.Note,
				ExtensionList: r.QuoteExtensions,
			})
		}
		return nil
	})
	return req, err
}

// ApplyBulkQuotesResult records a quotes reply for a batch. Children are
// updated before the batch so a retried call finishes what a failed one
// started; a reply for a batch no longer waiting on quotes returns false.
func (a *BulkTransactionAgg) ApplyBulkQuotesResult(ctx context.Context, batchID string, resp bulk.BulkQuoteResponse) (bool, error) {
	const op = "Bulk.ApplyBulkQuotesResult"
	applied := false
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		b, err := a.loadBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if b.State() != bulk.BatchAgreementProcessing {
			a.deps.Hooks.IncStale(op)
			return nil
		}
		preview := bulk.NewBulkBatchEntity(b.ExportState())
		preview.ApplyBulkQuoteResponse(resp)
		results := preview.QuoteResultsByID()

		for _, id := range b.IndividualTransferIDs() {
			_, _, err := a.updateTransfer(ctx, id, func(t *bulk.IndividualTransferEntity) bool {
				return t.BatchID() == b.ID() && t.ApplyQuoteResult(results[t.QuoteID()], resp.ErrorInformation)
			})
			if err != nil {
				return err
			}
		}
		_, ok, err := a.updateBatch(ctx, b.ID(), func(cur *bulk.BulkBatchEntity) bool {
			return cur.ApplyBulkQuoteResponse(resp)
		})
		if err != nil {
			return err
		}
		if !ok {
			a.deps.Hooks.IncStale(op)
			return nil
		}
		applied = true
		return nil
	})
	return applied, err
}

// AcceptQuotes applies the initiator's quote decisions.
func (a *BulkTransactionAgg) AcceptQuotes(ctx context.Context, decisions []bulk.QuoteAcceptance) (int, error) {
	const op = "Bulk.AcceptQuotes"
	applied := 0
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		for _, d := range decisions {
			_, ok, err := a.updateTransfer(ctx, d.TransferID, func(t *bulk.IndividualTransferEntity) bool {
				return t.ApplyQuoteDecision(d.AcceptQuote, "")
			})
			if errors.Is(err, statestore.ErrNotFound) {
				a.log.Warn("quote decision for unknown transfer", "transfer_id", d.TransferID)
				continue
			}
			if err != nil {
				return err
			}
			if !ok {
				a.deps.Hooks.IncStale(op)
				continue
			}
			applied++
		}
		return nil
	})
	return applied, err
}

// AutoAcceptQuotes accepts every quote within the per transfer fee limits and
// rejects the rest.
func (a *BulkTransactionAgg) AutoAcceptQuotes(ctx context.Context) (accepted, rejected int, err error) {
	const op = "Bulk.AutoAcceptQuotes"
	err = executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		children, err := a.loadTransfers(ctx)
		if err != nil {
			return err
		}
		for _, t := range children {
			if t.State() != bulk.TransferAgreementSuccess {
				continue
			}
			within := false
			_, ok, err := a.updateTransfer(ctx, t.ID(), func(cur *bulk.IndividualTransferEntity) bool {
				within = a.root.QuoteWithinFeeLimit(cur.QuoteResponse())
				reason := ""
				if !within {
					reason = feeLimitExceeded
				}
				return cur.ApplyQuoteDecision(within, reason)
			})
			if err != nil {
				return err
			}
			switch {
			case !ok:
			case within:
				accepted++
			default:
				rejected++
			}
		}
		return nil
	})
	return accepted, rejected, err
}

// StartTransfers moves accepted children of every agreed batch to
// TRANSFER_PROCESSING and returns the batches that now need a transfers
// request. A batch left with nothing to transfer is closed on the spot. A
// batch another caller already started is not returned again.
func (a *BulkTransactionAgg) StartTransfers(ctx context.Context) ([]*bulk.BulkBatchEntity, error) {
	const op = "Bulk.StartTransfers"
	var out []*bulk.BulkBatchEntity
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		batches, err := a.loadBatches(ctx)
		if err != nil {
			return err
		}
		for _, b := range batches {
			if b.State() != bulk.BatchAgreementCompleted {
				continue
			}
			processing := 0
			for _, id := range b.IndividualTransferIDs() {
				t, _, err := a.updateTransfer(ctx, id, func(t *bulk.IndividualTransferEntity) bool {
					return t.BatchID() == b.ID() && t.MarkTransferProcessing()
				})
				if err != nil {
					return err
				}
				if t.BatchID() == b.ID() && t.State() == bulk.TransferTransferProcessing {
					processing++
				}
			}
			next := bulk.BatchTransfersProcessing
			if processing == 0 {
				next = bulk.BatchTransfersCompleted
			}
			started, ok, err := a.updateBatch(ctx, b.ID(), func(cur *bulk.BulkBatchEntity) bool {
				return cur.State() == bulk.BatchAgreementCompleted && cur.SetState(next) == nil
			})
			if err != nil {
				return err
			}
			if !ok {
				a.deps.Hooks.IncStale(op)
				continue
			}
			if next == bulk.BatchTransfersProcessing {
				out = append(out, started)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuildBulkTransfersRequest renders the transfers request for the children of
// b that are being transferred.
func (a *BulkTransactionAgg) BuildBulkTransfersRequest(ctx context.Context, b *bulk.BulkBatchEntity) (bulk.BulkTransferRequest, error) {
	const op = "Bulk.BuildBulkTransfersRequest"
	req := bulk.BulkTransferRequest{
		BulkTransferID:    b.BulkTransferID(),
		BulkQuoteID:       b.BulkQuoteID(),
		HomeTransactionID: a.root.BulkHomeTransactionID(),
		From:              a.root.From(),
		Expiration:        a.root.Options().BulkExpiration,
		ExtensionList:     a.root.Extensions(),
	}
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		children, err := a.batchChildren(ctx, b)
		if err != nil {
			return err
		}
		for _, t := range children {
			if t.State() != bulk.TransferTransferProcessing {
				continue
			}
			r := t.Request()
			it := bulk.BulkIndividualTransfer{
				TransferID:    t.ID(),
				To:            t.ResolvedPayee(),
				AmountType:    r.AmountType,
				Currency:      r.Currency,
				Amount:        r.Amount,
				Note:          r.Note,
				ExtensionList: r.TransferExtensions,
			}
			if q := t.QuoteResponse(); q != nil {
				it.IlpPacket = q.IlpPacket
				it.Condition = q.Condition
				if q.TransferAmount != nil {
					it.Currency = q.TransferAmount.Currency
					it.Amount = q.TransferAmount.Amount
				}
			}
			req.IndividualTransfers = append(req.IndividualTransfers, it)
		}
		return nil
	})
	return req, err
}

// ApplyBulkTransfersResult records a transfers reply for a batch. Results for
// transfers the batch never contained are ignored.
func (a *BulkTransactionAgg) ApplyBulkTransfersResult(ctx context.Context, batchID string, resp bulk.BulkTransferResponse) (bool, error) {
	const op = "Bulk.ApplyBulkTransfersResult"
	applied := false
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		b, err := a.loadBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if b.State() != bulk.BatchTransfersProcessing {
			a.deps.Hooks.IncStale(op)
			return nil
		}
		for _, r := range resp.IndividualTransferResults {
			if err := RequireBatchMember(b, r.TransferID); err != nil {
				a.deps.Hooks.IncStale(op)
				a.log.Warn("transfer result outside batch ignored", "batch_id", b.ID(), "error", err)
			}
		}
		preview := bulk.NewBulkBatchEntity(b.ExportState())
		preview.ApplyBulkTransferResponse(resp)
		results := preview.TransferResultsByID()

		for _, id := range b.IndividualTransferIDs() {
			_, _, err := a.updateTransfer(ctx, id, func(t *bulk.IndividualTransferEntity) bool {
				return t.BatchID() == b.ID() && t.ApplyTransferResult(results[t.ID()], resp.ErrorInformation)
			})
			if err != nil {
				return err
			}
		}
		_, ok, err := a.updateBatch(ctx, b.ID(), func(cur *bulk.BulkBatchEntity) bool {
			return cur.ApplyBulkTransferResponse(resp)
		})
		if err != nil {
			return err
		}
		if !ok {
			a.deps.Hooks.IncStale(op)
			return nil
		}
		applied = true
		return nil
	})
	return applied, err
}

// batchChildren loads the children listed by b that still point at b. A child
// regrouped into another batch by a concurrent CreateBatches is left alone.
func (a *BulkTransactionAgg) batchChildren(ctx context.Context, b *bulk.BulkBatchEntity) ([]*bulk.IndividualTransferEntity, error) {
	out := make([]*bulk.IndividualTransferEntity, 0, len(b.IndividualTransferIDs()))
	for _, id := range b.IndividualTransferIDs() {
		t, err := a.loadTransfer(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.BatchID() != b.ID() {
			a.log.Warn("transfer belongs to another batch", "transfer_id", id, "batch_id", b.ID(), "owner_batch_id", t.BatchID())
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *BulkTransactionAgg) batchIDs(ctx context.Context) ([]string, error) {
	keys, err := a.deps.Repo.GetAllAttributeKeys(ctx, a.ID())
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := statestore.BatchIDFromKey(k); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (a *BulkTransactionAgg) loadBatch(ctx context.Context, batchID string) (*bulk.BulkBatchEntity, error) {
	var st bulk.BulkBatchState
	if err := a.deps.Repo.GetAttribute(ctx, a.ID(), statestore.BulkBatchKey(batchID), &st); err != nil {
		return nil, err
	}
	return bulk.NewBulkBatchEntity(st), nil
}

func (a *BulkTransactionAgg) loadBatches(ctx context.Context) ([]*bulk.BulkBatchEntity, error) {
	ids, err := a.batchIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*bulk.BulkBatchEntity, 0, len(ids))
	for _, id := range ids {
		b, err := a.loadBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// putBatch writes b unless the stored batch has already moved on.
func (a *BulkTransactionAgg) putBatch(ctx context.Context, b *bulk.BulkBatchEntity) (bool, error) {
	now := a.deps.Now()
	written := false
	err := a.deps.Repo.UpdateAttribute(ctx, a.ID(), statestore.BulkBatchKey(b.ID()), func(cur statestore.Slot) (any, error) {
		written = false
		if cur.Exists() {
			var stored bulk.BulkBatchState
			if err := cur.Decode(&stored); err != nil {
				return nil, err
			}
			if batchSuperseded(stored.State, b.State()) {
				return nil, nil
			}
		}
		written = true
		next := bulk.NewBulkBatchEntity(b.ExportState())
		next.Touch(now)
		return next.ExportState(), nil
	})
	if err != nil {
		return false, err
	}
	if !written {
		a.deps.Hooks.IncStale("Bulk.putBatch")
		a.log.Debug("stale batch write refused", "batch_id", b.ID(), "state", b.State())
		return false, nil
	}
	b.Touch(now)
	return true, nil
}

// updateBatch applies mutate to the stored copy of one batch and writes it
// back when mutate reports a change.
func (a *BulkTransactionAgg) updateBatch(ctx context.Context, batchID string, mutate func(b *bulk.BulkBatchEntity) bool) (*bulk.BulkBatchEntity, bool, error) {
	var (
		out     *bulk.BulkBatchEntity
		changed bool
	)
	err := a.deps.Repo.UpdateAttribute(ctx, a.ID(), statestore.BulkBatchKey(batchID), func(cur statestore.Slot) (any, error) {
		var st bulk.BulkBatchState
		if err := cur.Decode(&st); err != nil {
			return nil, err
		}
		out = bulk.NewBulkBatchEntity(st)
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
