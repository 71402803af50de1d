package command

import (
	"context"

	"github.com/yungbote/bulkflow/internal/data/aggregates"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
	"github.com/yungbote/bulkflow/internal/events"
)

func (h *Handler) processBulkRequest(ctx context.Context, p *events.ProcessSDKOutboundBulkRequestPayload) error {
	agg, err := aggregates.CreateFromRequest(ctx, &p.Request, h.deps.Aggregate)
	if err != nil {
		return err
	}
	h.log.Info("bulk transaction received", "bulk_transaction_id", agg.ID())
	return h.emit(ctx, &events.SDKOutboundBulkPartyInfoRequestedPayload{BulkTransactionID: agg.ID()})
}

func (h *Handler) processPartyInfoRequest(ctx context.Context, p *events.ProcessSDKOutboundBulkPartyInfoRequestPayload) error {
	agg, err := h.load(ctx, p.BulkTransactionID)
	if err != nil {
		return err
	}
	if err := advance(ctx, agg, bulk.BulkTransactionDiscoveryProcessing); err != nil {
		return err
	}
	if agg.State() == bulk.BulkTransactionDiscoveryProcessing {
		res, err := agg.ResolveParties(ctx, func(ctx context.Context, t *bulk.IndividualTransferEntity) error {
			return h.emit(ctx, &events.PartyInfoRequestedPayload{
				BulkTransactionID: agg.ID(),
				TransferID:        t.ID(),
				PartyIDInfo:       t.Payee().PartyIDInfo,
			})
		})
		if err != nil {
			return err
		}
		h.log.Info("party lookups requested",
			"bulk_transaction_id", agg.ID(),
			"requested", res.Requested,
			"resolved_locally", res.ResolvedLocally,
			"failed", res.Failed,
		)
		if res.Failed > 0 {
			return aggregates.MapError("command.processPartyInfoRequest",
				aggregates.RetryableError("some party lookups could not be requested"))
		}
	}
	return h.drive(ctx, agg)
}

func (h *Handler) processPartyInfoCallback(ctx context.Context, p *events.ProcessPartyInfoCallbackPayload) error {
	agg, err := h.load(ctx, p.BulkTransactionID)
	if err != nil {
		return err
	}
	if _, err := agg.ApplyPartyResult(ctx, p.TransferID, p.Result); err != nil {
		return err
	}
	return h.drive(ctx, agg)
}

func (h *Handler) processAcceptPartyInfo(ctx context.Context, p *events.ProcessSDKOutboundBulkAcceptPartyInfoPayload) error {
	agg, err := h.load(ctx, p.BulkTransactionID)
	if err != nil {
		return err
	}
	if agg.State() != bulk.BulkTransactionDiscoveryCompleted {
		h.log.Warn("party decisions arrived outside acceptance", "bulk_transaction_id", agg.ID(), "state", agg.State())
		return h.drive(ctx, agg)
	}
	n, err := agg.AcceptParties(ctx, p.Decisions)
	if err != nil {
		return err
	}
	h.log.Info("party decisions applied", "bulk_transaction_id", agg.ID(), "applied", n)
	if err := advance(ctx, agg, bulk.BulkTransactionDiscoveryAcceptanceCompleted); err != nil {
		return err
	}
	return h.drive(ctx, agg)
}

func (h *Handler) processBulkQuotesCallback(ctx context.Context, p *events.ProcessBulkQuotesCallbackPayload) error {
	agg, err := h.load(ctx, p.BulkTransactionID)
	if err != nil {
		return err
	}
	if _, err := agg.ApplyBulkQuotesResult(ctx, p.BatchID, p.Response); err != nil {
		return err
	}
	return h.drive(ctx, agg)
}

func (h *Handler) processAcceptQuote(ctx context.Context, p *events.ProcessSDKOutboundBulkAcceptQuotePayload) error {
	agg, err := h.load(ctx, p.BulkTransactionID)
	if err != nil {
		return err
	}
	switch agg.State() {
	case bulk.BulkTransactionAgreementCompleted, bulk.BulkTransactionAgreementAcceptancePending:
	default:
		h.log.Warn("quote decisions arrived outside acceptance", "bulk_transaction_id", agg.ID(), "state", agg.State())
		return h.drive(ctx, agg)
	}
	n, err := agg.AcceptQuotes(ctx, p.Decisions)
	if err != nil {
		return err
	}
	h.log.Info("quote decisions applied", "bulk_transaction_id", agg.ID(), "applied", n)
	return h.startTransfers(ctx, agg)
}

func (h *Handler) processBulkTransfersCallback(ctx context.Context, p *events.ProcessBulkTransfersCallbackPayload) error {
	agg, err := h.load(ctx, p.BulkTransactionID)
	if err != nil {
		return err
	}
	if _, err := agg.ApplyBulkTransfersResult(ctx, p.BatchID, p.Response); err != nil {
		return err
	}
	return h.drive(ctx, agg)
}

// drive moves the transaction through every phase that is finished and
// starts the next one. It stops where the saga waits on replies or on the
// initiator. Each step re-derives its work from the store, so running drive
// again after a partial failure redoes only what is missing.
func (h *Handler) drive(ctx context.Context, agg *aggregates.BulkTransactionAgg) error {
	for {
		switch agg.State() {
		case bulk.BulkTransactionDiscoveryProcessing:
			prog, err := agg.PartyLookupProgress(ctx)
			if err != nil {
				return err
			}
			if !prog.Complete() {
				return nil
			}
			if err := advance(ctx, agg, bulk.BulkTransactionDiscoveryCompleted); err != nil {
				return err
			}

		case bulk.BulkTransactionDiscoveryCompleted:
			root := agg.Root()
			switch {
			case root.IsOnlyValidatePartyEnabled():
				return h.finish(ctx, agg)
			case root.IsAutoAcceptPartyEnabled():
				if _, err := agg.AutoAcceptParties(ctx); err != nil {
					return err
				}
				if err := advance(ctx, agg, bulk.BulkTransactionDiscoveryAcceptanceCompleted); err != nil {
					return err
				}
			default:
				snapshot, err := agg.BuildResponse(ctx)
				if err != nil {
					return err
				}
				return h.emit(ctx, &events.SDKOutboundBulkAcceptPartyInfoRequestedPayload{
					BulkTransactionID: agg.ID(),
					Snapshot:          snapshot,
				})
			}

		case bulk.BulkTransactionDiscoveryAcceptanceCompleted:
			if err := h.startAgreement(ctx, agg); err != nil {
				return err
			}

		case bulk.BulkTransactionAgreementProcessing:
			settled, err := batchesSettled(ctx, agg, bulk.BatchAgreementProcessing)
			if err != nil || !settled {
				return err
			}
			if err := advance(ctx, agg, bulk.BulkTransactionAgreementCompleted); err != nil {
				return err
			}

		case bulk.BulkTransactionAgreementCompleted:
			prog, err := agg.AgreementProgress(ctx)
			if err != nil {
				return err
			}
			if prog.Succeeded == 0 {
				return h.finish(ctx, agg)
			}
			if agg.Root().IsAutoAcceptQuoteEnabled() {
				accepted, rejected, err := agg.AutoAcceptQuotes(ctx)
				if err != nil {
					return err
				}
				h.log.Info("quotes auto accepted", "bulk_transaction_id", agg.ID(), "accepted", accepted, "rejected", rejected)
				return h.startTransfers(ctx, agg)
			}
			snapshot, err := agg.BuildResponse(ctx)
			if err != nil {
				return err
			}
			if err := h.emit(ctx, &events.SDKOutboundBulkAcceptQuoteRequestedPayload{
				BulkTransactionID: agg.ID(),
				Snapshot:          snapshot,
			}); err != nil {
				return err
			}
			return advance(ctx, agg, bulk.BulkTransactionAgreementAcceptancePending)

		case bulk.BulkTransactionTransferProcessing:
			settled, err := batchesSettled(ctx, agg, bulk.BatchTransfersProcessing)
			if err != nil || !settled {
				return err
			}
			return h.finish(ctx, agg)

		default:
			// RECEIVED, AGREEMENT_ACCEPTANCE_PENDING and TRANSFERS_COMPLETED wait on input.
			return nil
		}
	}
}

// startAgreement batches the accepted children and requests quotes for every
// batch still waiting on them. The root moves to AGREEMENT_PROCESSING only
// after the requests are out.
func (h *Handler) startAgreement(ctx context.Context, agg *aggregates.BulkTransactionAgg) error {
	if _, err := agg.CreateBatches(ctx); err != nil {
		return err
	}
	batches, err := agg.GetAllBatches(ctx)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		h.log.Info("no payee accepted, nothing to quote", "bulk_transaction_id", agg.ID())
		return h.finish(ctx, agg)
	}
	for _, b := range batches {
		if b.State() != bulk.BatchAgreementProcessing {
			continue
		}
		req, err := agg.BuildBulkQuotesRequest(ctx, b)
		if err != nil {
			return err
		}
		if err := h.emit(ctx, &events.BulkQuotesRequestedPayload{
			BulkTransactionID: agg.ID(),
			BatchID:           b.ID(),
			Request:           req,
		}); err != nil {
			return err
		}
	}
	return advance(ctx, agg, bulk.BulkTransactionAgreementProcessing)
}

// startTransfers requests transfers for every batch with accepted quotes. A
// transaction left with nothing to transfer finishes at once.
func (h *Handler) startTransfers(ctx context.Context, agg *aggregates.BulkTransactionAgg) error {
	if _, err := agg.StartTransfers(ctx); err != nil {
		return err
	}
	batches, err := agg.GetAllBatches(ctx)
	if err != nil {
		return err
	}
	pending := 0
	for _, b := range batches {
		if b.State() != bulk.BatchTransfersProcessing {
			continue
		}
		req, err := agg.BuildBulkTransfersRequest(ctx, b)
		if err != nil {
			return err
		}
		if err := h.emit(ctx, &events.BulkTransfersRequestedPayload{
			BulkTransactionID: agg.ID(),
			BatchID:           b.ID(),
			Request:           req,
		}); err != nil {
			return err
		}
		pending++
	}
	if pending == 0 {
		return h.finish(ctx, agg)
	}
	return advance(ctx, agg, bulk.BulkTransactionTransferProcessing)
}

// finish closes the transaction and publishes the final response. The
// response goes out before the terminal state is stored, so a failed save is
// retried rather than leaving a completed transaction nobody heard about.
func (h *Handler) finish(ctx context.Context, agg *aggregates.BulkTransactionAgg) error {
	if agg.State() == bulk.BulkTransactionTransfersCompleted {
		return nil
	}
	if err := agg.SetTxState(bulk.BulkTransactionTransfersCompleted); err != nil {
		return err
	}
	resp, err := agg.BuildResponse(ctx)
	if err != nil {
		return err
	}
	if err := h.emit(ctx, &events.SDKOutboundBulkResponsePreparedPayload{
		BulkTransactionID: agg.ID(),
		Response:          resp,
	}); err != nil {
		return err
	}
	h.log.Info("bulk transaction completed", "bulk_transaction_id", agg.ID())
	return agg.Save(ctx)
}

// advance moves the root forward and saves it. A root already at or past
// next is left alone, so redelivered commands do not fail on it.
func advance(ctx context.Context, agg *aggregates.BulkTransactionAgg, next bulk.BulkTransactionInternalState) error {
	if agg.State().Rank() >= next.Rank() {
		return nil
	}
	if err := agg.SetTxState(next); err != nil {
		return err
	}
	return agg.Save(ctx)
}

// batchesSettled reports whether no batch is still in the waiting state.
func batchesSettled(ctx context.Context, agg *aggregates.BulkTransactionAgg, waiting bulk.BulkBatchInternalState) (bool, error) {
	batches, err := agg.GetAllBatches(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range batches {
		if b.State() == waiting {
			return false, nil
		}
	}
	return true, nil
}
