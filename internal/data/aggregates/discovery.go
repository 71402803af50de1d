package aggregates

import (
	"context"
	"errors"

	"github.com/yungbote/bulkflow/internal/data/statestore"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
)

// PartyRequestFunc issues one party lookup for t. It must not wait for the reply.
type PartyRequestFunc func(ctx context.Context, t *bulk.IndividualTransferEntity) error

type ResolveResult struct {
	Requested       int
	ResolvedLocally int
	Skipped         int
	Failed          int
}

// Progress counts the children that entered one phase of the workflow.
type Progress struct {
	Total     int
	Pending   int
	Succeeded int
	Failed    int
}

func (p Progress) Complete() bool { return p.Pending == 0 }

type phaseOutcome int

const (
	outcomeNotInPhase phaseOutcome = iota
	outcomePending
	outcomeSucceeded
	outcomeFailed
)

// ResolveParties requests a party lookup for every child that is still
// RECEIVED and has no party response. A child moves to DISCOVERY_PROCESSING
// only after its request was handed over, and only if its reply has not
// already been recorded. Calling it again requests nothing for children
// already handled. When the skip-lookup option is set, children whose payee
// names its fsp are resolved locally. A failed request leaves its child
// RECEIVED.
func (a *BulkTransactionAgg) ResolveParties(ctx context.Context, request PartyRequestFunc) (ResolveResult, error) {
	const op = "Bulk.ResolveParties"
	var res ResolveResult
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		children, err := a.loadTransfers(ctx)
		if err != nil {
			return err
		}
		skipLookup := a.root.IsSkipPartyLookupEnabled()
		for _, t := range children {
			if !t.AwaitingPartyLookup() {
				res.Skipped++
				continue
			}
			if skipLookup && t.Payee().PartyIDInfo.FspID != "" {
				payee := t.Payee()
				_, ok, err := a.updateTransfer(ctx, t.ID(), func(cur *bulk.IndividualTransferEntity) bool {
					return cur.AwaitingPartyLookup() && cur.ApplyPartyResult(bulk.PartyResult{Party: &payee})
				})
				if err != nil {
					return err
				}
				if ok {
					res.ResolvedLocally++
				} else {
					res.Skipped++
				}
				continue
			}
			if request != nil {
				if err := request(ctx, t); err != nil {
					a.log.Warn("party lookup request failed", "transfer_id", t.ID(), "error", err)
					res.Failed++
					continue
				}
			}
			cur, marked, err := a.updateTransfer(ctx, t.ID(), (*bulk.IndividualTransferEntity).MarkDiscoveryProcessing)
			if err != nil {
				return err
			}
			if !marked {
				a.log.Debug("party reply arrived before the lookup was recorded", "transfer_id", t.ID(), "state", cur.State())
			}
			res.Requested++
		}
		return nil
	})
	return res, err
}

// ApplyPartyResult records a lookup reply for one child. A reply for a child
// already past discovery is reported as applied=false and changes nothing.
func (a *BulkTransactionAgg) ApplyPartyResult(ctx context.Context, transferID string, pr bulk.PartyResult) (bool, error) {
	const op = "Bulk.ApplyPartyResult"
	applied := false
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		t, ok, err := a.updateTransfer(ctx, transferID, func(t *bulk.IndividualTransferEntity) bool {
			return t.ApplyPartyResult(pr)
		})
		if err != nil {
			return err
		}
		if !ok {
			a.deps.Hooks.IncStale(op)
			a.log.Debug("stale party result ignored", "transfer_id", transferID, "state", t.State())
			return nil
		}
		applied = true
		return nil
	})
	return applied, err
}

func discoveryOutcome(s bulk.IndividualTransferInternalState) phaseOutcome {
	switch s {
	case bulk.TransferReceived, bulk.TransferDiscoveryProcessing:
		return outcomePending
	case bulk.TransferDiscoveryFailed, bulk.TransferDiscoveryRejected:
		return outcomeFailed
	default:
		return outcomeSucceeded
	}
}

func agreementOutcome(s bulk.IndividualTransferInternalState) phaseOutcome {
	switch {
	case s.Rank() < bulk.TransferAgreementProcessing.Rank():
		return outcomeNotInPhase
	case s == bulk.TransferAgreementProcessing:
		return outcomePending
	case s == bulk.TransferAgreementFailed, s == bulk.TransferAgreementRejected:
		return outcomeFailed
	default:
		return outcomeSucceeded
	}
}

func transferOutcome(s bulk.IndividualTransferInternalState) phaseOutcome {
	switch s {
	case bulk.TransferTransferProcessing:
		return outcomePending
	case bulk.TransferTransferFailed:
		return outcomeFailed
	case bulk.TransferTransferSuccess:
		return outcomeSucceeded
	default:
		return outcomeNotInPhase
	}
}

// PartyLookupProgress recomputes discovery progress from the stored children.
func (a *BulkTransactionAgg) PartyLookupProgress(ctx context.Context) (Progress, error) {
	return a.progress(ctx, "Bulk.PartyLookupProgress", discoveryOutcome)
}

func (a *BulkTransactionAgg) AgreementProgress(ctx context.Context) (Progress, error) {
	return a.progress(ctx, "Bulk.AgreementProgress", agreementOutcome)
}

func (a *BulkTransactionAgg) TransferProgress(ctx context.Context) (Progress, error) {
	return a.progress(ctx, "Bulk.TransferProgress", transferOutcome)
}

func (a *BulkTransactionAgg) progress(ctx context.Context, op string, classify func(bulk.IndividualTransferInternalState) phaseOutcome) (Progress, error) {
	var p Progress
	err := executeRead(ctx, a.deps, op, func(ctx context.Context) error {
		children, err := a.loadTransfers(ctx)
		if err != nil {
			return err
		}
		for _, t := range children {
			switch classify(t.State()) {
			case outcomePending:
				p.Pending++
			case outcomeSucceeded:
				p.Succeeded++
			case outcomeFailed:
				p.Failed++
			default:
				continue
			}
			p.Total++
		}
		return nil
	})
	return p, err
}

// AcceptParties applies the initiator's payee decisions. Decisions for unknown
// transfers or for children not awaiting one are skipped.
func (a *BulkTransactionAgg) AcceptParties(ctx context.Context, decisions []bulk.PartyAcceptance) (int, error) {
	const op = "Bulk.AcceptParties"
	applied := 0
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		for _, d := range decisions {
			_, ok, err := a.updateTransfer(ctx, d.TransferID, func(t *bulk.IndividualTransferEntity) bool {
				return t.ApplyPartyDecision(d.AcceptParty)
			})
			if errors.Is(err, statestore.ErrNotFound) {
				a.log.Warn("party decision for unknown transfer", "transfer_id", d.TransferID)
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

// AutoAcceptParties accepts every discovered payee.
func (a *BulkTransactionAgg) AutoAcceptParties(ctx context.Context) (int, error) {
	const op = "Bulk.AutoAcceptParties"
	applied := 0
	err := executeWrite(ctx, a.deps, op, func(ctx context.Context) error {
		children, err := a.loadTransfers(ctx)
		if err != nil {
			return err
		}
		for _, t := range children {
			if t.State() != bulk.TransferDiscoverySuccess {
				continue
			}
			_, ok, err := a.updateTransfer(ctx, t.ID(), func(cur *bulk.IndividualTransferEntity) bool {
				return cur.ApplyPartyDecision(true)
			})
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		return nil
	})
	return applied, err
}
