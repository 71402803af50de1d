package bulk

import (
	"fmt"
	"strings"
	"time"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
)

type IndividualTransferState struct {
	Meta
	Request          IndividualTransferRequest       `json:"request"`
	State            IndividualTransferInternalState `json:"state"`
	BatchID          string                          `json:"batchId,omitempty"`
	QuoteID          string                          `json:"quoteId,omitempty"`
	PartyResponse    *PartyResult                    `json:"partyResponse,omitempty"`
	AcceptParty      *bool                           `json:"acceptParty,omitempty"`
	QuoteResponse    *IndividualQuoteResult          `json:"quoteResponse,omitempty"`
	AcceptQuote      *bool                           `json:"acceptQuote,omitempty"`
	TransferResponse *IndividualTransferResult       `json:"transferResponse,omitempty"`
	LastError        *ErrorInformation               `json:"lastError,omitempty"`
}

// IndividualTransferEntity wraps one child record of a bulk transaction.
type IndividualTransferEntity struct {
	stateRecord[IndividualTransferState]
}

// CreateIndividualTransferFromRequest builds the index-th child of bulkID in
// state RECEIVED, keeping the transfer id the request supplies.
func CreateIndividualTransferFromRequest(bulkID string, index int, req IndividualTransferRequest, now time.Time) *IndividualTransferEntity {
	id := strings.TrimSpace(req.TransferID)
	if id == "" {
		id = TransferIDFor(bulkID, index)
	}
	return NewIndividualTransferEntity(IndividualTransferState{
		Meta:    newMeta(id, now),
		Request: req,
		State:   TransferReceived,
	})
}

func NewIndividualTransferEntity(state IndividualTransferState) *IndividualTransferEntity {
	return &IndividualTransferEntity{stateRecord[IndividualTransferState]{state: state}}
}

func (e *IndividualTransferEntity) ID() string                             { return e.state.ID }
func (e *IndividualTransferEntity) State() IndividualTransferInternalState { return e.state.State }
func (e *IndividualTransferEntity) Request() IndividualTransferRequest     { return e.state.Request }
func (e *IndividualTransferEntity) Payee() Party                           { return e.state.Request.To }
func (e *IndividualTransferEntity) BatchID() string                        { return e.state.BatchID }
func (e *IndividualTransferEntity) QuoteID() string                        { return e.state.QuoteID }
func (e *IndividualTransferEntity) PartyResponse() *PartyResult            { return e.state.PartyResponse }
func (e *IndividualTransferEntity) QuoteResponse() *IndividualQuoteResult  { return e.state.QuoteResponse }
func (e *IndividualTransferEntity) TransferResponse() *IndividualTransferResult {
	return e.state.TransferResponse
}
func (e *IndividualTransferEntity) LastError() *ErrorInformation { return e.state.LastError }
func (e *IndividualTransferEntity) Touch(now time.Time)          { e.state.Touch(now) }

// PayeeResolved is true once any party lookup reply has been recorded.
func (e *IndividualTransferEntity) PayeeResolved() bool { return e.state.PartyResponse != nil }

// PayeeFspID is the destination participant: the discovered one when a lookup
// succeeded, otherwise whatever the initiator supplied.
func (e *IndividualTransferEntity) PayeeFspID() string {
	if pr := e.state.PartyResponse; pr != nil && pr.Party != nil && pr.Party.PartyIDInfo.FspID != "" {
		return pr.Party.PartyIDInfo.FspID
	}
	return e.state.Request.To.PartyIDInfo.FspID
}

// ResolvedPayee is the party to address quotes and transfers to.
func (e *IndividualTransferEntity) ResolvedPayee() Party {
	if pr := e.state.PartyResponse; pr != nil && pr.Party != nil {
		return *pr.Party
	}
	return e.state.Request.To
}

func (e *IndividualTransferEntity) CanTransitionTo(next IndividualTransferInternalState) bool {
	return canTransitionIndividual(e.state.State, next)
}

func (e *IndividualTransferEntity) SetTransferState(next IndividualTransferInternalState) error {
	if !e.CanTransitionTo(next) {
		return domainagg.NewError(domainagg.CodeInvariantViolation, "Bulk.SetTransferState",
			fmt.Sprintf("transfer %s cannot move from %s to %s", e.state.ID, e.state.State, next), nil)
	}
	e.state.State = next
	return nil
}

func (e *IndividualTransferEntity) SetPartyResponse(pr *PartyResult)  { e.state.PartyResponse = pr }
func (e *IndividualTransferEntity) SetLastError(ei *ErrorInformation) { e.state.LastError = ei }

func (e *IndividualTransferEntity) SetBatch(batchID, quoteID string) {
	e.state.BatchID = batchID
	e.state.QuoteID = quoteID
}

// AwaitingPartyLookup is true while no lookup was sent for the child and no
// reply was recorded.
func (e *IndividualTransferEntity) AwaitingPartyLookup() bool {
	return e.state.State == TransferReceived && e.state.PartyResponse == nil
}

// MarkDiscoveryProcessing records that a lookup is on its way. A child whose
// reply already arrived is left alone.
func (e *IndividualTransferEntity) MarkDiscoveryProcessing() bool {
	if !e.AwaitingPartyLookup() {
		return false
	}
	e.state.State = TransferDiscoveryProcessing
	return true
}

// AssignBatch moves a batchable child into batchID for agreement.
func (e *IndividualTransferEntity) AssignBatch(batchID, quoteID string) bool {
	if !Batchable(e) {
		return false
	}
	e.SetBatch(batchID, quoteID)
	e.state.State = TransferAgreementProcessing
	return true
}

// ApplyPartyResult records a lookup reply and moves the child to
// DISCOVERY_SUCCESS or DISCOVERY_FAILED. Replies for a child already past
// discovery change nothing and report applied=false.
func (e *IndividualTransferEntity) ApplyPartyResult(pr PartyResult) (applied bool) {
	next := TransferDiscoverySuccess
	switch {
	case pr.ErrorInformation != nil:
		next = TransferDiscoveryFailed
	case pr.Party == nil:
		next = TransferDiscoveryFailed
		pr.ErrorInformation = NewErrorInformation(ErrorCodePartyNotFound, "party lookup returned no party")
	}
	if !e.CanTransitionTo(next) {
		return false
	}
	e.state.State = next
	e.state.PartyResponse = &pr
	e.state.LastError = pr.ErrorInformation
	return true
}

// ApplyPartyDecision records the initiator's accept/reject for a discovered payee.
func (e *IndividualTransferEntity) ApplyPartyDecision(accept bool) bool {
	if e.state.State != TransferDiscoverySuccess {
		return false
	}
	e.state.AcceptParty = &accept
	if accept {
		e.state.State = TransferDiscoveryAccepted
		return true
	}
	e.state.State = TransferDiscoveryRejected
	e.state.LastError = NewErrorInformation(ErrorCodePayerRejected, "payee rejected by initiator")
	return true
}

// ApplyQuoteResult records one individual quote from a bulk quotes reply.
// A nil result means the quote was missing from the reply.
func (e *IndividualTransferEntity) ApplyQuoteResult(q *IndividualQuoteResult, batchErr *ErrorInformation) bool {
	if e.state.State != TransferAgreementProcessing {
		return false
	}
	switch {
	case batchErr != nil:
		e.state.State = TransferAgreementFailed
		e.state.LastError = batchErr
	case q == nil:
		e.state.State = TransferAgreementFailed
		e.state.LastError = NewErrorInformation(ErrorCodeQuoteMissing, "quote missing from bulk quotes reply")
	case q.ErrorInformation != nil:
		e.state.State = TransferAgreementFailed
		e.state.QuoteResponse = q
		e.state.LastError = q.ErrorInformation
	default:
		e.state.State = TransferAgreementSuccess
		e.state.QuoteResponse = q
	}
	return true
}

// ApplyQuoteDecision records the initiator's accept/reject for a quote.
func (e *IndividualTransferEntity) ApplyQuoteDecision(accept bool, reason string) bool {
	if e.state.State != TransferAgreementSuccess {
		return false
	}
	e.state.AcceptQuote = &accept
	if accept {
		e.state.State = TransferAgreementAccepted
		return true
	}
	if reason == "" {
		reason = "quote rejected by initiator"
	}
	e.state.State = TransferAgreementRejected
	e.state.LastError = NewErrorInformation(ErrorCodePayerRejected, reason)
	return true
}

// MarkTransferProcessing moves an accepted child into the transfer phase.
func (e *IndividualTransferEntity) MarkTransferProcessing() bool {
	if e.state.State != TransferAgreementAccepted {
		return false
	}
	e.state.State = TransferTransferProcessing
	return true
}

// ApplyTransferResult records one result from a bulk transfers reply.
func (e *IndividualTransferEntity) ApplyTransferResult(r *IndividualTransferResult, batchErr *ErrorInformation) bool {
	if e.state.State != TransferTransferProcessing {
		return false
	}
	switch {
	case batchErr != nil:
		e.state.State = TransferTransferFailed
		e.state.LastError = batchErr
	case r == nil:
		e.state.State = TransferTransferFailed
		e.state.LastError = NewErrorInformation(ErrorCodeInternal, "transfer missing from bulk transfers reply")
	case r.ErrorInformation != nil:
		e.state.State = TransferTransferFailed
		e.state.TransferResponse = r
		e.state.LastError = r.ErrorInformation
	default:
		e.state.State = TransferTransferSuccess
		e.state.TransferResponse = r
	}
	return true
}
