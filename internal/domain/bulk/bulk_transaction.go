package bulk

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
)

type BulkTransactionState struct {
	Meta
	BulkHomeTransactionID string                       `json:"bulkHomeTransactionID"`
	Options               BulkTransactionOptions       `json:"options"`
	From                  Party                        `json:"from"`
	Extensions            *ExtensionList               `json:"extensions,omitempty"`
	State                 BulkTransactionInternalState `json:"state"`
}

// BulkTransactionEntity wraps the root record of a bulk transaction.
type BulkTransactionEntity struct {
	stateRecord[BulkTransactionState]
}

// CreateBulkTransactionFromRequest validates req and builds a RECEIVED root,
// assigning an id when the request has none.
func CreateBulkTransactionFromRequest(req *BulkTransactionRequest, now time.Time) (*BulkTransactionEntity, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(req.BulkTransactionID)
	if id == "" {
		id = uuid.NewString()
	}
	return NewBulkTransactionEntity(BulkTransactionState{
		Meta:                  newMeta(id, now),
		BulkHomeTransactionID: req.BulkHomeTransactionID,
		Options:               req.Options,
		From:                  req.From,
		Extensions:            req.Extensions,
		State:                 BulkTransactionReceived,
	}), nil
}

func NewBulkTransactionEntity(state BulkTransactionState) *BulkTransactionEntity {
	return &BulkTransactionEntity{stateRecord[BulkTransactionState]{state: state}}
}

func (e *BulkTransactionEntity) ID() string                          { return e.state.ID }
func (e *BulkTransactionEntity) State() BulkTransactionInternalState { return e.state.State }
func (e *BulkTransactionEntity) BulkHomeTransactionID() string       { return e.state.BulkHomeTransactionID }
func (e *BulkTransactionEntity) Options() BulkTransactionOptions     { return e.state.Options }
func (e *BulkTransactionEntity) From() Party                         { return e.state.From }
func (e *BulkTransactionEntity) Extensions() *ExtensionList          { return e.state.Extensions }
func (e *BulkTransactionEntity) Version() int                        { return e.state.Version }
func (e *BulkTransactionEntity) Touch(now time.Time)                 { e.state.Touch(now) }
func (e *BulkTransactionEntity) IsSkipPartyLookupEnabled() bool      { return e.state.Options.SkipPartyLookup }
func (e *BulkTransactionEntity) IsOnlyValidatePartyEnabled() bool    { return e.state.Options.OnlyValidateParty }
func (e *BulkTransactionEntity) IsAutoAcceptPartyEnabled() bool      { return e.state.Options.AutoAcceptParty.Enabled }
func (e *BulkTransactionEntity) IsAutoAcceptQuoteEnabled() bool      { return e.state.Options.AutoAcceptQuote.Enabled }

// AdvanceTxState moves the root forward. Re-applying the current state is a
// no-op reported as advanced=false; moving backward is an invariant violation.
func (e *BulkTransactionEntity) AdvanceTxState(next BulkTransactionInternalState) (bool, error) {
	const op = "Bulk.SetTxState"
	if !next.Valid() {
		return false, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown bulk state %q", next), nil)
	}
	cur := e.state.State
	switch {
	case next == cur:
		return false, nil
	case cur.Valid() && next.Rank() < cur.Rank():
		return false, domainagg.NewError(domainagg.CodeInvariantViolation, op,
			fmt.Sprintf("bulk %s cannot move from %s back to %s", e.state.ID, cur, next), nil)
	}
	e.state.State = next
	return true, nil
}

func (e *BulkTransactionEntity) SetTxState(next BulkTransactionInternalState) error {
	_, err := e.AdvanceTxState(next)
	return err
}

// FeeLimit returns the per-transfer fee ceiling configured for currency.
func (e *BulkTransactionEntity) FeeLimit(currency string) (decimal.Decimal, bool) {
	for _, lim := range e.state.Options.AutoAcceptQuote.PerTransferFeeLimits {
		if !strings.EqualFold(lim.Currency, currency) {
			continue
		}
		d, err := decimal.NewFromString(lim.Amount)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

// QuoteWithinFeeLimit reports whether a quoted payee fee respects the
// configured ceiling. Quotes in currencies without a limit are accepted.
func (e *BulkTransactionEntity) QuoteWithinFeeLimit(q *IndividualQuoteResult) bool {
	if q == nil || q.PayeeFspFee == nil {
		return true
	}
	limit, ok := e.FeeLimit(q.PayeeFspFee.Currency)
	if !ok {
		return true
	}
	fee, err := decimal.NewFromString(q.PayeeFspFee.Amount)
	if err != nil {
		return false
	}
	return fee.LessThanOrEqual(limit)
}
