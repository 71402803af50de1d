package bulk

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
)

type BulkBatchState struct {
	Meta
	State                 BulkBatchInternalState `json:"state"`
	PayeeFspID            string                 `json:"payeeFspId"`
	IndividualTransferIDs []string               `json:"individualTransferIds"`
	BulkQuoteID           string                 `json:"bulkQuoteId"`
	BulkTransferID        string                 `json:"bulkTransferId"`
	Totals                map[string]string      `json:"totals,omitempty"`
	BulkQuoteResponse     *BulkQuoteResponse     `json:"bulkQuoteResponse,omitempty"`
	BulkTransferResponse  *BulkTransferResponse  `json:"bulkTransferResponse,omitempty"`
	LastError             *ErrorInformation      `json:"lastError,omitempty"`
}

// BulkBatchEntity is a group of transfers sharing one destination participant,
// quoted and transferred with a single bulk request each.
type BulkBatchEntity struct {
	stateRecord[BulkBatchState]
}

func NewBulkBatch(payeeFspID string, transferIDs []string, totals map[string]string, now time.Time) *BulkBatchEntity {
	ids := append([]string(nil), transferIDs...)
	return NewBulkBatchEntity(BulkBatchState{
		Meta:                  newMeta(uuid.NewString(), now),
		State:                 BatchCreated,
		PayeeFspID:            payeeFspID,
		IndividualTransferIDs: ids,
		BulkQuoteID:           uuid.NewString(),
		BulkTransferID:        uuid.NewString(),
		Totals:                totals,
	})
}

func NewBulkBatchEntity(state BulkBatchState) *BulkBatchEntity {
	return &BulkBatchEntity{stateRecord[BulkBatchState]{state: state}}
}

func (b *BulkBatchEntity) ID() string                        { return b.state.ID }
func (b *BulkBatchEntity) State() BulkBatchInternalState     { return b.state.State }
func (b *BulkBatchEntity) PayeeFspID() string                { return b.state.PayeeFspID }
func (b *BulkBatchEntity) IndividualTransferIDs() []string   { return b.state.IndividualTransferIDs }
func (b *BulkBatchEntity) BulkQuoteID() string               { return b.state.BulkQuoteID }
func (b *BulkBatchEntity) BulkTransferID() string            { return b.state.BulkTransferID }
func (b *BulkBatchEntity) Totals() map[string]string         { return b.state.Totals }
func (b *BulkBatchEntity) Touch(now time.Time)               { b.state.Touch(now) }
func (b *BulkBatchEntity) SetLastError(ei *ErrorInformation) { b.state.LastError = ei }

func (b *BulkBatchEntity) SetState(next BulkBatchInternalState) error {
	cur := b.state.State
	if !next.Valid() || cur.Terminal() || next.Rank() <= cur.Rank() {
		return domainagg.NewError(domainagg.CodeInvariantViolation, "Bulk.Batch.SetState",
			fmt.Sprintf("batch %s cannot move from %s to %s", b.state.ID, cur, next), nil)
	}
	b.state.State = next
	return nil
}

// ApplyBulkQuoteResponse records the quotes reply for this batch. It returns
// false when the batch is no longer waiting on one.
func (b *BulkBatchEntity) ApplyBulkQuoteResponse(resp BulkQuoteResponse) bool {
	if b.state.State != BatchAgreementProcessing {
		return false
	}
	b.state.BulkQuoteResponse = &resp
	if resp.ErrorInformation != nil {
		b.state.State = BatchAgreementFailed
		b.state.LastError = resp.ErrorInformation
		return true
	}
	b.state.State = BatchAgreementCompleted
	return true
}

func (b *BulkBatchEntity) ApplyBulkTransferResponse(resp BulkTransferResponse) bool {
	if b.state.State != BatchTransfersProcessing {
		return false
	}
	b.state.BulkTransferResponse = &resp
	if resp.ErrorInformation != nil {
		b.state.State = BatchTransfersFailed
		b.state.LastError = resp.ErrorInformation
		return true
	}
	b.state.State = BatchTransfersCompleted
	return true
}

// QuoteResultsByID indexes the recorded quote reply by quote id.
func (b *BulkBatchEntity) QuoteResultsByID() map[string]*IndividualQuoteResult {
	out := map[string]*IndividualQuoteResult{}
	if b.state.BulkQuoteResponse == nil {
		return out
	}
	for i := range b.state.BulkQuoteResponse.IndividualQuoteResults {
		r := &b.state.BulkQuoteResponse.IndividualQuoteResults[i]
		out[r.QuoteID] = r
	}
	return out
}

func (b *BulkBatchEntity) TransferResultsByID() map[string]*IndividualTransferResult {
	out := map[string]*IndividualTransferResult{}
	if b.state.BulkTransferResponse == nil {
		return out
	}
	for i := range b.state.BulkTransferResponse.IndividualTransferResults {
		r := &b.state.BulkTransferResponse.IndividualTransferResults[i]
		out[r.TransferID] = r
	}
	return out
}

// BatchPlan is one batch to be created.
type BatchPlan struct {
	PayeeFspID  string
	TransferIDs []string
	Totals      map[string]string
}

// Batchable reports whether a child is ready to be grouped for agreement.
func Batchable(t *IndividualTransferEntity) bool {
	if t == nil || t.BatchID() != "" || t.PayeeFspID() == "" {
		return false
	}
	s := t.State()
	return s == TransferDiscoverySuccess || s == TransferDiscoveryAccepted
}

// PlanBatches groups batchable transfers by destination participant and splits
// each group into chunks of at most maxEntries. Output order is stable:
// participants sorted, transfer ids sorted within a participant.
func PlanBatches(transfers []*IndividualTransferEntity, maxEntries int) []BatchPlan {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	byFsp := map[string][]*IndividualTransferEntity{}
	for _, t := range transfers {
		if !Batchable(t) {
			continue
		}
		fsp := t.PayeeFspID()
		byFsp[fsp] = append(byFsp[fsp], t)
	}
	fsps := make([]string, 0, len(byFsp))
	for fsp := range byFsp {
		fsps = append(fsps, fsp)
	}
	sort.Strings(fsps)

	var plans []BatchPlan
	for _, fsp := range fsps {
		group := byFsp[fsp]
		sort.Slice(group, func(i, j int) bool { return group[i].ID() < group[j].ID() })
		for start := 0; start < len(group); start += maxEntries {
			end := start + maxEntries
			if end > len(group) {
				end = len(group)
			}
			chunk := group[start:end]
			ids := make([]string, 0, len(chunk))
			for _, t := range chunk {
				ids = append(ids, t.ID())
			}
			plans = append(plans, BatchPlan{PayeeFspID: fsp, TransferIDs: ids, Totals: sumByCurrency(chunk)})
		}
	}
	return plans
}

func sumByCurrency(transfers []*IndividualTransferEntity) map[string]string {
	sums := map[string]decimal.Decimal{}
	for _, t := range transfers {
		req := t.Request()
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			continue
		}
		sums[req.Currency] = sums[req.Currency].Add(amt)
	}
	out := make(map[string]string, len(sums))
	for cur, d := range sums {
		out[cur] = d.String()
	}
	return out
}
