package events

import "github.com/yungbote/bulkflow/internal/domain/bulk"

// Payload is the typed content of a message. The set is closed: only the
// types in this file implement it, one per Name.
type Payload interface {
	EventName() Name
	// EventKey is the message key the payload is published under.
	EventKey() string
	sealed()
}

type payloadBase struct{}

func (payloadBase) sealed() {}

// Domain payloads.

type SDKOutboundBulkRequestReceivedPayload struct {
	payloadBase
	Request bulk.BulkTransactionRequest `json:"request" validate:"-"`
}

type SDKOutboundBulkPartyInfoRequestedPayload struct {
	payloadBase
	BulkTransactionID string `json:"bulkId" validate:"required"`
}

type PartyInfoRequestedPayload struct {
	payloadBase
	BulkTransactionID string           `json:"bulkId" validate:"required"`
	TransferID        string           `json:"transferId" validate:"required"`
	PartyIDInfo       bulk.PartyIDInfo `json:"partyIdInfo" validate:"required"`
}

type PartyInfoCallbackReceivedPayload struct {
	payloadBase
	BulkTransactionID string           `json:"bulkId" validate:"required"`
	TransferID        string           `json:"transferId" validate:"required"`
	Result            bulk.PartyResult `json:"partyResult" validate:"-"`
}

type SDKOutboundBulkAcceptPartyInfoRequestedPayload struct {
	payloadBase
	BulkTransactionID string                       `json:"bulkId" validate:"required"`
	Snapshot          bulk.BulkTransactionResponse `json:"bulkTransaction" validate:"-"`
}

type SDKOutboundBulkAcceptPartyInfoReceivedPayload struct {
	payloadBase
	BulkTransactionID string                 `json:"bulkId" validate:"required"`
	Decisions         []bulk.PartyAcceptance `json:"individualTransfers" validate:"required,min=1,dive"`
}

type BulkQuotesRequestedPayload struct {
	payloadBase
	BulkTransactionID string                `json:"bulkId" validate:"required"`
	BatchID           string                `json:"batchId" validate:"required"`
	Request           bulk.BulkQuoteRequest `json:"request" validate:"-"`
}

type BulkQuotesCallbackReceivedPayload struct {
	payloadBase
	BulkTransactionID string                 `json:"bulkId" validate:"required"`
	BatchID           string                 `json:"batchId" validate:"required"`
	Response          bulk.BulkQuoteResponse `json:"bulkQuotesResult" validate:"-"`
}

type SDKOutboundBulkAcceptQuoteRequestedPayload struct {
	payloadBase
	BulkTransactionID string                       `json:"bulkId" validate:"required"`
	Snapshot          bulk.BulkTransactionResponse `json:"bulkTransaction" validate:"-"`
}

type SDKOutboundBulkAcceptQuoteReceivedPayload struct {
	payloadBase
	BulkTransactionID string                 `json:"bulkId" validate:"required"`
	Decisions         []bulk.QuoteAcceptance `json:"individualTransfers" validate:"required,min=1,dive"`
}

type BulkTransfersRequestedPayload struct {
	payloadBase
	BulkTransactionID string                   `json:"bulkId" validate:"required"`
	BatchID           string                   `json:"batchId" validate:"required"`
	Request           bulk.BulkTransferRequest `json:"request" validate:"-"`
}

type BulkTransfersCallbackReceivedPayload struct {
	payloadBase
	BulkTransactionID string                    `json:"bulkId" validate:"required"`
	BatchID           string                    `json:"batchId" validate:"required"`
	Response          bulk.BulkTransferResponse `json:"bulkTransfersResult" validate:"-"`
}

type SDKOutboundBulkResponsePreparedPayload struct {
	payloadBase
	BulkTransactionID string                       `json:"bulkId" validate:"required"`
	Response          bulk.BulkTransactionResponse `json:"bulkTransactionContinuationResult" validate:"-"`
}

// Command payloads.

type ProcessSDKOutboundBulkRequestPayload struct {
	payloadBase
	Request bulk.BulkTransactionRequest `json:"request" validate:"-"`
}

type ProcessSDKOutboundBulkPartyInfoRequestPayload struct {
	payloadBase
	BulkTransactionID string `json:"bulkId" validate:"required"`
}

type ProcessPartyInfoCallbackPayload struct {
	payloadBase
	BulkTransactionID string           `json:"bulkId" validate:"required"`
	TransferID        string           `json:"transferId" validate:"required"`
	Result            bulk.PartyResult `json:"partyResult" validate:"-"`
}

type ProcessSDKOutboundBulkAcceptPartyInfoPayload struct {
	payloadBase
	BulkTransactionID string                 `json:"bulkId" validate:"required"`
	Decisions         []bulk.PartyAcceptance `json:"individualTransfers" validate:"required,min=1,dive"`
}

type ProcessBulkQuotesCallbackPayload struct {
	payloadBase
	BulkTransactionID string                 `json:"bulkId" validate:"required"`
	BatchID           string                 `json:"batchId" validate:"required"`
	Response          bulk.BulkQuoteResponse `json:"bulkQuotesResult" validate:"-"`
}

type ProcessSDKOutboundBulkAcceptQuotePayload struct {
	payloadBase
	BulkTransactionID string                 `json:"bulkId" validate:"required"`
	Decisions         []bulk.QuoteAcceptance `json:"individualTransfers" validate:"required,min=1,dive"`
}

type ProcessBulkTransfersCallbackPayload struct {
	payloadBase
	BulkTransactionID string                    `json:"bulkId" validate:"required"`
	BatchID           string                    `json:"batchId" validate:"required"`
	Response          bulk.BulkTransferResponse `json:"bulkTransfersResult" validate:"-"`
}

func (p *SDKOutboundBulkRequestReceivedPayload) EventName() Name {
	return SDKOutboundBulkRequestReceived
}
func (p *SDKOutboundBulkRequestReceivedPayload) EventKey() string { return p.Request.BulkTransactionID }

func (p *SDKOutboundBulkPartyInfoRequestedPayload) EventName() Name {
	return SDKOutboundBulkPartyInfoRequested
}
func (p *SDKOutboundBulkPartyInfoRequestedPayload) EventKey() string { return p.BulkTransactionID }

func (p *PartyInfoRequestedPayload) EventName() Name  { return PartyInfoRequested }
func (p *PartyInfoRequestedPayload) EventKey() string { return PartyKey(p.BulkTransactionID, p.TransferID) }

func (p *PartyInfoCallbackReceivedPayload) EventName() Name { return PartyInfoCallbackReceived }
func (p *PartyInfoCallbackReceivedPayload) EventKey() string {
	return PartyKey(p.BulkTransactionID, p.TransferID)
}

func (p *SDKOutboundBulkAcceptPartyInfoRequestedPayload) EventName() Name {
	return SDKOutboundBulkAcceptPartyInfoRequested
}
func (p *SDKOutboundBulkAcceptPartyInfoRequestedPayload) EventKey() string {
	return p.BulkTransactionID
}

func (p *SDKOutboundBulkAcceptPartyInfoReceivedPayload) EventName() Name {
	return SDKOutboundBulkAcceptPartyInfoReceived
}
func (p *SDKOutboundBulkAcceptPartyInfoReceivedPayload) EventKey() string {
	return p.BulkTransactionID
}

func (p *BulkQuotesRequestedPayload) EventName() Name  { return BulkQuotesRequested }
func (p *BulkQuotesRequestedPayload) EventKey() string { return p.BulkTransactionID }

func (p *BulkQuotesCallbackReceivedPayload) EventName() Name  { return BulkQuotesCallbackReceived }
func (p *BulkQuotesCallbackReceivedPayload) EventKey() string { return p.BulkTransactionID }

func (p *SDKOutboundBulkAcceptQuoteRequestedPayload) EventName() Name {
	return SDKOutboundBulkAcceptQuoteRequested
}
func (p *SDKOutboundBulkAcceptQuoteRequestedPayload) EventKey() string { return p.BulkTransactionID }

func (p *SDKOutboundBulkAcceptQuoteReceivedPayload) EventName() Name {
	return SDKOutboundBulkAcceptQuoteReceived
}
func (p *SDKOutboundBulkAcceptQuoteReceivedPayload) EventKey() string { return p.BulkTransactionID }

func (p *BulkTransfersRequestedPayload) EventName() Name  { return BulkTransfersRequested }
func (p *BulkTransfersRequestedPayload) EventKey() string { return p.BulkTransactionID }

func (p *BulkTransfersCallbackReceivedPayload) EventName() Name  { return BulkTransfersCallbackReceived }
func (p *BulkTransfersCallbackReceivedPayload) EventKey() string { return p.BulkTransactionID }

func (p *SDKOutboundBulkResponsePreparedPayload) EventName() Name {
	return SDKOutboundBulkResponsePrepared
}
func (p *SDKOutboundBulkResponsePreparedPayload) EventKey() string { return p.BulkTransactionID }

func (p *ProcessSDKOutboundBulkRequestPayload) EventName() Name  { return ProcessSDKOutboundBulkRequest }
func (p *ProcessSDKOutboundBulkRequestPayload) EventKey() string { return p.Request.BulkTransactionID }

func (p *ProcessSDKOutboundBulkPartyInfoRequestPayload) EventName() Name {
	return ProcessSDKOutboundBulkPartyInfoRequest
}
func (p *ProcessSDKOutboundBulkPartyInfoRequestPayload) EventKey() string {
	return p.BulkTransactionID
}

func (p *ProcessPartyInfoCallbackPayload) EventName() Name { return ProcessPartyInfoCallback }
func (p *ProcessPartyInfoCallbackPayload) EventKey() string {
	return PartyKey(p.BulkTransactionID, p.TransferID)
}

func (p *ProcessSDKOutboundBulkAcceptPartyInfoPayload) EventName() Name {
	return ProcessSDKOutboundBulkAcceptPartyInfo
}
func (p *ProcessSDKOutboundBulkAcceptPartyInfoPayload) EventKey() string { return p.BulkTransactionID }

func (p *ProcessBulkQuotesCallbackPayload) EventName() Name  { return ProcessBulkQuotesCallback }
func (p *ProcessBulkQuotesCallbackPayload) EventKey() string { return p.BulkTransactionID }

func (p *ProcessSDKOutboundBulkAcceptQuotePayload) EventName() Name {
	return ProcessSDKOutboundBulkAcceptQuote
}
func (p *ProcessSDKOutboundBulkAcceptQuotePayload) EventKey() string { return p.BulkTransactionID }

func (p *ProcessBulkTransfersCallbackPayload) EventName() Name  { return ProcessBulkTransfersCallback }
func (p *ProcessBulkTransfersCallbackPayload) EventKey() string { return p.BulkTransactionID }
