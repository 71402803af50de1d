package events

// Name identifies the shape of a message's content.
type Name string

// Domain events.
const (
	SDKOutboundBulkRequestReceived          Name = "SDKOutboundBulkRequestReceived"
	SDKOutboundBulkPartyInfoRequested       Name = "SDKOutboundBulkPartyInfoRequested"
	PartyInfoRequested                      Name = "PartyInfoRequested"
	PartyInfoCallbackReceived               Name = "PartyInfoCallbackReceived"
	SDKOutboundBulkAcceptPartyInfoRequested Name = "SDKOutboundBulkAcceptPartyInfoRequested"
	SDKOutboundBulkAcceptPartyInfoReceived  Name = "SDKOutboundBulkAcceptPartyInfoReceived"
	BulkQuotesRequested                     Name = "BulkQuotesRequested"
	BulkQuotesCallbackReceived              Name = "BulkQuotesCallbackReceived"
	SDKOutboundBulkAcceptQuoteRequested     Name = "SDKOutboundBulkAcceptQuoteRequested"
	SDKOutboundBulkAcceptQuoteReceived      Name = "SDKOutboundBulkAcceptQuoteReceived"
	BulkTransfersRequested                  Name = "BulkTransfersRequested"
	BulkTransfersCallbackReceived           Name = "BulkTransfersCallbackReceived"
	SDKOutboundBulkResponsePrepared         Name = "SDKOutboundBulkResponsePrepared"
)

// Command events.
const (
	ProcessSDKOutboundBulkRequest          Name = "ProcessSDKOutboundBulkRequest"
	ProcessSDKOutboundBulkPartyInfoRequest Name = "ProcessSDKOutboundBulkPartyInfoRequest"
	ProcessPartyInfoCallback               Name = "ProcessPartyInfoCallback"
	ProcessSDKOutboundBulkAcceptPartyInfo  Name = "ProcessSDKOutboundBulkAcceptPartyInfo"
	ProcessBulkQuotesCallback              Name = "ProcessBulkQuotesCallback"
	ProcessSDKOutboundBulkAcceptQuote      Name = "ProcessSDKOutboundBulkAcceptQuote"
	ProcessBulkTransfersCallback           Name = "ProcessBulkTransfersCallback"
)
