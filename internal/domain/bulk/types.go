package bulk

type Extension struct {
	Key   string `json:"key" validate:"required,max=32"`
	Value string `json:"value" validate:"required,max=128"`
}

type ExtensionList struct {
	Extension []Extension `json:"extension" validate:"min=1,max=16,dive"`
}

type PartyIDInfo struct {
	PartyIDType      string         `json:"partyIdType" validate:"required,oneof=MSISDN EMAIL PERSONAL_ID BUSINESS DEVICE ACCOUNT_ID IBAN ALIAS CONSENT THIRD_PARTY_LINK"`
	PartyIdentifier  string         `json:"partyIdentifier" validate:"required,max=128"`
	PartySubIDOrType string         `json:"partySubIdOrType,omitempty" validate:"max=128"`
	FspID            string         `json:"fspId,omitempty" validate:"max=32"`
	ExtensionList    *ExtensionList `json:"extensionList,omitempty"`
}

type PartyComplexName struct {
	FirstName  string `json:"firstName,omitempty"`
	MiddleName string `json:"middleName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
}

type PartyPersonalInfo struct {
	ComplexName *PartyComplexName `json:"complexName,omitempty"`
	DateOfBirth string            `json:"dateOfBirth,omitempty"`
}

type Party struct {
	PartyIDInfo                PartyIDInfo        `json:"partyIdInfo"`
	MerchantClassificationCode string             `json:"merchantClassificationCode,omitempty"`
	Name                       string             `json:"name,omitempty" validate:"max=128"`
	PersonalInfo               *PartyPersonalInfo `json:"personalInfo,omitempty"`
}

type Money struct {
	Currency string `json:"currency" validate:"required,currency"`
	Amount   string `json:"amount" validate:"required,money"`
}

type ErrorInformation struct {
	ErrorCode        string         `json:"errorCode" validate:"required"`
	ErrorDescription string         `json:"errorDescription"`
	ExtensionList    *ExtensionList `json:"extensionList,omitempty"`
}

type AutoAcceptParty struct {
	Enabled bool `json:"enabled"`
}

type AutoAcceptQuote struct {
	Enabled              bool    `json:"enabled"`
	PerTransferFeeLimits []Money `json:"perTransferFeeLimits,omitempty" validate:"dive"`
}

type BulkTransactionOptions struct {
	OnlyValidateParty bool            `json:"onlyValidateParty,omitempty"`
	AutoAcceptParty   AutoAcceptParty `json:"autoAcceptParty"`
	AutoAcceptQuote   AutoAcceptQuote `json:"autoAcceptQuote"`
	SkipPartyLookup   bool            `json:"skipPartyLookup,omitempty"`
	Synchronous       bool            `json:"synchronous,omitempty"`
	BulkExpiration    string          `json:"bulkExpiration,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type IndividualTransferRequest struct {
	// TransferID is optional; when empty the id is derived from the bulk id
	// and the item's position.
	TransferID         string         `json:"transferId,omitempty" validate:"omitempty,uuid"`
	HomeTransactionID  string         `json:"homeTransactionId" validate:"required,max=64"`
	To                 Party          `json:"to"`
	Reference          string         `json:"reference,omitempty"`
	AmountType         string         `json:"amountType" validate:"required,oneof=SEND RECEIVE"`
	Currency           string         `json:"currency" validate:"required,currency"`
	Amount             string         `json:"amount" validate:"required,amount"`
	Note               string         `json:"note,omitempty" validate:"max=128"`
	QuoteExtensions    *ExtensionList `json:"quoteExtensions,omitempty"`
	TransferExtensions *ExtensionList `json:"transferExtensions,omitempty"`
}

type BulkTransactionRequest struct {
	BulkHomeTransactionID string                      `json:"bulkHomeTransactionID" validate:"required,max=64"`
	BulkTransactionID     string                      `json:"bulkTransactionId,omitempty" validate:"omitempty,uuid"`
	Options               BulkTransactionOptions      `json:"options"`
	From                  Party                       `json:"from"`
	IndividualTransfers   []IndividualTransferRequest `json:"individualTransfers" validate:"required,min=1,max=1000,dive"`
	Extensions            *ExtensionList              `json:"extensions,omitempty"`
}

// PartyResult is the payload of a party lookup reply. Exactly one of
// Party or ErrorInformation is expected.
type PartyResult struct {
	Party            *Party            `json:"party,omitempty"`
	CurrentState     string            `json:"currentState,omitempty"`
	ErrorInformation *ErrorInformation `json:"errorInformation,omitempty"`
}

type IndividualQuote struct {
	QuoteID       string         `json:"quoteId"`
	TransactionID string         `json:"transactionId"`
	To            Party          `json:"to"`
	AmountType    string         `json:"amountType"`
	Currency      string         `json:"currency"`
	Amount        string         `json:"amount"`
	Note          string         `json:"note,omitempty"`
	ExtensionList *ExtensionList `json:"extensionList,omitempty"`
}

type BulkQuoteRequest struct {
	BulkQuoteID       string            `json:"bulkQuoteId" validate:"required"`
	HomeTransactionID string            `json:"homeTransactionId,omitempty"`
	From              Party             `json:"from"`
	IndividualQuotes  []IndividualQuote `json:"individualQuotes" validate:"required,min=1"`
	Expiration        string            `json:"expiration,omitempty"`
	ExtensionList     *ExtensionList    `json:"extensionList,omitempty"`
}

type IndividualQuoteResult struct {
	QuoteID            string            `json:"quoteId"`
	TransferAmount     *Money            `json:"transferAmount,omitempty"`
	PayeeReceiveAmount *Money            `json:"payeeReceiveAmount,omitempty"`
	PayeeFspFee        *Money            `json:"payeeFspFee,omitempty"`
	PayeeFspCommission *Money            `json:"payeeFspCommission,omitempty"`
	IlpPacket          string            `json:"ilpPacket,omitempty"`
	Condition          string            `json:"condition,omitempty"`
	ErrorInformation   *ErrorInformation `json:"errorInformation,omitempty"`
	ExtensionList      *ExtensionList    `json:"extensionList,omitempty"`
}

type BulkQuoteResponse struct {
	BulkQuoteID            string                  `json:"bulkQuoteId"`
	CurrentState           string                  `json:"currentState,omitempty"`
	Expiration             string                  `json:"expiration,omitempty"`
	IndividualQuoteResults []IndividualQuoteResult `json:"individualQuoteResults,omitempty"`
	ErrorInformation       *ErrorInformation       `json:"errorInformation,omitempty"`
	ExtensionList          *ExtensionList          `json:"extensionList,omitempty"`
}

type BulkIndividualTransfer struct {
	TransferID    string         `json:"transferId"`
	To            Party          `json:"to"`
	AmountType    string         `json:"amountType"`
	Currency      string         `json:"currency"`
	Amount        string         `json:"amount"`
	IlpPacket     string         `json:"ilpPacket,omitempty"`
	Condition     string         `json:"condition,omitempty"`
	Note          string         `json:"note,omitempty"`
	ExtensionList *ExtensionList `json:"extensionList,omitempty"`
}

type BulkTransferRequest struct {
	BulkTransferID      string                   `json:"bulkTransferId" validate:"required"`
	BulkQuoteID         string                   `json:"bulkQuoteId,omitempty"`
	HomeTransactionID   string                   `json:"homeTransactionId,omitempty"`
	From                Party                    `json:"from"`
	IndividualTransfers []BulkIndividualTransfer `json:"individualTransfers" validate:"required,min=1"`
	Expiration          string                   `json:"expiration,omitempty"`
	ExtensionList       *ExtensionList           `json:"extensionList,omitempty"`
}

type IndividualTransferResult struct {
	TransferID       string            `json:"transferId"`
	Fulfilment       string            `json:"fulfilment,omitempty"`
	ErrorInformation *ErrorInformation `json:"errorInformation,omitempty"`
	ExtensionList    *ExtensionList    `json:"extensionList,omitempty"`
}

type BulkTransferResponse struct {
	BulkTransferID            string                     `json:"bulkTransferId"`
	CurrentState              string                     `json:"currentState,omitempty"`
	CompletedTimestamp        string                     `json:"completedTimestamp,omitempty"`
	IndividualTransferResults []IndividualTransferResult `json:"individualTransferResults,omitempty"`
	ErrorInformation          *ErrorInformation          `json:"errorInformation,omitempty"`
	ExtensionList             *ExtensionList             `json:"extensionList,omitempty"`
}

// Decisions submitted by the initiator between phases.

type PartyAcceptance struct {
	TransferID  string `json:"transferId" validate:"required"`
	AcceptParty bool   `json:"acceptParty"`
}

type QuoteAcceptance struct {
	TransferID  string `json:"transferId" validate:"required"`
	AcceptQuote bool   `json:"acceptQuote"`
}

// Well-known FSPIOP error codes the coordinator produces itself.
const (
	ErrorCodeInternal      = "2001"
	ErrorCodeServerTimeout = "2004"
	ErrorCodePartyNotFound = "3204"
	ErrorCodeQuoteMissing  = "3205"
	ErrorCodePayerRejected = "4100"
)

func NewErrorInformation(code, description string) *ErrorInformation {
	return &ErrorInformation{ErrorCode: code, ErrorDescription: description}
}

// IndividualTransferResponse reports one child in the final or current view of a bulk transaction.
type IndividualTransferResponse struct {
	TransferID        string                          `json:"transferId"`
	HomeTransactionID string                          `json:"homeTransactionId"`
	TransactionState  IndividualTransferInternalState `json:"transactionState"`
	To                Party                           `json:"to"`
	Amount            string                          `json:"amount"`
	Currency          string                          `json:"currency"`
	QuoteResponse     *IndividualQuoteResult          `json:"quoteResponse,omitempty"`
	TransferResponse  *IndividualTransferResult       `json:"transferResponse,omitempty"`
	LastError         *ErrorInformation               `json:"lastError,omitempty"`
}

type BulkTransactionResponse struct {
	BulkTransactionID     string                       `json:"bulkTransactionId"`
	BulkHomeTransactionID string                       `json:"bulkHomeTransactionID"`
	CurrentState          string                       `json:"currentState"`
	InternalState         string                       `json:"internalState,omitempty"`
	IndividualTransfers   []IndividualTransferResponse `json:"individualTransferResults"`
}
