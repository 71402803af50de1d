package bulk

// BulkTransactionInternalState is the forward-only lifecycle of a bulk transaction.
type BulkTransactionInternalState string

const (
	BulkTransactionReceived                     BulkTransactionInternalState = "RECEIVED"
	BulkTransactionDiscoveryProcessing          BulkTransactionInternalState = "DISCOVERY_PROCESSING"
	BulkTransactionDiscoveryCompleted           BulkTransactionInternalState = "DISCOVERY_COMPLETED"
	BulkTransactionDiscoveryAcceptanceCompleted BulkTransactionInternalState = "DISCOVERY_ACCEPTANCE_COMPLETED"
	BulkTransactionAgreementProcessing          BulkTransactionInternalState = "AGREEMENT_PROCESSING"
	BulkTransactionAgreementCompleted           BulkTransactionInternalState = "AGREEMENT_COMPLETED"
	BulkTransactionAgreementAcceptancePending   BulkTransactionInternalState = "AGREEMENT_ACCEPTANCE_PENDING"
	BulkTransactionTransferProcessing           BulkTransactionInternalState = "TRANSFER_PROCESSING"
	BulkTransactionTransfersCompleted           BulkTransactionInternalState = "TRANSFERS_COMPLETED"
)

var bulkTransactionStateRank = map[BulkTransactionInternalState]int{
	BulkTransactionReceived:                     0,
	BulkTransactionDiscoveryProcessing:          1,
	BulkTransactionDiscoveryCompleted:           2,
	BulkTransactionDiscoveryAcceptanceCompleted: 3,
	BulkTransactionAgreementProcessing:          4,
	BulkTransactionAgreementCompleted:           5,
	BulkTransactionAgreementAcceptancePending:   6,
	BulkTransactionTransferProcessing:           7,
	BulkTransactionTransfersCompleted:           8,
}

// Rank orders states; unknown states rank -1.
func (s BulkTransactionInternalState) Rank() int {
	if r, ok := bulkTransactionStateRank[s]; ok {
		return r
	}
	return -1
}

func (s BulkTransactionInternalState) Valid() bool { return s.Rank() >= 0 }

// IndividualTransferInternalState tracks one transfer through discovery,
// agreement and transfer. Outcomes of the same phase share a rank.
type IndividualTransferInternalState string

const (
	TransferReceived            IndividualTransferInternalState = "RECEIVED"
	TransferDiscoveryProcessing IndividualTransferInternalState = "DISCOVERY_PROCESSING"
	TransferDiscoverySuccess    IndividualTransferInternalState = "DISCOVERY_SUCCESS"
	TransferDiscoveryFailed     IndividualTransferInternalState = "DISCOVERY_FAILED"
	TransferDiscoveryAccepted   IndividualTransferInternalState = "DISCOVERY_ACCEPTED"
	TransferDiscoveryRejected   IndividualTransferInternalState = "DISCOVERY_REJECTED"
	TransferAgreementProcessing IndividualTransferInternalState = "AGREEMENT_PROCESSING"
	TransferAgreementSuccess    IndividualTransferInternalState = "AGREEMENT_SUCCESS"
	TransferAgreementFailed     IndividualTransferInternalState = "AGREEMENT_FAILED"
	TransferAgreementAccepted   IndividualTransferInternalState = "AGREEMENT_ACCEPTED"
	TransferAgreementRejected   IndividualTransferInternalState = "AGREEMENT_REJECTED"
	TransferTransferProcessing  IndividualTransferInternalState = "TRANSFER_PROCESSING"
	TransferTransferSuccess     IndividualTransferInternalState = "TRANSFER_SUCCESS"
	TransferTransferFailed      IndividualTransferInternalState = "TRANSFER_FAILED"
)

var individualTransferStateRank = map[IndividualTransferInternalState]int{
	TransferReceived:            0,
	TransferDiscoveryProcessing: 1,
	TransferDiscoverySuccess:    2,
	TransferDiscoveryFailed:     2,
	TransferDiscoveryAccepted:   3,
	TransferDiscoveryRejected:   3,
	TransferAgreementProcessing: 4,
	TransferAgreementSuccess:    5,
	TransferAgreementFailed:     5,
	TransferAgreementAccepted:   6,
	TransferAgreementRejected:   6,
	TransferTransferProcessing:  7,
	TransferTransferSuccess:     8,
	TransferTransferFailed:      8,
}

func (s IndividualTransferInternalState) Rank() int {
	if r, ok := individualTransferStateRank[s]; ok {
		return r
	}
	return -1
}

func (s IndividualTransferInternalState) Valid() bool { return s.Rank() >= 0 }

// Terminal states never transition again.
func (s IndividualTransferInternalState) Terminal() bool {
	switch s {
	case TransferDiscoveryFailed,
		TransferDiscoveryRejected,
		TransferAgreementFailed,
		TransferAgreementRejected,
		TransferTransferSuccess,
		TransferTransferFailed:
		return true
	default:
		return false
	}
}

// Failed reports whether the transfer ended without moving money.
func (s IndividualTransferInternalState) Failed() bool {
	return s.Terminal() && s != TransferTransferSuccess
}

func canTransitionIndividual(from, to IndividualTransferInternalState) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	return to.Rank() > from.Rank()
}

// BulkBatchInternalState tracks one per-payee-FSP batch.
type BulkBatchInternalState string

const (
	BatchCreated             BulkBatchInternalState = "CREATED"
	BatchAgreementProcessing BulkBatchInternalState = "AGREEMENT_PROCESSING"
	BatchAgreementCompleted  BulkBatchInternalState = "AGREEMENT_COMPLETED"
	BatchAgreementFailed     BulkBatchInternalState = "AGREEMENT_FAILED"
	BatchTransfersProcessing BulkBatchInternalState = "TRANSFERS_PROCESSING"
	BatchTransfersCompleted  BulkBatchInternalState = "TRANSFERS_COMPLETED"
	BatchTransfersFailed     BulkBatchInternalState = "TRANSFERS_FAILED"
)

var bulkBatchStateRank = map[BulkBatchInternalState]int{
	BatchCreated:             0,
	BatchAgreementProcessing: 1,
	BatchAgreementCompleted:  2,
	BatchAgreementFailed:     2,
	BatchTransfersProcessing: 3,
	BatchTransfersCompleted:  4,
	BatchTransfersFailed:     4,
}

func (s BulkBatchInternalState) Rank() int {
	if r, ok := bulkBatchStateRank[s]; ok {
		return r
	}
	return -1
}

func (s BulkBatchInternalState) Valid() bool { return s.Rank() >= 0 }

func (s BulkBatchInternalState) Terminal() bool {
	return s == BatchAgreementFailed || s == BatchTransfersCompleted || s == BatchTransfersFailed
}

// AgreementSettled reports whether the batch no longer waits on a quote reply.
func (s BulkBatchInternalState) AgreementSettled() bool {
	return s.Rank() >= BatchAgreementCompleted.Rank()
}

// TransfersSettled reports whether the batch no longer waits on a transfer reply.
func (s BulkBatchInternalState) TransfersSettled() bool {
	return s == BatchAgreementFailed || s.Rank() >= BatchTransfersCompleted.Rank()
}

// External states reported to the initiator.
const (
	ExternalStateReceived                  = "RECEIVED"
	ExternalStateProcessing                = "PROCESSING"
	ExternalStateWaitingForPartyAcceptance = "WAITING_FOR_PARTY_ACCEPTANCE"
	ExternalStateWaitingForQuoteAcceptance = "WAITING_FOR_QUOTE_ACCEPTANCE"
	ExternalStateCompleted                 = "COMPLETED"
	ExternalStateErrorOccurred             = "ERROR_OCCURRED"
)

// ExternalState maps an internal root state onto what the initiator sees.
// States that cannot be recognised surface as ERROR_OCCURRED.
func ExternalState(s BulkTransactionInternalState, autoAcceptParty bool) string {
	switch s {
	case BulkTransactionReceived:
		return ExternalStateReceived
	case BulkTransactionDiscoveryCompleted:
		if autoAcceptParty {
			return ExternalStateProcessing
		}
		return ExternalStateWaitingForPartyAcceptance
	case BulkTransactionAgreementAcceptancePending:
		return ExternalStateWaitingForQuoteAcceptance
	case BulkTransactionTransfersCompleted:
		return ExternalStateCompleted
	case BulkTransactionDiscoveryProcessing,
		BulkTransactionDiscoveryAcceptanceCompleted,
		BulkTransactionAgreementProcessing,
		BulkTransactionAgreementCompleted,
		BulkTransactionTransferProcessing:
		return ExternalStateProcessing
	default:
		return ExternalStateErrorOccurred
	}
}
