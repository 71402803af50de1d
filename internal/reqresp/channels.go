package reqresp

import "strings"

// PartiesChannel carries the reply to a party lookup. subID is omitted when empty.
func PartiesChannel(partyType, partyID, subID string) string {
	parts := []string{"parties", partyType, partyID}
	if s := strings.TrimSpace(subID); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "-")
}

func BulkQuotesChannel(bulkQuoteID string) string { return "bulkQuotes-" + bulkQuoteID }

func BulkTransfersChannel(bulkTransferID string) string { return "bulkTransfers-" + bulkTransferID }

func TransfersChannel(transferID string) string { return "transfers-" + transferID }
