package bulk

import (
	"fmt"
	"time"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleParty(idType, id, fsp string) Party {
	return Party{PartyIDInfo: PartyIDInfo{PartyIDType: idType, PartyIdentifier: id, FspID: fsp}}
}

func sampleRequest(n int) *BulkTransactionRequest {
	req := &BulkTransactionRequest{
		BulkHomeTransactionID: "home-bulk-1",
		From:                  sampleParty("MSISDN", "27713803912", "payerfsp"),
		Options: BulkTransactionOptions{
			AutoAcceptParty: AutoAcceptParty{Enabled: false},
			AutoAcceptQuote: AutoAcceptQuote{Enabled: true},
			BulkExpiration:  "2030-01-01T00:00:00Z",
		},
	}
	for i := 0; i < n; i++ {
		req.IndividualTransfers = append(req.IndividualTransfers, IndividualTransferRequest{
			HomeTransactionID: fmt.Sprintf("home-%d", i),
			To:                sampleParty("MSISDN", fmt.Sprintf("2771380391%d", i), ""),
			AmountType:        "SEND",
			Currency:          "USD",
			Amount:            "10.5",
		})
	}
	return req
}
