package bulk

import "testing"

func newChild(t *testing.T) *IndividualTransferEntity {
	t.Helper()
	req := sampleRequest(1)
	return CreateIndividualTransferFromRequest("bulk-1", 0, req.IndividualTransfers[0], testNow)
}

func TestTransferIDIsDeterministic(t *testing.T) {
	if TransferIDFor("bulk-1", 0) != TransferIDFor("bulk-1", 0) {
		t.Fatalf("same bulk/index should derive the same id")
	}
	if TransferIDFor("bulk-1", 0) == TransferIDFor("bulk-1", 1) {
		t.Fatalf("different index should derive a different id")
	}
	if TransferIDFor("bulk-1", 0) == TransferIDFor("bulk-2", 0) {
		t.Fatalf("different bulk should derive a different id")
	}
}

func TestCreateIndividualTransferKeepsSuppliedID(t *testing.T) {
	req := sampleRequest(2)
	req.IndividualTransfers[1].TransferID = "4a1b0a4e-5f0c-4d3e-9a57-2a8f2c1d9e10"

	derived := CreateIndividualTransferFromRequest("bulk-1", 0, req.IndividualTransfers[0], testNow)
	if derived.ID() != TransferIDFor("bulk-1", 0) {
		t.Fatalf("derived id: want=%s got=%s", TransferIDFor("bulk-1", 0), derived.ID())
	}
	supplied := CreateIndividualTransferFromRequest("bulk-1", 1, req.IndividualTransfers[1], testNow)
	if supplied.ID() != "4a1b0a4e-5f0c-4d3e-9a57-2a8f2c1d9e10" {
		t.Fatalf("supplied id: want=4a1b0a4e-5f0c-4d3e-9a57-2a8f2c1d9e10 got=%s", supplied.ID())
	}
}

func TestApplyPartyResultSuccessThenDuplicate(t *testing.T) {
	c := newChild(t)
	if err := c.SetTransferState(TransferDiscoveryProcessing); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	payee := sampleParty("MSISDN", "123", "payeefsp")
	if !c.ApplyPartyResult(PartyResult{Party: &payee}) {
		t.Fatalf("first reply should apply")
	}
	if c.State() != TransferDiscoverySuccess || !c.PayeeResolved() {
		t.Fatalf("state=%s resolved=%v", c.State(), c.PayeeResolved())
	}
	if c.PayeeFspID() != "payeefsp" {
		t.Fatalf("payee fsp: want=payeefsp got=%s", c.PayeeFspID())
	}
	if c.ApplyPartyResult(PartyResult{ErrorInformation: NewErrorInformation("3204", "not found")}) {
		t.Fatalf("duplicate reply must not apply")
	}
	if c.State() != TransferDiscoverySuccess {
		t.Fatalf("duplicate reply changed state to %s", c.State())
	}
}

func TestApplyPartyResultFailure(t *testing.T) {
	c := newChild(t)
	_ = c.SetTransferState(TransferDiscoveryProcessing)
	if !c.ApplyPartyResult(PartyResult{ErrorInformation: NewErrorInformation("3204", "not found")}) {
		t.Fatalf("error reply should apply")
	}
	if c.State() != TransferDiscoveryFailed {
		t.Fatalf("state: want=%s got=%s", TransferDiscoveryFailed, c.State())
	}
	if c.LastError() == nil || c.LastError().ErrorCode != "3204" {
		t.Fatalf("last error not recorded: %+v", c.LastError())
	}
	if c.CanTransitionTo(TransferAgreementProcessing) {
		t.Fatalf("failed children are terminal")
	}
}

func TestApplyPartyResultWithoutPartyFails(t *testing.T) {
	c := newChild(t)
	_ = c.SetTransferState(TransferDiscoveryProcessing)
	c.ApplyPartyResult(PartyResult{})
	if c.State() != TransferDiscoveryFailed {
		t.Fatalf("state: want=%s got=%s", TransferDiscoveryFailed, c.State())
	}
}

func TestChildLifecycleHappyPath(t *testing.T) {
	c := newChild(t)
	payee := sampleParty("MSISDN", "123", "payeefsp")
	_ = c.SetTransferState(TransferDiscoveryProcessing)
	c.ApplyPartyResult(PartyResult{Party: &payee})
	if !c.ApplyPartyDecision(true) {
		t.Fatalf("accept party")
	}
	c.SetBatch("batch-1", "quote-1")
	if err := c.SetTransferState(TransferAgreementProcessing); err != nil {
		t.Fatalf("to agreement: %v", err)
	}
	if !c.ApplyQuoteResult(&IndividualQuoteResult{QuoteID: "quote-1", IlpPacket: "p", Condition: "c"}, nil) {
		t.Fatalf("apply quote")
	}
	if !c.ApplyQuoteDecision(true, "") || !c.MarkTransferProcessing() {
		t.Fatalf("accept quote / start transfer")
	}
	if !c.ApplyTransferResult(&IndividualTransferResult{TransferID: c.ID(), Fulfilment: "f"}, nil) {
		t.Fatalf("apply transfer")
	}
	if c.State() != TransferTransferSuccess {
		t.Fatalf("state: want=%s got=%s", TransferTransferSuccess, c.State())
	}
	if c.ApplyTransferResult(&IndividualTransferResult{TransferID: c.ID()}, NewErrorInformation("2001", "x")) {
		t.Fatalf("second transfer result must be ignored")
	}
}

func TestApplyQuoteResultMissingQuoteFails(t *testing.T) {
	c := newChild(t)
	payee := sampleParty("MSISDN", "123", "payeefsp")
	_ = c.SetTransferState(TransferDiscoveryProcessing)
	c.ApplyPartyResult(PartyResult{Party: &payee})
	_ = c.SetTransferState(TransferAgreementProcessing)
	c.ApplyQuoteResult(nil, nil)
	if c.State() != TransferAgreementFailed {
		t.Fatalf("state: want=%s got=%s", TransferAgreementFailed, c.State())
	}
	if c.LastError() == nil || c.LastError().ErrorCode != ErrorCodeQuoteMissing {
		t.Fatalf("last error: %+v", c.LastError())
	}
}

func TestCanTransitionIsForwardOnly(t *testing.T) {
	cases := []struct {
		from, to IndividualTransferInternalState
		want     bool
	}{
		{TransferReceived, TransferDiscoveryProcessing, true},
		{TransferDiscoveryProcessing, TransferReceived, false},
		{TransferDiscoverySuccess, TransferDiscoveryFailed, false},
		{TransferDiscoverySuccess, TransferAgreementProcessing, true},
		{TransferTransferSuccess, TransferTransferFailed, false},
		{TransferReceived, "BOGUS", false},
	}
	for _, tc := range cases {
		if got := canTransitionIndividual(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: want=%v got=%v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestMarkDiscoveryProcessingLeavesAnsweredChildAlone(t *testing.T) {
	c := newChild(t)
	if !c.AwaitingPartyLookup() {
		t.Fatalf("a new child awaits its lookup")
	}
	payee := sampleParty("MSISDN", "123", "payeefsp")
	if !c.ApplyPartyResult(PartyResult{Party: &payee}) {
		t.Fatalf("a reply may arrive before the child is marked")
	}
	if c.MarkDiscoveryProcessing() {
		t.Fatalf("answered child must not move back to processing")
	}
	if c.State() != TransferDiscoverySuccess {
		t.Fatalf("state: want=%s got=%s", TransferDiscoverySuccess, c.State())
	}

	fresh := newChild(t)
	if !fresh.MarkDiscoveryProcessing() || fresh.State() != TransferDiscoveryProcessing {
		t.Fatalf("fresh child: state=%s", fresh.State())
	}
	if fresh.MarkDiscoveryProcessing() {
		t.Fatalf("second mark must be a no-op")
	}
}

func TestAssignBatchOnlyOnce(t *testing.T) {
	c := newChild(t)
	if c.AssignBatch("batch-1", "quote-1") {
		t.Fatalf("undiscovered child must not be batched")
	}
	payee := sampleParty("MSISDN", "123", "payeefsp")
	c.ApplyPartyResult(PartyResult{Party: &payee})
	c.ApplyPartyDecision(true)
	if !c.AssignBatch("batch-1", "quote-1") {
		t.Fatalf("accepted child should be batched")
	}
	if c.State() != TransferAgreementProcessing || c.BatchID() != "batch-1" || c.QuoteID() != "quote-1" {
		t.Fatalf("after assign: state=%s batch=%s quote=%s", c.State(), c.BatchID(), c.QuoteID())
	}
	if c.AssignBatch("batch-2", "quote-2") || c.BatchID() != "batch-1" {
		t.Fatalf("a batched child must keep its batch: %s", c.BatchID())
	}
}
