package bulk

import (
	"testing"
)

func TestValidateRequestAcceptsSample(t *testing.T) {
	if err := ValidateRequest(sampleRequest(3)); err != nil {
		t.Fatalf("sample should validate: %v", err)
	}
}

func TestValidateRequestReportsEveryViolation(t *testing.T) {
	req := sampleRequest(2)
	req.BulkHomeTransactionID = ""
	req.IndividualTransfers[0].Currency = "usd"
	req.IndividualTransfers[1].AmountType = "GIFT"

	err := ValidateRequest(req)
	if err == nil {
		t.Fatalf("expected error")
	}
	got := map[string]string{}
	for _, v := range Violations(err) {
		got[v.Field] = v.Rule
	}
	want := map[string]string{
		"bulkHomeTransactionID":             "required",
		"individualTransfers[0].currency":   "currency",
		"individualTransfers[1].amountType": "oneof",
	}
	for field, rule := range want {
		if got[field] != rule {
			t.Fatalf("violation %s: want=%s got=%q (all=%v)", field, rule, got[field], got)
		}
	}
}

func TestValidateRequestRejectsEmptyTransfers(t *testing.T) {
	req := sampleRequest(0)
	if err := ValidateRequest(req); err == nil {
		t.Fatalf("expected error for empty individualTransfers")
	}
	if err := ValidateRequest(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
}

func TestAmountRule(t *testing.T) {
	cases := map[string]bool{
		"10":      true,
		"10.5":    true,
		"0.001":   true,
		"0":       false,
		"010":     false,
		"1.0":     false,
		"-5":      false,
		"1.23456": false,
		"abc":     false,
	}
	for amount, ok := range cases {
		err := validate.Var(amount, "amount")
		if (err == nil) != ok {
			t.Fatalf("amount %q: want valid=%v got err=%v", amount, ok, err)
		}
	}
}

func TestMoneyRuleAllowsZero(t *testing.T) {
	cases := map[string]bool{
		"0":   true,
		"2.5": true,
		"-1":  false,
		"01":  false,
	}
	for amount, ok := range cases {
		err := Validate(Money{Currency: "USD", Amount: amount})
		if (err == nil) != ok {
			t.Fatalf("money %q: want valid=%v got err=%v", amount, ok, err)
		}
	}
}

func TestValidateRequestTransferIDs(t *testing.T) {
	req := sampleRequest(3)
	req.IndividualTransfers[0].TransferID = "4a1b0a4e-5f0c-4d3e-9a57-2a8f2c1d9e10"
	if err := ValidateRequest(req); err != nil {
		t.Fatalf("supplied id should validate: %v", err)
	}

	req.IndividualTransfers[2].TransferID = req.IndividualTransfers[0].TransferID
	err := ValidateRequest(req)
	if err == nil {
		t.Fatalf("duplicate transfer ids: want error")
	}
	v := Violations(err)
	if len(v) != 1 || v[0].Field != "individualTransfers[2].transferId" || v[0].Rule != "unique" {
		t.Fatalf("duplicate violation: got=%+v", v)
	}

	req.IndividualTransfers[2].TransferID = "not-a-uuid"
	v = Violations(ValidateRequest(req))
	if len(v) != 1 || v[0].Field != "individualTransfers[2].transferId" || v[0].Rule != "uuid" {
		t.Fatalf("malformed id violation: got=%+v", v)
	}
}
