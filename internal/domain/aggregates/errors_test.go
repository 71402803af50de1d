package aggregates

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsCodeThroughWrapping(t *testing.T) {
	base := NewError(CodeAggregateNotFound, "Bulk.Load", "bulk b-1 not found", nil)
	wrapped := fmt.Errorf("handler: %w", base)
	if !IsCode(wrapped, CodeAggregateNotFound) {
		t.Fatalf("expected aggregate_not_found through wrap, got=%v", CodeOf(wrapped))
	}
	if IsCode(wrapped, CodeConflict) {
		t.Fatalf("unexpected conflict code")
	}
}

func TestErrorString(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{&Error{Code: CodeConflict, Op: "op", Message: "msg"}, "op: msg (conflict)"},
		{&Error{Code: CodeConflict, Op: "op"}, "op (conflict)"},
		{&Error{Code: CodeConflict, Message: "msg"}, "msg (conflict)"},
		{&Error{Code: CodeConflict}, "conflict"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("Error(): want=%q got=%q", tc.want, got)
		}
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeInternal, "op", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
	if Wrap(CodeInternal, "op", nil) != nil {
		t.Fatalf("wrapping nil should return nil")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(NewError(CodeRepositoryUnavailable, "", "", nil)) {
		t.Fatalf("repository_unavailable should be retryable")
	}
	if Retryable(NewError(CodeSchemaValidation, "", "", nil)) {
		t.Fatalf("schema_validation should not be retryable")
	}
	if Retryable(errors.New("plain")) {
		t.Fatalf("plain errors carry no code")
	}
}
