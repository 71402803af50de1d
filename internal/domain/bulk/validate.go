package bulk

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	amountPattern   = regexp.MustCompile(`^([0]|([1-9][0-9]{0,17}))([.][0-9]{0,3}[1-9])?$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyPattern.MatchString(fl.Field().String())
	})
	// amount is a transfer amount and must be positive; money may be zero,
	// which a fee limit uses to accept only fee-free quotes.
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, ok := parseAmount(fl.Field().String())
		return ok && d.IsPositive()
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, ok := parseAmount(fl.Field().String())
		return ok && !d.IsNegative()
	})
	return v
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	if !amountPattern.MatchString(raw) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	return d, err == nil
}

// Violation is a single failed schema rule.
type Violation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func (v Violation) String() string {
	if v.Param != "" {
		return fmt.Sprintf("%s failed %s=%s", v.Field, v.Rule, v.Param)
	}
	return fmt.Sprintf("%s failed %s", v.Field, v.Rule)
}

// SchemaValidationError lists every rule a payload broke.
type SchemaValidationError struct {
	Violations []Violation
}

func (e *SchemaValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Validate checks v against its struct tags and returns a *SchemaValidationError
// describing every violation, or nil.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &SchemaValidationError{Violations: []Violation{{Field: "", Rule: err.Error()}}}
	}
	out := &SchemaValidationError{Violations: make([]Violation, 0, len(verrs))}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out.Violations = append(out.Violations, Violation{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// ValidateRequest validates an inbound bulk transaction request.
func ValidateRequest(req *BulkTransactionRequest) error {
	const op = "Bulk.ValidateRequest"
	if req == nil {
		return domainagg.NewError(domainagg.CodeSchemaValidation, op, "missing request", &SchemaValidationError{})
	}
	if err := Validate(req); err != nil {
		return domainagg.NewError(domainagg.CodeSchemaValidation, op, err.Error(), err)
	}
	if err := uniqueTransferIDs(req.IndividualTransfers); err != nil {
		return domainagg.NewError(domainagg.CodeSchemaValidation, op, err.Error(), err)
	}
	return nil
}

func uniqueTransferIDs(items []IndividualTransferRequest) error {
	seen := make(map[string]struct{}, len(items))
	var out *SchemaValidationError
	for i, it := range items {
		id := strings.ToLower(strings.TrimSpace(it.TransferID))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			if out == nil {
				out = &SchemaValidationError{}
			}
			out.Violations = append(out.Violations, Violation{Field: fmt.Sprintf("individualTransfers[%d].transferId", i), Rule: "unique"})
			continue
		}
		seen[id] = struct{}{}
	}
	if out == nil {
		return nil
	}
	return out
}

// Violations extracts schema violations carried anywhere in err's chain.
func Violations(err error) []Violation {
	var sve *SchemaValidationError
	if errors.As(err, &sve) {
		return sve.Violations
	}
	return nil
}
