package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrValidation is the sentinel matched by all input validation failures.
var ErrValidation = errors.New("validation failed")

// ValidationError rejects a single named input field. It matches
// ErrValidation via errors.Is so callers can branch on the class without
// parsing messages.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ParsePositiveDecimal converts a raw string input into a decimal, rejecting
// empty, non-numeric and non-positive values. This is the single
// parse-and-validate step performed at the boundary before any business
// logic runs; nothing downstream re-coerces numeric input.
func ParsePositiveDecimal(raw, field string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, NewValidationError(field, "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, NewValidationError(field, fmt.Sprintf("%q is not a number", raw))
	}
	if !d.IsPositive() {
		return decimal.Zero, NewValidationError(field, "must be a positive number")
	}
	return d, nil
}
