package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/models"
)

// Amounts are decimal with currency precision of two fractional digits.
// The ledger stores magnitudes, never signs: status conveys intent.
const amountPlaces = 2

// ParseAmount parses a caller-supplied amount string into a validated
// decimal. It rejects empty input, unparseable text, negatives and values
// with sub-cent precision.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", models.ErrValidation)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed amount %q", models.ErrValidation, raw)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount enforces the non-negative magnitude invariant.
func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", models.ErrValidation)
	}
	if d.Exponent() < -amountPlaces {
		return fmt.Errorf("%w: amount has more than %d decimal places", models.ErrValidation, amountPlaces)
	}
	return nil
}

// FormatAmount renders an amount with fixed currency precision, the form
// used for encrypted storage so round trips are byte-stable.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(amountPlaces)
}
