package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// NormalizeCurrency validates an ISO-4217 code and returns its canonical form.
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", ErrValidation, code)
	}
	return unit.String(), nil
}

// MinorUnitScale returns the number of fractional digits the currency allows.
func MinorUnitScale(code string) (int32, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown currency %q", ErrValidation, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

// ValidateAmount checks that amount is positive and representable in the currency.
func ValidateAmount(amount decimal.Decimal, code string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	scale, err := MinorUnitScale(code)
	if err != nil {
		return err
	}
	if !amount.Equal(amount.Truncate(scale)) {
		return fmt.Errorf("%w: amount %s has more than %d fractional digits for %s",
			ErrValidation, amount.String(), scale, code)
	}
	return nil
}

// FormatAmount renders amount with exactly the currency's minor-unit digits.
func FormatAmount(amount decimal.Decimal, code string) string {
	scale, err := MinorUnitScale(code)
	if err != nil {
		scale = 2
	}
	return amount.StringFixed(scale)
}
