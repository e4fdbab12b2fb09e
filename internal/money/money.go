// Package money holds monetary values as integer minor units (cents,
// centavos). Arithmetic never touches floating point; rendering goes through
// shopspring/decimal with the currency's exponent.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tokenbay/storefront/internal/apperr"
)

type Money struct {
	AmountMinor int64
	Currency    string
}

// exponents lists currencies that do not use two decimal places.
var exponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"CLP": 0,
	"BHD": 3,
	"KWD": 3,
}

func exponent(currency string) int32 {
	if e, ok := exponents[currency]; ok {
		return e
	}
	return 2
}

func New(amountMinor int64, currency string) (Money, error) {
	if amountMinor < 0 {
		return Money{}, apperr.Validationf("amount must not be negative, got %d", amountMinor)
	}
	if currency == "" {
		return Money{}, apperr.Validationf("currency is required")
	}
	return Money{AmountMinor: amountMinor, Currency: currency}, nil
}

// Zero returns a zero value in the given currency.
func Zero(currency string) Money { return Money{AmountMinor: 0, Currency: currency} }

func (m Money) IsZero() bool { return m.AmountMinor == 0 }

// Decimal renders the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.AmountMinor, -exponent(m.Currency))
}

// Formatted is always derived from AmountMinor and Currency, never stored.
func (m Money) Formatted() string {
	return fmt.Sprintf("%s %s", m.Currency, m.Decimal().StringFixed(exponent(m.Currency)))
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, apperr.Validationf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}, nil
}

// MulInt multiplies by a quantity. Quantities below one are rejected.
func (m Money) MulInt(qty int) (Money, error) {
	if qty < 1 {
		return Money{}, apperr.Validationf("quantity must be a positive integer, got %d", qty)
	}
	return Money{AmountMinor: m.AmountMinor * int64(qty), Currency: m.Currency}, nil
}

type moneyJSON struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Formatted   string `json:"formatted,omitempty"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{AmountMinor: m.AmountMinor, Currency: m.Currency, Formatted: m.Formatted()})
}

// UnmarshalJSON ignores any incoming formatted string; it is recomputed.
func (m *Money) UnmarshalJSON(b []byte) error {
	var mj moneyJSON
	if err := json.Unmarshal(b, &mj); err != nil {
		return err
	}
	m.AmountMinor = mj.AmountMinor
	m.Currency = mj.Currency
	return nil
}
