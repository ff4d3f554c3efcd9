package shopify

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value as returned by the Admin API.
// The API sends amounts as decimal strings; plain numbers are accepted too.
// Missing, null and empty values decode to zero.
type Amount struct {
	decimal.Decimal
}

// NewAmount returns an Amount parsed from s. It panics on malformed input and
// is meant for literals.
func NewAmount(s string) Amount {
	return Amount{decimal.RequireFromString(s)}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}

	data = bytes.Trim(data, `"`)
	if len(bytes.TrimSpace(data)) == 0 {
		a.Decimal = decimal.Zero
		return nil
	}

	d, err := decimal.NewFromString(string(bytes.TrimSpace(data)))
	if err != nil {
		return fmt.Errorf("decode amount %q: %w", data, err)
	}
	a.Decimal = d
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return a.Decimal.MarshalJSON()
}
