// Package amount implements a 256-bit unsigned integer amount type backing
// every on-chain quantity in the splits schema (token amounts, split ids,
// deadlines), so values never pass through a float or int64 and lose
// precision.
package amount

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// Amount wraps a non-negative big.Int representing a DECIMAL(78,0) column,
// an ERC-20 amount, or an on-chain split id. It round-trips through
// PostgreSQL as text and through JSON as a bare decimal string (never a
// JSON number, since float64 cannot hold a full uint256).
type Amount struct {
	v big.Int
}

// Zero is the additive identity.
var Zero = Amount{}

// FromBigInt copies i into a new Amount. A nil i yields Zero.
func FromBigInt(i *big.Int) Amount {
	var a Amount
	if i != nil {
		a.v.Set(i)
	}
	return a
}

// FromUint64 builds an Amount from a uint64, for test fixtures and literals.
func FromUint64(u uint64) Amount {
	var a Amount
	a.v.SetUint64(u)
	return a
}

// Parse parses a base-10 string into an Amount. Returns an error on
// malformed input or a negative value.
func Parse(s string) (Amount, error) {
	var a Amount
	i, ok := a.v.SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("amount: invalid decimal string %q", s)
	}
	if i.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount: negative value %q", s)
	}
	return a, nil
}

// MustParse is Parse but panics on error; for test fixtures only.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// BigInt returns a copy of the underlying big.Int.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(&a.v)
}

// String returns the base-10 representation.
func (a Amount) String() string {
	return a.v.String()
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.v.Sign() == 0
}

// Cmp compares a to b: -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// Add returns a+b.
func Add(a, b Amount) Amount {
	var r Amount
	r.v.Add(&a.v, &b.v)
	return r
}

// MarshalJSON encodes the amount as a JSON string, e.g. "25000000".
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.String() + `"`), nil
}

// UnmarshalJSON decodes a JSON string into the amount. A bare JSON number is
// also accepted for leniency but a decimal string is always preferred by
// this service's own encoder.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		a.v.SetInt64(0)
		return nil
	}
	i, ok := a.v.SetString(s, 10)
	if !ok {
		return fmt.Errorf("amount: invalid JSON value %q", s)
	}
	if i.Sign() < 0 {
		return fmt.Errorf("amount: negative value %q", s)
	}
	return nil
}

// Value implements driver.Valuer, storing the amount as DECIMAL(78,0) text.
func (a Amount) Value() (driver.Value, error) {
	return a.v.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		a.v.SetInt64(0)
		return nil
	case string:
		return a.scanString(v)
	case []byte:
		return a.scanString(string(v))
	case int64:
		a.v.SetInt64(v)
		return nil
	default:
		return fmt.Errorf("amount: unsupported scan type %T", src)
	}
}

func (a *Amount) scanString(s string) error {
	i, ok := a.v.SetString(s, 10)
	if !ok {
		return fmt.Errorf("amount: cannot scan %q as decimal", s)
	}
	if i.Sign() < 0 {
		return fmt.Errorf("amount: negative stored value %q", s)
	}
	return nil
}
