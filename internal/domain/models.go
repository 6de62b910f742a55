package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Address identifies an account (owner, buyer). Always compare normalized values.
type Address string

func NewAddress(s string) Address { return Address(strings.ToLower(strings.TrimSpace(s))) }

func (a Address) String() string { return string(a) }

var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a whole number of the smallest currency unit (wei). It has no
// upper bound. The zero value is 0.
//
// Amounts marshal to JSON as base-10 strings and are stored as TEXT.
type Amount struct{ d decimal.Decimal }

func NewAmount(n int64) Amount { return Amount{d: decimal.NewFromInt(n)} }

// ParseAmount reads a non-negative base-10 integer such as "1000000000000000000".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsInteger() || d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %q is not a whole non-negative number", ErrInvalidAmount, s)
	}
	return Amount{d: d}, nil
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

func (a Amount) IsZero() bool { return a.d.IsZero() }

func (a Amount) Sign() int { return a.d.Sign() }

// Float64 is lossy above 2^53 and only meant for metrics.
func (a Amount) Float64() float64 { return a.d.InexactFloat64() }

func (a Amount) String() string { return a.d.String() }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.d.String())), nil
}

// UnmarshalJSON accepts a quoted or bare integer.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Amount) Value() (driver.Value, error) { return a.d.String(), nil }

func (a *Amount) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	a.d = d
	return nil
}

type Item struct {
	ID       uint64 `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Category string `json:"category" db:"category"`
	Image    string `json:"image" db:"image"`
	Cost     Amount `json:"cost" db:"cost"`
	Rating   uint8  `json:"rating" db:"rating"`
	Stock    uint32 `json:"stock" db:"stock"`
}

// Order is an immutable purchase record; Item is a copy taken at purchase time.
type Order struct {
	Time time.Time `json:"time"`
	Item Item      `json:"item"`
}

type Withdrawal struct {
	ID     string    `json:"id"`
	To     Address   `json:"to"`
	Amount Amount    `json:"amount"`
	Time   time.Time `json:"time"`
}

// Account is a wallet holder known to the HTTP surface.
type Account struct {
	Address Address `db:"address"`
	KeyHash string  `db:"key_hash"`
	Funds   Amount  `db:"funds"`
}
