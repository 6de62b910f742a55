package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"marketplace/internal/domain"
)

var (
	// hex wallet addresses as well as plain handles used in tests and seeds
	reAddress = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,66}$`)
	reKey     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	reNumber  = regexp.MustCompile(`^[0-9]{1,19}$`)
)

const (
	MaxNameLen     = 100
	MaxCategoryLen = 50
	MaxImageLen    = 512
)

// Address normalizes and checks a caller or buyer address.
func Address(s string) (domain.Address, bool) {
	s = strings.TrimSpace(s)
	if !reAddress.MatchString(s) {
		return "", false
	}
	return domain.NewAddress(s), true
}

// APIKey checks the shape of a presented key before it is hashed.
func APIKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reKey.MatchString(s)
}

// ItemID parses a path id. Ids are positive and fit a signed 64-bit column.
func ItemID(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if !reNumber.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 || n > math.MaxInt64 {
		return 0, false
	}
	return n, true
}

// Index parses an order index. Range checks belong to the ledger.
func Index(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !reNumber.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func Amount(a domain.Amount) (domain.Amount, bool) {
	return a, a.Sign() >= 0
}

// Text enforces a rune limit and returns s unchanged. Empty is allowed.
func Text(s string, limit int) (string, bool) {
	return s, utf8.RuneCountInString(s) <= limit
}

// Rating accepts anything that fits the stored byte. The scale is up to clients.
func Rating(n int) (uint8, bool) {
	if n < 0 || n > math.MaxUint8 {
		return 0, false
	}
	return uint8(n), true
}

func Stock(n int64) (uint32, bool) {
	if n < 0 || n > math.MaxUint32 {
		return 0, false
	}
	return uint32(n), true
}
