package ledger

import "errors"

var (
	ErrUnauthorized     = errors.New("ledger: unauthorized")
	ErrNotFound         = errors.New("ledger: item not found")
	ErrIncorrectPayment = errors.New("ledger: insufficient or incorrect payment")
	ErrOutOfRange       = errors.New("ledger: order index out of range")
	ErrTransferFailed   = errors.New("ledger: transfer failed")
	ErrInvalidItem      = errors.New("ledger: invalid item")
	ErrDuplicateItem    = errors.New("ledger: item already listed")
	ErrOutOfStock       = errors.New("ledger: item out of stock")
	ErrOwnerMismatch    = errors.New("ledger: stored owner differs from configured owner")
	ErrNoWallet         = errors.New("ledger: no wallet configured")
	ErrInvalidAddress   = errors.New("ledger: invalid address")
)

// IsClientError reports whether err is a business rule failure caused by the caller,
// as opposed to a storage or transfer problem.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrIncorrectPayment) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrInvalidItem) ||
		errors.Is(err, ErrDuplicateItem) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrInvalidAddress)
}
