// Package wallet provides account funds that purchases are paid from and
// withdrawals are paid into.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"marketplace/internal/domain"
)

var (
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrRejected          = errors.New("wallet: account rejects incoming funds")
	ErrInvalidAmount     = errors.New("wallet: invalid amount")
)

// Accounts is the set of operations the market needs from a funds backend.
type Accounts interface {
	Debit(ctx context.Context, addr domain.Address, amount domain.Amount) error
	Credit(ctx context.Context, addr domain.Address, amount domain.Amount) error
	Funds(ctx context.Context, addr domain.Address) (domain.Amount, error)
	// Transfer credits to; it is the payout primitive used by ledger withdrawals.
	Transfer(ctx context.Context, to domain.Address, amount domain.Amount) error
}

// Book keeps account funds in memory.
type Book struct {
	mu     sync.Mutex
	funds  map[domain.Address]domain.Amount
	frozen map[domain.Address]bool
}

func NewBook() *Book {
	return &Book{
		funds:  make(map[domain.Address]domain.Amount),
		frozen: make(map[domain.Address]bool),
	}
}

func (b *Book) Debit(_ context.Context, addr domain.Address, amount domain.Amount) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	addr = domain.NewAddress(string(addr))

	b.mu.Lock()
	defer b.mu.Unlock()

	have := b.funds[addr]
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, have, amount)
	}
	b.funds[addr] = have.Sub(amount)
	return nil
}

func (b *Book) Credit(_ context.Context, addr domain.Address, amount domain.Amount) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	addr = domain.NewAddress(string(addr))

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen[addr] {
		return fmt.Errorf("%w: %s", ErrRejected, addr)
	}
	b.funds[addr] = b.funds[addr].Add(amount)
	return nil
}

func (b *Book) Transfer(ctx context.Context, to domain.Address, amount domain.Amount) error {
	return b.Credit(ctx, to, amount)
}

func (b *Book) Funds(_ context.Context, addr domain.Address) (domain.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.funds[domain.NewAddress(string(addr))], nil
}

// Freeze makes addr refuse credits until Unfreeze is called.
func (b *Book) Freeze(addr domain.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen[domain.NewAddress(string(addr))] = true
}

func (b *Book) Unfreeze(addr domain.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.frozen, domain.NewAddress(string(addr)))
}
