package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"marketplace/internal/domain"
	"marketplace/internal/wallet"
)

// AccountRepo stores API credentials and wallet funds. It is the sqlite
// implementation of wallet.Accounts.
type AccountRepo struct{ db *sqlx.DB }

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

var _ wallet.Accounts = (*AccountRepo)(nil)

func (r *AccountRepo) ByAddress(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	var a domain.Account
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &a, `
		SELECT address, key_hash, funds FROM accounts WHERE address = ?
	`, addr.String())
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ErrAccountExists is returned by Create when addr already has a key.
var ErrAccountExists = errors.New("account already registered")

// Create stores keyHash for addr. Rows created by incoming credits have no
// key yet and are claimed; accounts that already hold a key are left alone.
func (r *AccountRepo) Create(ctx context.Context, addr domain.Address, keyHash string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO accounts(address, key_hash) VALUES(?, ?)
		ON CONFLICT(address) DO UPDATE SET key_hash = excluded.key_hash, updated_at = CURRENT_TIMESTAMP
		WHERE accounts.key_hash = ''
	`, addr.String(), keyHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountExists
	}
	return nil
}

// SetAcceptsFunds toggles whether credits to addr are accepted.
func (r *AccountRepo) SetAcceptsFunds(ctx context.Context, addr domain.Address, accepts bool) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO accounts(address, accepts_funds) VALUES(?, ?)
		ON CONFLICT(address) DO UPDATE SET accepts_funds = excluded.accepts_funds, updated_at = CURRENT_TIMESTAMP
	`, addr.String(), accepts)
	return err
}

func (r *AccountRepo) Funds(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	var funds domain.Amount
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &funds, `SELECT funds FROM accounts WHERE address = ?`, addr.String())
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Amount{}, nil
	}
	return funds, err
}

// Debit subtracts amount if the account holds enough. Funds are TEXT, so the
// check and the write happen in Go inside one transaction.
func (r *AccountRepo) Debit(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	if amount.Sign() < 0 {
		return wallet.ErrInvalidAmount
	}
	return inTx(ctx, r.db, func(ctx context.Context) error {
		have, err := r.Funds(ctx, addr)
		if err != nil {
			return err
		}
		if have.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s, need %s", wallet.ErrInsufficientFunds, have, amount)
		}
		_, err = conn(ctx, r.db).ExecContext(ctx, `
			UPDATE accounts SET funds = ?, updated_at = CURRENT_TIMESTAMP WHERE address = ?
		`, have.Sub(amount).String(), addr.String())
		return err
	})
}

// Credit adds amount to addr, creating the account when needed.
func (r *AccountRepo) Credit(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	if amount.Sign() < 0 {
		return wallet.ErrInvalidAmount
	}
	return inTx(ctx, r.db, func(ctx context.Context) error {
		c := conn(ctx, r.db)

		var acc struct {
			Funds   domain.Amount `db:"funds"`
			Accepts bool          `db:"accepts_funds"`
		}
		err := sqlx.GetContext(ctx, c, &acc, `SELECT funds, accepts_funds FROM accounts WHERE address = ?`, addr.String())
		switch {
		case errors.Is(err, sql.ErrNoRows):
			acc.Accepts = true
		case err != nil:
			return err
		}
		if !acc.Accepts {
			return fmt.Errorf("%w: %s", wallet.ErrRejected, addr)
		}

		_, err = c.ExecContext(ctx, `
			INSERT INTO accounts(address, funds) VALUES(?, ?)
			ON CONFLICT(address) DO UPDATE SET funds = excluded.funds, updated_at = CURRENT_TIMESTAMP
		`, addr.String(), acc.Funds.Add(amount).String())
		return err
	})
}

func (r *AccountRepo) Transfer(ctx context.Context, to domain.Address, amount domain.Amount) error {
	return r.Credit(ctx, to, amount)
}
