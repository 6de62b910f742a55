package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
)

type txKey struct{}

// withTx lets repos called from inside a transaction (a purchase debit or a
// withdrawal payout) join it instead of opening a second writer.
func withTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func conn(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// inTx runs fn inside the transaction carried by ctx, or inside a new one
// that is committed when fn succeeds.
func inTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(withTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// LedgerRepo is the sqlite ledger.Store.
type LedgerRepo struct{ db *sqlx.DB }

func NewLedgerRepo(db *sqlx.DB) *LedgerRepo { return &LedgerRepo{db: db} }

var _ ledger.Store = (*LedgerRepo)(nil)

type metaRow struct {
	Owner      string        `db:"owner"`
	Balance    domain.Amount `db:"balance"`
	Withdrawn  domain.Amount `db:"withdrawn"`
	LastTimeNS int64         `db:"last_time_ns"`
}

type orderRow struct {
	Buyer  string `db:"buyer"`
	Seq    int    `db:"seq"`
	TimeNS int64  `db:"time_ns"`
	domain.Item
}

func (r *LedgerRepo) InitOwner(ctx context.Context, owner domain.Address) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_meta(id, owner) VALUES(1, ?)
		ON CONFLICT(id) DO NOTHING
	`, owner.String())
	return err
}

func (r *LedgerRepo) Load(ctx context.Context) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{
		Items:  make(map[uint64]domain.Item),
		Orders: make(map[domain.Address][]domain.Order),
	}

	var m metaRow
	err := r.db.GetContext(ctx, &m, `SELECT owner, balance, withdrawn, last_time_ns FROM ledger_meta WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	snap.Owner = domain.Address(m.Owner)
	snap.Balance = m.Balance
	snap.Withdrawn = m.Withdrawn
	if m.LastTimeNS > 0 {
		snap.LastTime = time.Unix(0, m.LastTimeNS).UTC()
	}

	var items []domain.Item
	if err := r.db.SelectContext(ctx, &items, `
		SELECT id, name, category, image, cost, rating, stock FROM items ORDER BY id
	`); err != nil {
		return snap, err
	}
	for _, it := range items {
		snap.Items[it.ID] = it
	}

	var orders []orderRow
	if err := r.db.SelectContext(ctx, &orders, `
		SELECT buyer, seq, time_ns, id, name, category, image, cost, rating, stock
		FROM orders
		ORDER BY buyer, seq
	`); err != nil {
		return snap, err
	}
	for _, o := range orders {
		buyer := domain.Address(o.Buyer)
		if want := len(snap.Orders[buyer]) + 1; o.Seq != want {
			return snap, fmt.Errorf("orders for %s: found seq %d, want %d", buyer, o.Seq, want)
		}
		snap.Orders[buyer] = append(snap.Orders[buyer], domain.Order{
			Time: time.Unix(0, o.TimeNS).UTC(),
			Item: o.Item,
		})
	}
	return snap, nil
}

func (r *LedgerRepo) PutItem(ctx context.Context, item domain.Item) error {
	return putItem(ctx, r.db, item)
}

func putItem(ctx context.Context, ex sqlx.ExecerContext, item domain.Item) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO items(id, name, category, image, cost, rating, stock, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name, category = excluded.category, image = excluded.image,
		  cost = excluded.cost, rating = excluded.rating, stock = excluded.stock,
		  updated_at = CURRENT_TIMESTAMP
	`, int64(item.ID), item.Name, item.Category, item.Image, item.Cost.String(), item.Rating, item.Stock)
	return err
}

// AppendOrder collects the payment first so a rejected debit never reaches
// the ledger tables; any later failure rolls the debit back with them.
func (r *LedgerRepo) AppendOrder(ctx context.Context, buyer domain.Address, seq int, order domain.Order, balance domain.Amount, item domain.Item, pay ledger.TransferFunc) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if pay != nil {
		if err := pay(withTx(ctx, tx)); err != nil {
			return err
		}
	}

	it := order.Item
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders(buyer, seq, time_ns, id, name, category, image, cost, rating, stock)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, buyer.String(), seq, order.Time.UnixNano(),
		int64(it.ID), it.Name, it.Category, it.Image, it.Cost.String(), it.Rating, it.Stock); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE ledger_meta SET balance = ?, last_time_ns = MAX(last_time_ns, ?) WHERE id = 1
	`, balance.String(), order.Time.UnixNano()); err != nil {
		return err
	}
	if err := putItem(ctx, tx, item); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *LedgerRepo) Withdraw(ctx context.Context, w domain.Withdrawal, transfer ledger.TransferFunc) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var m metaRow
	if err := tx.GetContext(ctx, &m, `SELECT owner, balance, withdrawn, last_time_ns FROM ledger_meta WHERE id = 1`); err != nil {
		return err
	}
	if m.Balance.Cmp(w.Amount) < 0 {
		return fmt.Errorf("withdraw %s: balance too low", w.Amount)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE ledger_meta SET balance = ?, withdrawn = ? WHERE id = 1
	`, m.Balance.Sub(w.Amount).String(), m.Withdrawn.Add(w.Amount).String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO withdrawals(id, to_address, amount, time_ns) VALUES(?, ?, ?, ?)
	`, w.ID, w.To.String(), w.Amount.String(), w.Time.UnixNano()); err != nil {
		return err
	}
	if err := transfer(withTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

type withdrawalRow struct {
	ID     string        `db:"id"`
	To     string        `db:"to_address"`
	Amount domain.Amount `db:"amount"`
	TimeNS int64         `db:"time_ns"`
}

// Withdrawals lists payouts, newest first.
func (r *LedgerRepo) Withdrawals(ctx context.Context, limit int) ([]domain.Withdrawal, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []withdrawalRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, to_address, amount, time_ns FROM withdrawals
		ORDER BY time_ns DESC
		LIMIT ?
	`, limit); err != nil {
		return nil, err
	}
	out := make([]domain.Withdrawal, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Withdrawal{
			ID:     row.ID,
			To:     domain.Address(row.To),
			Amount: row.Amount,
			Time:   time.Unix(0, row.TimeNS).UTC(),
		})
	}
	return out, nil
}
