package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
	"marketplace/internal/repos"
	"marketplace/internal/services"
	"marketplace/internal/wallet"
)

const owner domain.Address = "0xowner"

func amt(n int64) domain.Amount { return domain.NewAmount(n) }

func newMarket(t *testing.T, opts ...ledger.Option) (*services.MarketService, *ledger.Ledger, *wallet.Book, *observer.ObservedLogs) {
	t.Helper()
	ctx := context.Background()
	book := wallet.NewBook()
	l, err := ledger.New(ctx, owner, append([]ledger.Option{ledger.WithWallet(book)}, opts...)...)
	require.NoError(t, err)
	core, logs := observer.New(zap.InfoLevel)
	return services.NewMarketService(l, book, zap.New(core), nil), l, book, logs
}

func TestPurchaseMovesFundsIntoLedger(t *testing.T) {
	ctx := context.Background()
	svc, l, book, _ := newMarket(t)
	require.NoError(t, book.Credit(ctx, "0xbuyer", amt(50)))
	require.NoError(t, l.List(ctx, owner, domain.Item{ID: 1, Name: "Shoes", Cost: amt(30)}))

	order, err := svc.Purchase(ctx, "0xbuyer", 1, amt(30))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), order.Item.ID)

	funds, _ := book.Funds(ctx, "0xbuyer")
	assert.Equal(t, "20", funds.String())
	assert.Equal(t, "30", l.Balance().String())
	assert.Equal(t, 1, l.OrderCount("0xbuyer"))

	_, err = l.Withdraw(ctx, owner)
	require.NoError(t, err)
	ownerFunds, _ := book.Funds(ctx, owner)
	assert.Equal(t, "30", ownerFunds.String())
}

func TestPurchaseRejectsWithoutDebit(t *testing.T) {
	ctx := context.Background()
	svc, l, book, _ := newMarket(t, ledger.WithStockPolicy(ledger.StockEnforce))
	require.NoError(t, book.Credit(ctx, "0xbuyer", amt(50)))
	require.NoError(t, l.List(ctx, owner, domain.Item{ID: 1, Cost: amt(30), Stock: 1}))
	require.NoError(t, l.List(ctx, owner, domain.Item{ID: 2, Cost: amt(30), Stock: 0}))

	_, err := svc.Purchase(ctx, "0xbuyer", 1, amt(29))
	assert.ErrorIs(t, err, ledger.ErrIncorrectPayment)

	_, err = svc.Purchase(ctx, "0xbuyer", 3, amt(30))
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = svc.Purchase(ctx, "0xbuyer", 2, amt(30))
	assert.ErrorIs(t, err, ledger.ErrOutOfStock)

	funds, _ := book.Funds(ctx, "0xbuyer")
	assert.Equal(t, "50", funds.String())
	assert.True(t, l.Balance().IsZero())
}

func TestPurchaseDeclinedDebitLeavesLedgerUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, l, book, _ := newMarket(t, ledger.WithStockPolicy(ledger.StockDecrement))
	require.NoError(t, book.Credit(ctx, "0xbuyer", amt(10)))
	require.NoError(t, l.List(ctx, owner, domain.Item{ID: 1, Cost: amt(30), Stock: 3}))
	var events []ledger.Event
	l.Subscribe(func(e ledger.Event) { events = append(events, e) })

	_, err := svc.Purchase(ctx, "0xbuyer", 1, amt(30))
	assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	funds, _ := book.Funds(ctx, "0xbuyer")
	assert.Equal(t, "10", funds.String())
	assert.Zero(t, l.OrderCount("0xbuyer"))
	assert.True(t, l.Balance().IsZero())
	it, _ := l.Item(1)
	assert.Equal(t, uint32(3), it.Stock)
	assert.Empty(t, events)
}

func TestPurchaseFailedLedgerWriteKeepsBuyerFunds(t *testing.T) {
	ctx := context.Background()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	accounts := repos.NewAccountRepo(db)
	l, err := ledger.New(ctx, owner, ledger.WithStore(repos.NewLedgerRepo(db)), ledger.WithWallet(accounts))
	require.NoError(t, err)
	core, logs := observer.New(zap.InfoLevel)
	svc := services.NewMarketService(l, accounts, zap.New(core), nil)

	require.NoError(t, l.List(ctx, owner, domain.Item{ID: 1, Cost: amt(30)}))
	require.NoError(t, accounts.Credit(ctx, "0xbuyer", amt(50)))

	// Occupy the buyer's next order slot behind the ledger's back so the
	// order insert fails after the debit has run.
	_, err = db.Exec(`
		INSERT INTO orders(buyer, seq, time_ns, id, name, category, image, cost, rating, stock)
		VALUES('0xbuyer', 1, 1, 1, '', '', '', '30', 0, 0)
	`)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, "0xbuyer", 1, amt(30))
	require.Error(t, err)
	assert.False(t, ledger.IsClientError(err))
	assert.Equal(t, 1, logs.FilterMessage("purchase failed").Len())

	funds, err := accounts.Funds(ctx, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, "50", funds.String())
	assert.Zero(t, l.OrderCount("0xbuyer"))
	assert.True(t, l.Balance().IsZero())

	_, err = db.Exec(`DELETE FROM orders`)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, "0xbuyer", 1, amt(30))
	require.NoError(t, err)
	funds, _ = accounts.Funds(ctx, "0xbuyer")
	assert.Equal(t, "20", funds.String())
}

func TestPurchaseTenEtherItems(t *testing.T) {
	ctx := context.Background()
	svc, l, book, _ := newMarket(t)
	ether := amt(1_000_000_000_000_000_000)
	require.NoError(t, l.List(ctx, owner, domain.Item{ID: 1, Cost: ether}))

	total := domain.Amount{}
	for i := 0; i < 10; i++ {
		total = total.Add(ether)
	}
	require.NoError(t, book.Credit(ctx, "0xwhale", total))

	for i := 0; i < 10; i++ {
		_, err := svc.Purchase(ctx, "0xwhale", 1, ether)
		require.NoError(t, err, "purchase %d", i+1)
	}
	assert.Equal(t, "10000000000000000000", l.Balance().String())
	funds, _ := book.Funds(ctx, "0xwhale")
	assert.True(t, funds.IsZero())
}
