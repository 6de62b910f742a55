// Package ledger holds the marketplace state machine: the owner's catalog,
// every buyer's order history and the funds collected from purchases.
//
// All mutations run inside one critical section and are persisted through a
// Store before memory is touched, so a failed call leaves no trace.
package ledger

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"marketplace/internal/domain"
	"marketplace/internal/telemetry"
)

const DefaultProjectName = "web3-marketplace"

type Ledger struct {
	mu        sync.RWMutex
	owner     domain.Address
	items     map[uint64]domain.Item
	orders    map[domain.Address][]domain.Order
	balance   domain.Amount
	withdrawn domain.Amount
	lastTime  time.Time
	seq       uint64

	project string
	store   Store
	wallet  Wallet
	clock   func() time.Time
	newID   func() string
	log     *zap.Logger
	metrics *telemetry.Metrics
	dup     DuplicatePolicy
	stock   StockPolicy

	// emitMu is taken before mu is released so observers see events in Seq order.
	emitMu    sync.Mutex
	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithStore(s Store) Option { return func(l *Ledger) { l.store = s } }

func WithWallet(w Wallet) Option { return func(l *Ledger) { l.wallet = w } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.clock = now } }

func WithLogger(log *zap.Logger) Option { return func(l *Ledger) { l.log = log } }

func WithDuplicatePolicy(p DuplicatePolicy) Option { return func(l *Ledger) { l.dup = p } }

func WithStockPolicy(p StockPolicy) Option { return func(l *Ledger) { l.stock = p } }

func WithProjectName(name string) Option { return func(l *Ledger) { l.project = name } }

func WithMetrics(m *telemetry.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

// New creates a Ledger owned by owner and restores any state the store holds.
func New(ctx context.Context, owner domain.Address, opts ...Option) (*Ledger, error) {
	owner = domain.NewAddress(string(owner))
	if owner == "" {
		return nil, ErrInvalidAddress
	}
	l := &Ledger{
		owner:     owner,
		project:   DefaultProjectName,
		clock:     time.Now,
		newID:     uuid.NewString,
		log:       zap.NewNop(),
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	if l.metrics == nil {
		l.metrics = telemetry.Noop()
	}

	if err := l.store.InitOwner(ctx, owner); err != nil {
		return nil, fmt.Errorf("ledger: init owner: %w", err)
	}
	snap, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load: %w", err)
	}
	if snap.Owner != owner {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrOwnerMismatch, snap.Owner, owner)
	}

	l.items = snap.Items
	l.orders = snap.Orders
	if l.items == nil {
		l.items = make(map[uint64]domain.Item)
	}
	if l.orders == nil {
		l.orders = make(map[domain.Address][]domain.Order)
	}
	l.balance = snap.Balance
	l.withdrawn = snap.Withdrawn
	l.lastTime = snap.LastTime

	l.log.Info("ledger ready",
		zap.String("owner", owner.String()),
		zap.Int("items", len(l.items)),
		zap.Int("buyers", len(l.orders)),
		zap.Stringer("balance", l.balance),
		zap.String("duplicate_policy", l.dup.String()),
		zap.String("stock_policy", l.stock.String()),
	)
	return l, nil
}

// List adds item to the catalog, or replaces the entry with the same id.
func (l *Ledger) List(ctx context.Context, caller domain.Address, item domain.Item) error {
	caller = domain.NewAddress(string(caller))

	l.mu.Lock()
	if caller != l.owner {
		l.mu.Unlock()
		return ErrUnauthorized
	}
	if err := validateItem(item); err != nil {
		l.mu.Unlock()
		return err
	}
	if _, exists := l.items[item.ID]; exists && l.dup == DuplicateReject {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDuplicateItem, item.ID)
	}
	if err := l.store.PutItem(ctx, item); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("ledger: save item: %w", err)
	}
	l.items[item.ID] = item
	ev := l.nextEvent(EventList)
	ev.ItemID = item.ID
	l.unlockAndEmit(ev)

	l.log.Info("item listed", zap.Uint64("item_id", item.ID), zap.Stringer("cost", item.Cost))
	l.metrics.ItemsListed.Add(ctx, 1)
	return nil
}

// Buy settles a purchase of item id by buyer. payment must equal the item's cost.
func (l *Ledger) Buy(ctx context.Context, buyer domain.Address, id uint64, payment domain.Amount) (domain.Order, error) {
	return l.BuyWith(ctx, buyer, id, payment, nil)
}

// BuyWith is Buy with collect run inside the store transaction that records
// the order, once every ledger check has passed. When collect fails nothing
// is recorded and its error is returned as is.
func (l *Ledger) BuyWith(ctx context.Context, buyer domain.Address, id uint64, payment domain.Amount, collect TransferFunc) (domain.Order, error) {
	buyer = domain.NewAddress(string(buyer))
	if buyer == "" {
		return domain.Order{}, ErrInvalidAddress
	}

	l.mu.Lock()
	item, ok := l.items[id]
	if !ok {
		l.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if !payment.Equal(item.Cost) {
		l.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: sent %s, cost %s", ErrIncorrectPayment, payment, item.Cost)
	}
	if l.stock == StockEnforce && item.Stock == 0 {
		l.mu.Unlock()
		return domain.Order{}, fmt.Errorf("%w: %d", ErrOutOfStock, id)
	}

	order := domain.Order{Time: l.now(), Item: item}
	after := item
	if l.stock != StockIgnore && after.Stock > 0 {
		after.Stock--
	}
	seq := len(l.orders[buyer]) + 1
	balance := l.balance.Add(payment)

	var collectErr error
	var pay TransferFunc
	if collect != nil {
		pay = func(ctx context.Context) error {
			collectErr = collect(ctx)
			return collectErr
		}
	}
	if err := l.store.AppendOrder(ctx, buyer, seq, order, balance, after, pay); err != nil {
		l.mu.Unlock()
		if collectErr != nil {
			l.log.Info("payment declined",
				zap.String("buyer", buyer.String()),
				zap.Uint64("item_id", id),
				zap.Error(collectErr),
			)
			return domain.Order{}, collectErr
		}
		return domain.Order{}, fmt.Errorf("ledger: record order: %w", err)
	}
	l.orders[buyer] = append(l.orders[buyer], order)
	l.items[id] = after
	l.balance = balance
	l.lastTime = order.Time
	ev := l.nextEvent(EventBuy)
	ev.ItemID = id
	ev.Buyer = buyer
	ev.Amount = payment
	l.unlockAndEmit(ev)

	l.log.Info("item bought",
		zap.String("buyer", buyer.String()),
		zap.Uint64("item_id", id),
		zap.Int("order", seq),
		zap.Stringer("balance", balance),
	)
	l.metrics.RevenueAtomic.Add(ctx, payment.Float64())
	return order, nil
}

// Withdraw pays the whole held balance to the owner. A zero balance succeeds
// without touching the wallet.
func (l *Ledger) Withdraw(ctx context.Context, caller domain.Address) (domain.Withdrawal, error) {
	caller = domain.NewAddress(string(caller))

	l.mu.Lock()
	if caller != l.owner {
		l.mu.Unlock()
		return domain.Withdrawal{}, ErrUnauthorized
	}
	amount := l.balance
	w := domain.Withdrawal{To: l.owner, Amount: amount, Time: l.now()}
	if amount.IsZero() {
		l.mu.Unlock()
		return w, nil
	}
	if l.wallet == nil {
		l.mu.Unlock()
		return domain.Withdrawal{}, fmt.Errorf("%w: %w", ErrTransferFailed, ErrNoWallet)
	}
	w.ID = l.newID()

	var transferErr error
	err := l.store.Withdraw(ctx, w, func(ctx context.Context) error {
		transferErr = l.wallet.Transfer(ctx, l.owner, amount)
		return transferErr
	})
	if err != nil {
		l.mu.Unlock()
		if transferErr != nil {
			l.log.Warn("withdraw transfer failed", zap.Stringer("amount", amount), zap.Error(transferErr))
			l.metrics.Withdrawals.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "failed")))
			return domain.Withdrawal{}, fmt.Errorf("%w: %w", ErrTransferFailed, transferErr)
		}
		return domain.Withdrawal{}, fmt.Errorf("ledger: record withdrawal: %w", err)
	}
	l.balance = domain.Amount{}
	l.withdrawn = l.withdrawn.Add(amount)
	ev := l.nextEvent(EventWithdraw)
	ev.Buyer = l.owner
	ev.Amount = amount
	l.unlockAndEmit(ev)

	l.log.Info("funds withdrawn", zap.String("withdrawal_id", w.ID), zap.Stringer("amount", amount))
	l.metrics.Withdrawals.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	return w, nil
}

// Item returns the catalog entry for id.
func (l *Ledger) Item(id uint64) (domain.Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	item, ok := l.items[id]
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return item, nil
}

// Items returns the catalog ordered by id.
func (l *Ledger) Items() []domain.Item {
	l.mu.RLock()
	out := make([]domain.Item, 0, len(l.items))
	for _, it := range l.items {
		out = append(out, it)
	}
	l.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Item) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (l *Ledger) OrderCount(buyer domain.Address) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders[domain.NewAddress(string(buyer))])
}

// Order returns buyer's order number index, counting from 1.
func (l *Ledger) Order(buyer domain.Address, index int) (domain.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	orders := l.orders[domain.NewAddress(string(buyer))]
	if index < 1 || index > len(orders) {
		return domain.Order{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, index, len(orders))
	}
	return orders[index-1], nil
}

func (l *Ledger) Orders(buyer domain.Address) []domain.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.orders[domain.NewAddress(string(buyer))])
}

func (l *Ledger) Balance() domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// Withdrawn is the total paid out to the owner so far.
func (l *Ledger) Withdrawn() domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.withdrawn
}

func (l *Ledger) Owner() domain.Address { return l.owner }

func (l *Ledger) ProjectName() string { return l.project }

// now must be called with mu held. Order times never go backwards and are
// always after the Unix epoch.
func (l *Ledger) now() time.Time {
	t := l.clock().UTC()
	if t.Before(l.lastTime) {
		t = l.lastTime
	}
	if !t.After(time.Unix(0, 0)) {
		t = time.Unix(0, 1).UTC()
	}
	return t
}

func (l *Ledger) nextEvent(kind EventKind) Event {
	l.seq++
	return Event{Seq: l.seq, Kind: kind, Time: l.now()}
}

func validateItem(item domain.Item) error {
	switch {
	case item.ID == 0 || item.ID > math.MaxInt64:
		return fmt.Errorf("%w: id must be between 1 and %d", ErrInvalidItem, int64(math.MaxInt64))
	case item.Cost.Sign() <= 0:
		return fmt.Errorf("%w: cost must be positive", ErrInvalidItem)
	}
	return nil
}
