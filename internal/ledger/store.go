package ledger

import (
	"context"
	"sync"
	"time"

	"marketplace/internal/domain"
)

// Snapshot is the persisted state a Ledger is rebuilt from.
type Snapshot struct {
	Owner     domain.Address
	Items     map[uint64]domain.Item
	Orders    map[domain.Address][]domain.Order
	Balance   domain.Amount
	Withdrawn domain.Amount
	LastTime  time.Time
}

// TransferFunc moves funds between the ledger and a wallet. Stores call it
// inside the transaction that records the change, with a ctx that carries
// that transaction, and roll back when it fails.
type TransferFunc func(ctx context.Context) error

// Store persists ledger mutations. Every method must be all-or-nothing.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	InitOwner(ctx context.Context, owner domain.Address) error
	PutItem(ctx context.Context, item domain.Item) error
	// AppendOrder records order number seq for buyer, the new held balance and
	// the catalog item as it stands after the purchase. A non-nil pay collects
	// the payment within the same transaction.
	AppendOrder(ctx context.Context, buyer domain.Address, seq int, order domain.Order, balance domain.Amount, item domain.Item, pay TransferFunc) error
	Withdraw(ctx context.Context, w domain.Withdrawal, transfer TransferFunc) error
}

// Wallet is the value-transfer primitive used to pay the owner out.
type Wallet interface {
	Transfer(ctx context.Context, to domain.Address, amount domain.Amount) error
}

// MemoryStore keeps ledger state in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: Snapshot{
		Items:  make(map[uint64]domain.Item),
		Orders: make(map[domain.Address][]domain.Order),
	}}
}

func (s *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshot(s.snap), nil
}

func (s *MemoryStore) InitOwner(_ context.Context, owner domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Owner == "" {
		s.snap.Owner = owner
	}
	return nil
}

func (s *MemoryStore) PutItem(_ context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Items[item.ID] = item
	return nil
}

func (s *MemoryStore) AppendOrder(ctx context.Context, buyer domain.Address, _ int, order domain.Order, balance domain.Amount, item domain.Item, pay TransferFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pay != nil {
		if err := pay(ctx); err != nil {
			return err
		}
	}
	s.snap.Orders[buyer] = append(s.snap.Orders[buyer], order)
	s.snap.Balance = balance
	s.snap.Items[item.ID] = item
	if order.Time.After(s.snap.LastTime) {
		s.snap.LastTime = order.Time
	}
	return nil
}

func (s *MemoryStore) Withdraw(ctx context.Context, w domain.Withdrawal, transfer TransferFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := transfer(ctx); err != nil {
		return err
	}
	s.snap.Balance = s.snap.Balance.Sub(w.Amount)
	s.snap.Withdrawn = s.snap.Withdrawn.Add(w.Amount)
	return nil
}

func cloneSnapshot(in Snapshot) Snapshot {
	out := in
	out.Items = make(map[uint64]domain.Item, len(in.Items))
	for k, v := range in.Items {
		out.Items[k] = v
	}
	out.Orders = make(map[domain.Address][]domain.Order, len(in.Orders))
	for k, v := range in.Orders {
		out.Orders[k] = append([]domain.Order(nil), v...)
	}
	return out
}
