package ledger

import (
	"time"

	"marketplace/internal/domain"
)

type EventKind string

const (
	EventList     EventKind = "list"
	EventBuy      EventKind = "buy"
	EventWithdraw EventKind = "withdraw"
)

// Event is a notification about a committed mutation. Seq is strictly
// increasing in commit order and observers receive events in Seq order.
type Event struct {
	Seq    uint64         `json:"seq"`
	Kind   EventKind      `json:"kind"`
	ItemID uint64         `json:"item_id,omitempty"`
	Buyer  domain.Address `json:"buyer,omitempty"`
	Amount domain.Amount  `json:"amount"`
	Time   time.Time      `json:"time"`
}

// Observer receives events after the mutation that produced them is committed.
// Observers run on the mutating caller's goroutine while later events wait, so
// they must return quickly and must not call back into the Ledger.
type Observer func(Event)

// Subscribe registers o and returns a function that removes it.
func (l *Ledger) Subscribe(o Observer) (cancel func()) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()

	id := l.nextObs
	l.nextObs++
	l.observers[id] = o
	return func() {
		l.obsMu.Lock()
		defer l.obsMu.Unlock()
		delete(l.observers, id)
	}
}

// unlockAndEmit releases mu and delivers e. Holding emitMu across the unlock
// keeps delivery in the order events were numbered.
func (l *Ledger) unlockAndEmit(e Event) {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	l.mu.Unlock()
	l.emit(e)
}

func (l *Ledger) emit(e Event) {
	l.obsMu.RLock()
	obs := make([]Observer, 0, len(l.observers))
	for _, o := range l.observers {
		obs = append(obs, o)
	}
	l.obsMu.RUnlock()

	for _, o := range obs {
		o(e)
	}
}
