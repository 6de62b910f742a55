package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
)

type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	values [][]byte
	fail   error
	closed bool
}

func (f *fakePublisher) Publish(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	f.values = append(f.values, data)
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestSinkPublishesLedgerEventsInOrder(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	sink := NewSink(pub, "web3-marketplace", "0xowner", 16, nil, nil)
	sink.Start(ctx)

	l, err := ledger.New(ctx, "0xowner")
	require.NoError(t, err)
	cancel := l.Subscribe(sink.Observe)
	defer cancel()

	require.NoError(t, l.List(ctx, "0xowner", domain.Item{ID: 1, Name: "Shoes", Cost: domain.NewAmount(10), Stock: 3}))
	_, err = l.Buy(ctx, "0xbuyer", 1, domain.NewAmount(10))
	require.NoError(t, err)

	require.NoError(t, sink.Close())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.True(t, pub.closed)
	require.Len(t, pub.values, 2)
	assert.Equal(t, []string{"0xowner", "0xowner"}, pub.keys)

	var first, second Message
	require.NoError(t, json.Unmarshal(pub.values[0], &first))
	require.NoError(t, json.Unmarshal(pub.values[1], &second))
	assert.Equal(t, ledger.EventList, first.Kind)
	assert.Equal(t, "web3-marketplace", first.Project)
	assert.Equal(t, ledger.EventBuy, second.Kind)
	assert.Equal(t, domain.Address("0xbuyer"), second.Buyer)
	assert.Equal(t, "10", second.Amount.String())
	assert.Less(t, first.Seq, second.Seq)
}

func TestSinkKeepsSeqOrderUnderConcurrentBuys(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	sink := NewSink(pub, "p", "0xowner", 512, nil, nil)
	sink.Start(ctx)

	l, err := ledger.New(ctx, "0xowner")
	require.NoError(t, err)
	l.Subscribe(sink.Observe)
	require.NoError(t, l.List(ctx, "0xowner", domain.Item{ID: 1, Cost: domain.NewAmount(3)}))

	var wg sync.WaitGroup
	for b := 0; b < 8; b++ {
		buyer := domain.Address(fmt.Sprintf("0xb%d", b))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := l.Buy(ctx, buyer, 1, domain.NewAmount(3))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.values, 201)
	var last uint64
	for _, raw := range pub.values {
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		assert.Equal(t, last+1, m.Seq)
		last = m.Seq
	}
}

func TestSinkLogsPublishFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	pub := &fakePublisher{fail: errors.New("broker down")}
	sink := NewSink(pub, "p", "0xowner", 4, zap.New(core), nil)
	sink.Start(context.Background())

	sink.Observe(ledger.Event{Seq: 1, Kind: ledger.EventWithdraw})
	require.NoError(t, sink.Close())

	entries := logs.FilterMessage("event publish failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].ContextMap()["seq"])
}

func TestSinkIgnoresEventsAfterClose(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "p", "0xowner", 1, nil, nil)
	sink.Start(context.Background())
	require.NoError(t, sink.Close())

	assert.NotPanics(t, func() { sink.Observe(ledger.Event{Seq: 9}) })
	assert.Empty(t, pub.values)
}

func TestHeaderCarrier(t *testing.T) {
	c := &headerCarrier{headers: new([]kafka.Header)}
	c.Set("traceparent", "00-abc")
	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
