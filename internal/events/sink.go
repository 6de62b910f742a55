// Package events forwards committed ledger notifications to Kafka.
package events

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
	"marketplace/internal/telemetry"
)

// Message is the JSON payload written for each ledger event.
type Message struct {
	Project string         `json:"project"`
	Owner   domain.Address `json:"owner"`
	ledger.Event
}

// Sink is a ledger.Observer that publishes events from a background goroutine
// so ledger callers never wait on the broker. The ledger hands events over in
// Seq order and one goroutine drains them, keyed by the ledger owner, so they
// reach a single partition in that order. Dropped events leave gaps in Seq.
type Sink struct {
	pub     Publisher
	log     *zap.Logger
	metrics *telemetry.Metrics
	project string
	owner   domain.Address
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	ch     chan ledger.Event
	done   chan struct{}
}

func NewSink(pub Publisher, project string, owner domain.Address, buffer int, log *zap.Logger, metrics *telemetry.Metrics) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Sink{
		pub:     pub,
		log:     log,
		metrics: metrics,
		project: project,
		owner:   owner,
		timeout: 10 * time.Second,
		ch:      make(chan ledger.Event, buffer),
		done:    make(chan struct{}),
	}
}

// Start launches the publishing loop. It returns when ctx is cancelled or the
// sink is closed and drained.
func (s *Sink) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.ch:
				if !ok {
					return
				}
				s.publish(ctx, ev)
			}
		}
	}()
}

// Observe queues ev. When the buffer is full the event is dropped and logged.
func (s *Sink) Observe(ev ledger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.log.Warn("event dropped, publish buffer full",
			zap.Uint64("seq", ev.Seq),
			zap.String("kind", string(ev.Kind)),
		)
		s.metrics.EventsPublished.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", "dropped")))
	}
}

// Close stops accepting events, waits for queued ones to be published and
// closes the publisher. Start must have been called.
func (s *Sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()

	<-s.done
	return s.pub.Close()
}

func (s *Sink) publish(ctx context.Context, ev ledger.Event) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := Message{Project: s.project, Owner: s.owner, Event: ev}
	if err := s.pub.Publish(ctx, s.owner.String(), msg); err != nil {
		s.log.Error("event publish failed",
			zap.Uint64("seq", ev.Seq),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
		s.metrics.EventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "failed")))
		return
	}
	s.log.Debug("event published",
		zap.Uint64("seq", ev.Seq),
		zap.String("kind", string(ev.Kind)),
	)
	s.metrics.EventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
}
