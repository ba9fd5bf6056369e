// Package publish fans snapshots out to subscribers without letting a slow
// subscriber stall the producer.
package publish

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/Dicklesworthstone/sysmon/internal/logger"
	"github.com/Dicklesworthstone/sysmon/internal/model"
)

// MaxPending bounds each subscriber's undelivered queue.
const MaxPending = 256

var ErrClosed = errors.New("broker closed")

// Handler is invoked once per snapshot, in publication order, on a
// goroutine owned by its subscription.
type Handler func(model.Snapshot)

// Broker is a poll Target. It stays alive until Close.
type Broker struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	latest *model.Snapshot
	closed bool
	done   chan struct{}
}

func NewBroker(l *slog.Logger) *Broker {
	return &Broker{
		logger: logger.OrDiscard(l),
		subs:   make(map[uint64]*subscription),
		done:   make(chan struct{}),
	}
}

func (b *Broker) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// Publish records s as the latest snapshot and queues it for every
// subscriber. It never waits on a handler and is a no-op after Close.
func (b *Broker) Publish(s model.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = &s
	for _, sub := range b.subs {
		sub.enqueue(s)
	}
}

// Latest returns the most recent snapshot, if any.
func (b *Broker) Latest() (model.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return model.Snapshot{}, false
	}
	return *b.latest, true
}

// Subscribe registers h. The returned func unsubscribes; it is idempotent.
// Once it returns, queued snapshots are discarded and h is not running and
// will not be called again. It waits for an in-flight call to h, so it must
// not be called from inside h.
func (b *Broker) Subscribe(h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribeLocked(h)
}

// SubscribeLatest is Subscribe that also returns the snapshot published
// just before h was registered. h receives only later snapshots.
func (b *Broker) SubscribeLatest(h Handler) (model.Snapshot, bool, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	unsub, err := b.subscribeLocked(h)
	if err != nil || b.latest == nil {
		return model.Snapshot{}, false, unsub, err
	}
	return *b.latest, true, unsub, nil
}

func (b *Broker) subscribeLocked(h Handler) (func(), error) {
	if b.closed {
		return func() {}, ErrClosed
	}
	id := b.nextID
	b.nextID++
	sub := newSubscription(h, b.logger.With("subscriber", id))
	b.subs[id] = sub
	go sub.run()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.cancel()
		sub.wait()
	}, nil
}

// Done is closed by Close.
func (b *Broker) Done() <-chan struct{} { return b.done }

// Subscribers reports how many handlers are registered.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscription and makes Alive report false.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	subs := b.subs
	b.subs = make(map[uint64]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
}

type subscription struct {
	handler Handler
	logger  *slog.Logger

	// callMu is held for the duration of each handler call.
	callMu sync.Mutex

	mu       sync.Mutex
	queue    []model.Snapshot
	canceled bool
	dropped  int
	wake     chan struct{}

	once sync.Once
	quit chan struct{}
}

func newSubscription(h Handler, l *slog.Logger) *subscription {
	return &subscription{
		handler: h,
		logger:  l,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
}

func (s *subscription) enqueue(snap model.Snapshot) {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= MaxPending {
		s.queue = s.queue[1:]
		s.dropped++
		if s.dropped == 1 || s.dropped%MaxPending == 0 {
			s.logger.Warn("subscriber falling behind, dropping oldest snapshot", "dropped", s.dropped)
		}
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.canceled = true
		s.queue = nil
		s.mu.Unlock()
		close(s.quit)
	})
}

// wait blocks until no handler call is in flight.
func (s *subscription) wait() {
	s.callMu.Lock()
	s.callMu.Unlock()
}

func (s *subscription) run() {
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}
		for {
			snap, ok := s.next()
			if !ok {
				break
			}
			s.deliver(snap)
		}
	}
}

// next pops the head of the queue. It reports false once the queue is
// empty or the subscription was canceled.
func (s *subscription) next() (model.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled || len(s.queue) == 0 {
		return model.Snapshot{}, false
	}
	snap := s.queue[0]
	s.queue = s.queue[1:]
	return snap, true
}

func (s *subscription) deliver(snap model.Snapshot) {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	s.mu.Lock()
	canceled := s.canceled
	s.mu.Unlock()
	if canceled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber handler panicked", "panic", r)
		}
	}()
	s.handler(snap)
}
