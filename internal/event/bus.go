// Package event carries committed readings from the reading store to the
// components that react to them.
package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ReadingCommitted is emitted once per history row
type ReadingCommitted struct {
	Reading     model.ReadingHistory
	CommittedAt time.Time
}

// AfterCommit is work a transactional subscriber wants run once the
// reading transaction has committed
type AfterCommit func(ctx context.Context)

// TxSubscriber runs inside the reading transaction. An error rolls the reading back.
type TxSubscriber interface {
	OnReadingTx(ctx context.Context, tx *gorm.DB, ev ReadingCommitted) (AfterCommit, error)
}

// Subscriber receives committed readings after commit, in publish order, on
// its own goroutine. It cannot fail the ingestion.
type Subscriber interface {
	Name() string
	OnReading(ctx context.Context, ev ReadingCommitted)
}

// Bus dispatches ReadingCommitted to transactional and asynchronous subscribers
type Bus struct {
	txSubs []TxSubscriber

	mu     sync.RWMutex
	queues []*queue
	closed bool

	deferred sync.WaitGroup
	buffer   int
}

type queue struct {
	sub Subscriber
	ch  chan ReadingCommitted
	wg  sync.WaitGroup
}

// NewBus creates a bus whose asynchronous subscribers buffer up to buffer events each
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{buffer: buffer}
}

// SubscribeTx registers a subscriber run inside the reading transaction, in registration order
func (b *Bus) SubscribeTx(s TxSubscriber) {
	b.txSubs = append(b.txSubs, s)
}

// Subscribe registers an asynchronous subscriber and starts its worker
func (b *Bus) Subscribe(s Subscriber) {
	q := &queue{sub: s, ch: make(chan ReadingCommitted, b.buffer)}
	q.wg.Add(1)
	go q.run()

	b.mu.Lock()
	b.queues = append(b.queues, q)
	b.mu.Unlock()
}

// RunTx invokes the transactional subscribers and collects their after-commit work
func (b *Bus) RunTx(ctx context.Context, tx *gorm.DB, ev ReadingCommitted) ([]AfterCommit, error) {
	var afters []AfterCommit
	for _, s := range b.txSubs {
		after, err := s.OnReadingTx(ctx, tx, ev)
		if err != nil {
			return nil, err
		}
		if after != nil {
			afters = append(afters, after)
		}
	}
	return afters, nil
}

// Defer runs after-commit work in the background. The context is detached
// from the caller so request cancellation does not abort it.
func (b *Bus) Defer(ctx context.Context, afters ...AfterCommit) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range afters {
		b.deferred.Add(1)
		go func(f AfterCommit) {
			defer b.deferred.Done()
			defer recoverLog("after-commit")
			f(ctx)
		}(f)
	}
}

// Publish hands ev to every asynchronous subscriber without blocking. A
// subscriber whose buffer is full misses the event.
func (b *Bus) Publish(ev ReadingCommitted) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, q := range b.queues {
		select {
		case q.ch <- ev:
		default:
			log.Warn().
				Str("subscriber", q.sub.Name()).
				Str("reading_id", ev.Reading.ReadingID.String()).
				Msg("subscriber queue full, dropping reading event")
		}
	}
}

// Close stops accepting events and waits until queued events and deferred work are done
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q.ch)
	}
	b.mu.Unlock()

	for _, q := range b.queues {
		q.wg.Wait()
	}
	b.deferred.Wait()
}

func (q *queue) run() {
	defer q.wg.Done()
	for ev := range q.ch {
		q.deliver(ev)
	}
}

func (q *queue) deliver(ev ReadingCommitted) {
	defer recoverLog(q.sub.Name())
	q.sub.OnReading(context.Background(), ev)
}

func recoverLog(name string) {
	if r := recover(); r != nil {
		log.Error().Str("subscriber", name).Str("panic", fmt.Sprintf("%v", r)).Msg("reading subscriber panicked")
	}
}
