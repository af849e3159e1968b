package mailvault

import (
	"context"
	"sync"
	"time"

	"github.com/mailvault/client-go/internal/logging"
)

const updateQueueCapacity = 64

type updateQueueItem struct {
	updates []InstanceSessionKeyUpdate
	ack     chan struct{} // flush barrier, nil for regular items
}

// SessionKeyUpdateQueue posts re-wrapped session keys back to the server in
// the background. Posting is best effort: the mail is already readable when
// an update is enqueued, so a failed or dropped write-back only means the
// next reader resolves the bucket key again.
type SessionKeyUpdateQueue struct {
	service SessionKeyService
	log     logging.Logger

	mu     sync.Mutex
	ch     chan updateQueueItem
	closed bool
	wg     sync.WaitGroup
}

// NewSessionKeyUpdateQueue starts the background worker draining into
// service.
func NewSessionKeyUpdateQueue(service SessionKeyService, log logging.Logger) *SessionKeyUpdateQueue {
	q := &SessionKeyUpdateQueue{
		service: service,
		log:     log,
		ch:      make(chan updateQueueItem, updateQueueCapacity),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *SessionKeyUpdateQueue) run() {
	defer q.wg.Done()
	for item := range q.ch {
		if item.ack != nil {
			close(item.ack)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := q.service.UpdateInstanceSessionKeys(ctx, item.updates); err != nil {
			q.log.Warn("session key write-back failed", "updates", len(item.updates), "error", err)
		}
		cancel()
	}
}

// Enqueue schedules a batch of session key updates without blocking. A full
// queue drops the batch; after Close, ErrQueueClosed is returned.
func (q *SessionKeyUpdateQueue) Enqueue(updates []InstanceSessionKeyUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- updateQueueItem{updates: updates}:
	default:
		q.log.Warn("session key update queue full, dropping batch", "updates", len(updates))
	}
	return nil
}

// Flush blocks until every batch enqueued before the call has been handed to
// the service. Intended for tests and shutdown.
func (q *SessionKeyUpdateQueue) Flush() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	ack := make(chan struct{})
	q.ch <- updateQueueItem{ack: ack}
	q.mu.Unlock()
	<-ack
}

// Close stops the worker after draining pending batches.
func (q *SessionKeyUpdateQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}
