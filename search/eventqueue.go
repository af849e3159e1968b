// Package search implements the encrypted local search index: an event-driven
// indexer fed by entity event batches, with per-group watermarks and
// crash-safe per-batch transactions.
package search

import (
	"context"
	"errors"
	"sync"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/logging"
)

// BatchHandler processes one event batch. Called serially.
type BatchHandler func(ctx context.Context, batch mailvault.QueuedBatch) error

// EventQueue buffers entity event batches in front of a single serial
// processing loop. Historical catch-up and realtime delivery race against
// the same append-only log, so the queue deduplicates by batch id and
// requires batch ids to be strictly increasing per group; a batch replayed
// by either source is a no-op. Submission order is preserved.
//
// The queue starts paused so batches arriving during initialization are
// buffered, not dropped.
type EventQueue struct {
	handler BatchHandler
	log     logging.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []queuedEntry
	newest   map[string]string // group id -> newest accepted batch id
	paused   bool
	stopped  bool
	draining sync.WaitGroup
}

// queuedEntry remembers the dedup state the batch displaced so a failed
// batch can give its id back and be redelivered.
type queuedEntry struct {
	batch      mailvault.QueuedBatch
	prevNewest string
	hadPrev    bool
}

// NewEventQueue creates a paused queue. Call Resume once the consumer is
// ready.
func NewEventQueue(handler BatchHandler, log logging.Logger) *EventQueue {
	q := &EventQueue{
		handler: handler,
		log:     log,
		newest:  map[string]string{},
		paused:  true,
	}
	q.cond = sync.NewCond(&q.mu)
	q.draining.Add(1)
	go q.run()
	return q
}

// Add submits batches. Safe to call concurrently with the processing loop.
// A batch whose id was already accepted for its group, or which is not
// strictly newer than the group's newest accepted batch, is dropped. A batch
// that fails processing gives its id back, so a redelivery is accepted.
func (q *EventQueue) Add(batches ...mailvault.QueuedBatch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	accepted := false
	for _, b := range batches {
		newest, seen := q.newest[b.GroupID]
		if seen && !mailvault.FirstBiggerThanSecond(b.BatchID, newest) {
			q.log.Debug("dropping duplicate batch", "group", b.GroupID, "batch", b.BatchID)
			continue
		}
		q.newest[b.GroupID] = b.BatchID
		q.queue = append(q.queue, queuedEntry{batch: b, prevNewest: newest, hadPrev: seen})
		accepted = true
	}
	if accepted {
		q.cond.Signal()
	}
}

// Pause stops processing after the batch currently in flight. Buffering
// continues.
func (q *EventQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume restarts processing.
func (q *EventQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.cond.Signal()
	q.mu.Unlock()
}

// Stop shuts the processing loop down. Buffered batches are discarded.
func (q *EventQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.draining.Wait()
		return
	}
	q.stopped = true
	q.cond.Signal()
	q.mu.Unlock()
	q.draining.Wait()
}

// Len reports the number of buffered batches.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *EventQueue) run() {
	defer q.draining.Done()
	for {
		q.mu.Lock()
		for !q.stopped && (q.paused || len(q.queue) == 0) {
			q.cond.Wait()
		}
		if q.stopped {
			q.mu.Unlock()
			return
		}
		entry := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()

		batch := entry.batch
		if err := q.handler(context.Background(), batch); err != nil {
			var oos *mailvault.OutOfSyncError
			if errors.As(err, &oos) {
				q.log.Error("index out of sync, stopping event processing", "error", err)
				q.mu.Lock()
				q.stopped = true
				q.mu.Unlock()
				return
			}
			q.log.Error("batch processing failed", "group", batch.GroupID, "batch", batch.BatchID, "error", err)
			// give the id back unless a newer batch has been accepted since
			q.mu.Lock()
			if q.newest[batch.GroupID] == batch.BatchID {
				if entry.hadPrev {
					q.newest[batch.GroupID] = entry.prevNewest
				} else {
					delete(q.newest, batch.GroupID)
				}
			}
			q.mu.Unlock()
		}
	}
}
