package mailvault

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/client-go/internal/logging"
)

type recordingSessionKeyService struct {
	mu      sync.Mutex
	batches [][]InstanceSessionKeyUpdate
	err     error
}

func (s *recordingSessionKeyService) UpdateInstanceSessionKeys(_ context.Context, updates []InstanceSessionKeyUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, updates)
	return nil
}

func (s *recordingSessionKeyService) recorded() [][]InstanceSessionKeyUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]InstanceSessionKeyUpdate(nil), s.batches...)
}

func TestUpdateQueueDrains(t *testing.T) {
	svc := &recordingSessionKeyService{}
	q := NewSessionKeyUpdateQueue(svc, logging.Discard())
	defer q.Close()

	require.NoError(t, q.Enqueue([]InstanceSessionKeyUpdate{
		{InstanceList: "l1", InstanceID: "e1"},
		{InstanceList: "l1", InstanceID: "e2"},
	}))
	require.NoError(t, q.Enqueue([]InstanceSessionKeyUpdate{
		{InstanceList: "l2", InstanceID: "e3"},
	}))
	q.Flush()

	batches := svc.recorded()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
}

func TestUpdateQueueEmptyBatchIgnored(t *testing.T) {
	svc := &recordingSessionKeyService{}
	q := NewSessionKeyUpdateQueue(svc, logging.Discard())
	defer q.Close()

	require.NoError(t, q.Enqueue(nil))
	q.Flush()
	assert.Empty(t, svc.recorded())
}

func TestUpdateQueueServiceErrorDoesNotStopWorker(t *testing.T) {
	svc := &recordingSessionKeyService{err: errors.New("boom")}
	q := NewSessionKeyUpdateQueue(svc, logging.Discard())
	defer q.Close()

	require.NoError(t, q.Enqueue([]InstanceSessionKeyUpdate{{InstanceID: "e1"}}))
	q.Flush()

	svc.mu.Lock()
	svc.err = nil
	svc.mu.Unlock()

	require.NoError(t, q.Enqueue([]InstanceSessionKeyUpdate{{InstanceID: "e2"}}))
	q.Flush()

	batches := svc.recorded()
	require.Len(t, batches, 1)
	assert.Equal(t, "e2", batches[0][0].InstanceID)
}

func TestUpdateQueueEnqueueAfterClose(t *testing.T) {
	svc := &recordingSessionKeyService{}
	q := NewSessionKeyUpdateQueue(svc, logging.Discard())
	q.Close()

	// must not panic or block
	assert.ErrorIs(t, q.Enqueue([]InstanceSessionKeyUpdate{{InstanceID: "late"}}), ErrQueueClosed)
	q.Flush()
	q.Close()
	assert.Empty(t, svc.recorded())
}
