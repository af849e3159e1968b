// Package memory provides an in-memory implementation of storage.Store,
// suitable for tests and ephemeral sessions.
package memory

import (
	"sort"
	"sync"

	"github.com/mailvault/client-go/storage"
)

// Store is a thread-safe in-memory storage.Store. Writes are buffered per
// transaction and applied atomically on Wait.
type Store struct {
	mu     sync.RWMutex
	stores map[string]map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store with the given object stores.
func New(objectStores ...string) *Store {
	s := &Store{stores: make(map[string]map[string][]byte, len(objectStores))}
	for _, name := range objectStores {
		s.stores[name] = map[string][]byte{}
	}
	return s
}

func (s *Store) OpenTransaction(writable bool) (storage.Transaction, error) {
	return &transaction{
		store:    s,
		writable: writable,
		writes:   map[string]map[string]pendingWrite{},
	}, nil
}

func (s *Store) Close() error { return nil }

type pendingWrite struct {
	value   []byte
	deleted bool
}

type transaction struct {
	store    *Store
	writable bool
	writes   map[string]map[string]pendingWrite
	done     bool
}

func (t *transaction) Get(objectStore, key string) ([]byte, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}
	if pending, ok := t.writes[objectStore][key]; ok {
		if pending.deleted {
			return nil, storage.ErrNotFound
		}
		return clone(pending.value), nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	data, ok := t.store.stores[objectStore]
	if !ok {
		return nil, storage.ErrUnknownStore
	}
	value, ok := data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(value), nil
}

func (t *transaction) GetAll(objectStore string) ([]storage.Record, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}
	t.store.mu.RLock()
	data, ok := t.store.stores[objectStore]
	if !ok {
		t.store.mu.RUnlock()
		return nil, storage.ErrUnknownStore
	}
	merged := make(map[string][]byte, len(data))
	for k, v := range data {
		merged[k] = v
	}
	t.store.mu.RUnlock()

	for k, pending := range t.writes[objectStore] {
		if pending.deleted {
			delete(merged, k)
		} else {
			merged[k] = pending.value
		}
	}

	records := make([]storage.Record, 0, len(merged))
	for k, v := range merged {
		records = append(records, storage.Record{Key: k, Value: clone(v)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (t *transaction) Put(objectStore, key string, value []byte) error {
	if err := t.writeCheck(objectStore); err != nil {
		return err
	}
	t.pending(objectStore)[key] = pendingWrite{value: clone(value)}
	return nil
}

func (t *transaction) Delete(objectStore, key string) error {
	if err := t.writeCheck(objectStore); err != nil {
		return err
	}
	t.pending(objectStore)[key] = pendingWrite{deleted: true}
	return nil
}

func (t *transaction) writeCheck(objectStore string) error {
	if t.done {
		return storage.ErrTxDone
	}
	if !t.writable {
		return storage.ErrReadOnly
	}
	t.store.mu.RLock()
	_, ok := t.store.stores[objectStore]
	t.store.mu.RUnlock()
	if !ok {
		return storage.ErrUnknownStore
	}
	return nil
}

func (t *transaction) pending(objectStore string) map[string]pendingWrite {
	m, ok := t.writes[objectStore]
	if !ok {
		m = map[string]pendingWrite{}
		t.writes[objectStore] = m
	}
	return m
}

func (t *transaction) Wait() error {
	if t.done {
		return storage.ErrTxDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for storeName, writes := range t.writes {
		data := t.store.stores[storeName]
		for k, pending := range writes {
			if pending.deleted {
				delete(data, k)
			} else {
				data[k] = pending.value
			}
		}
	}
	return nil
}

func (t *transaction) Abort() {
	t.done = true
	t.writes = nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
