// Package bboltstore provides a bbolt-backed implementation of
// storage.Store. Each object store maps to one bbolt bucket; Wait commits
// the underlying bbolt transaction.
package bboltstore

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/mailvault/client-go/storage"
)

// Store is a storage.Store backed by a bbolt database file.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures a bucket exists
// for every object store.
func Open(path string, objectStores ...string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range objectStores {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating object stores: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) OpenTransaction(writable bool) (storage.Transaction, error) {
	tx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("opening transaction: %w", err)
	}
	return &transaction{tx: tx, writable: writable}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type transaction struct {
	tx       *bbolt.Tx
	writable bool
	done     bool
}

func (t *transaction) bucket(objectStore string) (*bbolt.Bucket, error) {
	b := t.tx.Bucket([]byte(objectStore))
	if b == nil {
		return nil, fmt.Errorf("%s: %w", objectStore, storage.ErrUnknownStore)
	}
	return b, nil
}

func (t *transaction) Get(objectStore, key string) ([]byte, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}
	b, err := t.bucket(objectStore)
	if err != nil {
		return nil, err
	}
	value := b.Get([]byte(key))
	if value == nil {
		return nil, fmt.Errorf("%s/%s: %w", objectStore, key, storage.ErrNotFound)
	}
	return append([]byte(nil), value...), nil
}

func (t *transaction) GetAll(objectStore string) ([]storage.Record, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}
	b, err := t.bucket(objectStore)
	if err != nil {
		return nil, err
	}
	var records []storage.Record
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		records = append(records, storage.Record{
			Key:   string(k),
			Value: append([]byte(nil), v...),
		})
	}
	return records, nil
}

func (t *transaction) Put(objectStore, key string, value []byte) error {
	if t.done {
		return storage.ErrTxDone
	}
	if !t.writable {
		return storage.ErrReadOnly
	}
	b, err := t.bucket(objectStore)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), value)
}

func (t *transaction) Delete(objectStore, key string) error {
	if t.done {
		return storage.ErrTxDone
	}
	if !t.writable {
		return storage.ErrReadOnly
	}
	b, err := t.bucket(objectStore)
	if err != nil {
		return err
	}
	return b.Delete([]byte(key))
}

func (t *transaction) Wait() error {
	if t.done {
		return storage.ErrTxDone
	}
	t.done = true
	if !t.writable {
		return t.tx.Rollback()
	}
	return t.tx.Commit()
}

func (t *transaction) Abort() {
	if t.done {
		return
	}
	t.done = true
	// rollback errors have nothing actionable for the caller
	_ = t.tx.Rollback()
}
