// Package storage provides the transactional key-value storage abstraction
// backing the encrypted search index.
package storage

import "errors"

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownStore is returned when a transaction touches an object store
	// that was not declared at open time.
	ErrUnknownStore = errors.New("unknown object store")
	// ErrTxDone is returned when a transaction is used after Wait or Abort.
	ErrTxDone = errors.New("transaction already finished")
	// ErrReadOnly is returned when a read-only transaction attempts a write.
	ErrReadOnly = errors.New("transaction is read-only")
)

// Record is one key-value pair of an object store.
type Record struct {
	Key   string
	Value []byte
}

// Store is a transactional key-value database partitioned into named object
// stores. All object stores are declared when the store is created.
type Store interface {
	// OpenTransaction starts a transaction. Writes made through it become
	// visible to other transactions only after Wait returns nil; Abort
	// discards them. Either Wait or Abort must be called exactly once.
	OpenTransaction(writable bool) (Transaction, error)

	Close() error
}

// Transaction scopes a set of reads and writes that commit or roll back as a
// unit. Implementations need not support concurrent use of one transaction.
type Transaction interface {
	Get(objectStore, key string) ([]byte, error)
	GetAll(objectStore string) ([]Record, error)
	Put(objectStore, key string, value []byte) error
	Delete(objectStore, key string) error

	// Wait commits the transaction and blocks until the writes are durable.
	Wait() error

	// Abort discards all writes. Safe to call after Wait as a no-op, which
	// makes `defer tx.Abort()` the standard usage.
	Abort()
}
