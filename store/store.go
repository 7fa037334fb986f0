// Package store defines the ordered key-value surface the engine persists
// documents through. Implementations live in the bbolt, badger and memory
// subpackages.
package store

import (
	"errors"

	"go.uber.org/zap"
)

// ErrReadOnly is returned when a write is attempted through a read-only transaction.
var ErrReadOnly = errors.New("store: transaction is read-only")

type Store interface {
	Begin(update bool) (Tx, error)
	Close() error
}

// UpdateTx only supports update and delete operations
type UpdateTx interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Rollback() error
}

type Tx interface {
	UpdateTx
	// Get returns a nil value, and no error, when the key does not exist.
	Get(key []byte) ([]byte, error)
	Cursor(forward bool) (Cursor, error)
}

// Cursor walks keys in byte order. Seek positions a forward cursor on the
// first key >= key and a reverse cursor on the last key <= key.
type Cursor interface {
	Seek(key []byte) error
	Next()
	Valid() bool
	Item() (Item, error)
	Close() error
}

// Item key and value are only valid until the owning transaction ends.
type Item struct {
	Key, Value []byte
}

// OpenFunc opens a store rooted at dir. logger receives backend diagnostics.
type OpenFunc func(dir string, logger *zap.Logger) (Store, error)
