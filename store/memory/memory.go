// Package memory implements store.Store over an in-memory red-black tree.
// Nothing is persisted; the directory passed to Open is ignored.
package memory

import (
	"errors"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/ostafen/sophia/store"
	"go.uber.org/zap"
)

var errTxClosed = errors.New("memory: transaction already closed")

type memStore struct {
	sync.RWMutex
	tree *redblacktree.Tree
}

// Open returns an empty in-memory store.
func Open(_ string, _ *zap.Logger) (store.Store, error) {
	return &memStore{tree: redblacktree.NewWithStringComparator()}, nil
}

// Begin holds the store lock until the transaction ends: one writer or many readers.
func (s *memStore) Begin(update bool) (store.Tx, error) {
	if update {
		s.Lock()
	} else {
		s.RLock()
	}
	return &memTx{store: s, update: update}, nil
}

func (s *memStore) Close() error {
	s.Lock()
	defer s.Unlock()

	s.tree.Clear()
	return nil
}

type undoEntry struct {
	key     string
	value   []byte
	existed bool
}

type memTx struct {
	store  *memStore
	update bool
	closed bool
	undo   []undoEntry
}

func (tx *memTx) remember(key string) {
	old, found := tx.store.tree.Get(key)
	entry := undoEntry{key: key, existed: found}
	if found {
		entry.value = old.([]byte)
	}
	tx.undo = append(tx.undo, entry)
}

func (tx *memTx) Set(key, value []byte) error {
	if tx.closed {
		return errTxClosed
	}
	if !tx.update {
		return store.ErrReadOnly
	}
	tx.remember(string(key))
	tx.store.tree.Put(string(key), append([]byte(nil), value...))
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if tx.closed {
		return errTxClosed
	}
	if !tx.update {
		return store.ErrReadOnly
	}
	tx.remember(string(key))
	tx.store.tree.Remove(string(key))
	return nil
}

func (tx *memTx) Get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	v, found := tx.store.tree.Get(string(key))
	if !found {
		return nil, nil
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (tx *memTx) Cursor(forward bool) (store.Cursor, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	return &memCursor{tree: tx.store.tree, forward: forward}, nil
}

func (tx *memTx) release() {
	tx.closed = true
	if tx.update {
		tx.store.Unlock()
	} else {
		tx.store.RUnlock()
	}
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return errTxClosed
	}
	tx.undo = nil
	tx.release()
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.closed {
		return nil
	}

	for i := len(tx.undo) - 1; i >= 0; i-- {
		e := tx.undo[i]
		if e.existed {
			tx.store.tree.Put(e.key, e.value)
		} else {
			tx.store.tree.Remove(e.key)
		}
	}
	tx.undo = nil
	tx.release()
	return nil
}

type memCursor struct {
	tree    *redblacktree.Tree
	forward bool

	it    redblacktree.Iterator
	valid bool
}

func (c *memCursor) Seek(key []byte) error {
	var (
		node  *redblacktree.Node
		found bool
	)
	if c.forward {
		node, found = c.tree.Ceiling(string(key))
	} else {
		node, found = c.tree.Floor(string(key))
	}

	c.valid = found
	if found {
		c.it = c.tree.IteratorAt(node)
	}
	return nil
}

func (c *memCursor) Next() {
	if !c.valid {
		return
	}
	if c.forward {
		c.valid = c.it.Next()
	} else {
		c.valid = c.it.Prev()
	}
}

func (c *memCursor) Valid() bool {
	return c.valid
}

func (c *memCursor) Item() (store.Item, error) {
	return store.Item{
		Key:   []byte(c.it.Key().(string)),
		Value: append([]byte(nil), c.it.Value().([]byte)...),
	}, nil
}

func (c *memCursor) Close() error {
	c.valid = false
	return nil
}
