package badger

import (
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ostafen/sophia/store"
	"go.uber.org/zap"
)

const (
	GCReclaimIntervalDefault = time.Minute * 5
	GCDiscardRatioDefault    = 0.5
)

type badgerStore struct {
	db     *badger.DB
	logger *zap.Logger
	chWg   sync.WaitGroup
	chQuit chan struct{}

	gcInterval     time.Duration
	gcDiscardRatio float64
}

func (s *badgerStore) Begin(update bool) (store.Tx, error) {
	return &badgerTx{Txn: s.db.NewTransaction(update), update: update}, nil
}

func (s *badgerStore) Close() error {
	s.stopGC()
	return s.db.Close()
}

type badgerTx struct {
	*badger.Txn
	update bool
}

func (tx *badgerTx) Set(key, value []byte) error {
	if !tx.update {
		return store.ErrReadOnly
	}
	return tx.Txn.Set(key, value)
}

func (tx *badgerTx) Delete(key []byte) error {
	if !tx.update {
		return store.ErrReadOnly
	}
	return tx.Txn.Delete(key)
}

func getItemValue(item *badger.Item) ([]byte, error) {
	return item.ValueCopy(nil)
}

func (tx *badgerTx) Get(key []byte) ([]byte, error) {
	item, err := tx.Txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}
	return getItemValue(item)
}

func (tx *badgerTx) Commit() error {
	if !tx.update {
		tx.Txn.Discard()
		return nil
	}
	return tx.Txn.Commit()
}

func (tx *badgerTx) Rollback() error {
	tx.Txn.Discard()
	return nil
}

func (tx *badgerTx) Cursor(forward bool) (store.Cursor, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = !forward
	return &badgerCursor{it: tx.NewIterator(opts)}, nil
}

type badgerCursor struct {
	it *badger.Iterator
}

func (cursor *badgerCursor) Seek(key []byte) error {
	cursor.it.Seek(key)
	return nil
}

func (cursor *badgerCursor) Next() {
	cursor.it.Next()
}

func (cursor *badgerCursor) Valid() bool {
	return cursor.it.Valid()
}

func (cursor *badgerCursor) Item() (store.Item, error) {
	item := cursor.it.Item()

	value, err := getItemValue(item)
	return store.Item{Key: item.KeyCopy(nil), Value: value}, err
}

func (cursor *badgerCursor) Close() error {
	cursor.it.Close()
	return nil
}

// Open opens a badger store in dir with default options. Value log GC
// failures are reported to logger.
func Open(dir string, logger *zap.Logger) (store.Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return OpenWithOptions(opts, logger)
}

func OpenWithOptions(opts badger.Options, logger *zap.Logger) (store.Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	dataStore := &badgerStore{
		db:             db,
		logger:         logger,
		chQuit:         make(chan struct{}, 1),
		gcInterval:     GCReclaimIntervalDefault,
		gcDiscardRatio: GCDiscardRatioDefault,
	}
	dataStore.startGC()
	return dataStore, nil
}

func (s *badgerStore) startGC() {
	s.chWg.Add(1)

	go func() {
		defer s.chWg.Done()

		ticker := time.NewTicker(s.gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.chQuit:
				return

			case <-ticker.C:
				err := s.db.RunValueLogGC(s.gcDiscardRatio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("value log gc failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *badgerStore) stopGC() {
	s.chQuit <- struct{}{}
	s.chWg.Wait()
	close(s.chQuit)
}
