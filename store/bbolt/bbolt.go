package bbolt

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/ostafen/sophia/store"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

type boltStore struct {
	db *bbolt.DB
}

const (
	dbFileName = "sophia.db"
	rootBucket = "root"

	openTimeout = time.Second
)

// Open opens (or creates) the bbolt file inside dir.
func Open(dir string, logger *zap.Logger) (store.Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(filepath.Join(dir, dbFileName), 0666, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, err
	}
	s := &boltStore{db: db}
	if err := s.createRootBucketIfNotExists(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("bbolt store opened", zap.String("file", db.Path()))
	return s, nil
}

func (s *boltStore) createRootBucketIfNotExists() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	})
}

func (s *boltStore) Begin(update bool) (store.Tx, error) {
	tx, err := s.db.Begin(update)
	if err != nil {
		return nil, err
	}
	return &boltTx{Tx: tx, update: update}, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

type boltTx struct {
	*bbolt.Tx
	update bool
}

func (tx *boltTx) bucket() *bbolt.Bucket {
	return tx.Bucket([]byte(rootBucket))
}

func (tx *boltTx) Set(key, value []byte) error {
	if !tx.update {
		return store.ErrReadOnly
	}
	return tx.bucket().Put(key, value)
}

func (tx *boltTx) Get(key []byte) ([]byte, error) {
	return tx.bucket().Get(key), nil
}

func (tx *boltTx) Delete(key []byte) error {
	if !tx.update {
		return store.ErrReadOnly
	}
	return tx.bucket().Delete(key)
}

func (tx *boltTx) Cursor(forward bool) (store.Cursor, error) {
	return &boltCursor{
		Cursor:  tx.bucket().Cursor(),
		forward: forward,
	}, nil
}

// Commit on a read-only transaction just releases it.
func (tx *boltTx) Commit() error {
	if !tx.update {
		return tx.Tx.Rollback()
	}
	return tx.Tx.Commit()
}

func (tx *boltTx) Rollback() error {
	return tx.Tx.Rollback()
}

type boltCursor struct {
	*bbolt.Cursor
	forward bool

	key, value []byte
}

func (c *boltCursor) Seek(seek []byte) error {
	c.key, c.value = c.Cursor.Seek(seek)
	if c.forward {
		return nil
	}

	if c.key == nil {
		c.key, c.value = c.Cursor.Last()
	} else if !bytes.Equal(c.key, seek) {
		c.key, c.value = c.Cursor.Prev()
	}
	return nil
}

func (c *boltCursor) Next() {
	if c.forward {
		c.key, c.value = c.Cursor.Next()
	} else {
		c.key, c.value = c.Cursor.Prev()
	}
}

func (c *boltCursor) Valid() bool {
	return c.key != nil && c.value != nil
}

func (c *boltCursor) Item() (store.Item, error) {
	return store.Item{
		Key:   append([]byte(nil), c.key...),
		Value: append([]byte(nil), c.value...),
	}, nil
}

func (c *boltCursor) Close() error {
	return nil
}
