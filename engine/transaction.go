package engine

import (
	"errors"

	"github.com/ostafen/sophia/document"
	"github.com/ostafen/sophia/native"
	"go.uber.org/zap"
)

var (
	ErrTxDone   = errors.New("transaction already finished")
	ErrConflict = errors.New(native.MsgConflict)
)

type write struct {
	key    []byte
	value  []byte
	doc    *document.Document
	delete bool
}

// transaction buffers writes until commit. Reads observe the buffered writes
// first, then the store.
type transaction struct {
	env      *environment
	beginSeq uint64
	done     bool

	writes map[string]*write
	order  []string
}

func (tx *transaction) typeName() string   { return native.TypeTransaction }
func (tx *transaction) owner() *environment { return tx.env }

func (tx *transaction) put(w *write) error {
	if tx.done {
		return ErrTxDone
	}

	k := string(w.key)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = w
	return nil
}

func (tx *transaction) lookup(key []byte) (*document.Document, error) {
	if tx.done {
		return nil, ErrTxDone
	}

	if w, ok := tx.writes[string(key)]; ok {
		if w.delete {
			return nil, ErrNotFound
		}
		return w.doc.Copy(), nil
	}
	return tx.env.lookupDocument(key)
}

func (tx *transaction) conflicts() bool {
	for _, k := range tx.order {
		if v, ok := tx.env.versions[k]; ok && v > tx.beginSeq {
			return true
		}
	}
	return false
}

func (tx *transaction) discard() {
	if !tx.done {
		tx.env.logger.Debug("transaction discarded", zap.Int("writes", len(tx.order)))
	}
	tx.finish()
}

func (tx *transaction) finish() {
	tx.done = true
	tx.writes = nil
	tx.order = nil
	delete(tx.env.active, tx)
}

func (e *Engine) Begin(p native.Pointer) native.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, ok := e.lookup(p).(*environment)
	if !ok {
		return native.Nil
	}
	env.lastErr = ""

	if err := env.online(); err != nil {
		fail(env, "%s", err)
		return native.Nil
	}

	tx := &transaction{
		env:      env,
		beginSeq: env.seq,
		writes:   make(map[string]*write),
	}
	env.active[tx] = struct{}{}
	return e.alloc(tx)
}

func (e *Engine) Commit(p native.Pointer) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, ok := e.lookup(p).(*transaction)
	if !ok {
		return native.StatusError
	}
	env := tx.env
	env.lastErr = ""

	if tx.done {
		fail(env, "%s", ErrTxDone)
		return native.StatusError
	}
	defer tx.finish()

	if tx.conflicts() {
		fail(env, "%s", ErrConflict)
		env.logger.Debug("transaction rolled back", zap.Error(ErrConflict))
		return native.StatusRollback
	}

	writes := make([]*write, 0, len(tx.order))
	for _, k := range tx.order {
		writes = append(writes, tx.writes[k])
	}
	if len(writes) == 0 {
		return native.StatusOK
	}

	if err := env.commitWrites(writes); err != nil {
		fail(env, "%s", err)
		return native.StatusError
	}
	env.logger.Debug("transaction committed", zap.Int("writes", len(writes)), zap.Uint64("seq", env.seq))
	return native.StatusOK
}
