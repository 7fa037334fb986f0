package engine

import (
	"bytes"
	"fmt"

	"github.com/ostafen/sophia/document"
	"github.com/ostafen/sophia/internal"
	"github.com/ostafen/sophia/native"
)

// Filter fields understood by Cursor in addition to the key fields.
const (
	orderField  = "order"
	prefixField = "prefix"
)

const cursorBatchSize = 64

type entry struct {
	key []byte
	doc *document.Document
}

// cursor walks a collection without pinning a store transaction: every refill
// opens a short read transaction and resumes after the last key returned.
type cursor struct {
	env  *environment
	coll *collection

	forward   bool
	inclusive bool
	start     []byte // nil when the filter sets no key field
	bound     []byte // every visited key has this prefix

	last []byte
	buf  []entry
	done bool
}

func (c *cursor) typeName() string   { return native.TypeCursor }
func (c *cursor) owner() *environment { return c.env }

func newCursor(env *environment, coll *collection, filter *document.Document) (*cursor, error) {
	c := &cursor{
		env:       env,
		coll:      coll,
		forward:   true,
		inclusive: true,
		start:     coll.startKey(filter),
		bound:     coll.prefix,
	}

	if order, ok := filter.Get(orderField); ok {
		switch string(order) {
		case ">=":
		case ">":
			c.inclusive = false
		case "<=":
			c.forward = false
		case "<":
			c.forward, c.inclusive = false, false
		default:
			return nil, fmt.Errorf("invalid cursor order %q", order)
		}
	}

	if prefix, ok := filter.Get(prefixField); ok {
		c.bound = internal.EncodePartialString(coll.prefix, prefix)
	}
	return c, nil
}

// seekKey is the initial position of the underlying store cursor.
func (c *cursor) seekKey() []byte {
	if c.last != nil {
		return c.last
	}

	if c.start == nil {
		if c.forward {
			return c.bound
		}
		return upperBound(c.bound)
	}

	if !c.forward && c.inclusive {
		return upperBound(c.start)
	}
	return c.start
}

func upperBound(prefix []byte) []byte {
	if bound := internal.UpperBound(prefix); bound != nil {
		return bound
	}
	return bytes.Repeat([]byte{0xff}, len(prefix)+1)
}

// afterStart tells whether key is past the start position of the filter.
// Keys extending a partial start key compare as equal to it.
func (c *cursor) afterStart(key []byte) bool {
	if c.last != nil {
		return !bytes.Equal(key, c.last)
	}
	if c.start == nil {
		return true
	}

	extends := hasPrefix(key, c.start)
	if c.forward {
		if c.inclusive {
			return bytes.Compare(key, c.start) >= 0
		}
		return !extends && bytes.Compare(key, c.start) > 0
	}
	if c.inclusive {
		return extends || bytes.Compare(key, c.start) < 0
	}
	return !extends && bytes.Compare(key, c.start) < 0
}

// beforeBound tells whether key was visited before reaching the bound range.
func (c *cursor) beforeBound(key []byte) bool {
	if c.forward {
		return bytes.Compare(key, c.bound) < 0
	}
	return bytes.Compare(key, c.bound) > 0
}

func (c *cursor) fill() error {
	if err := c.env.online(); err != nil {
		return err
	}

	tx, err := c.env.store.Begin(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	it, err := tx.Cursor(c.forward)
	if err != nil {
		return err
	}
	defer it.Close()

	if err := it.Seek(c.seekKey()); err != nil {
		return err
	}

	for ; it.Valid() && len(c.buf) < cursorBatchSize; it.Next() {
		item, err := it.Item()
		if err != nil {
			return err
		}

		if !hasPrefix(item.Key, c.bound) {
			if c.beforeBound(item.Key) {
				continue
			}
			break
		}
		if !c.afterStart(item.Key) {
			continue
		}

		doc, err := decodeDocument(item.Value)
		if err != nil {
			return err
		}
		c.buf = append(c.buf, entry{key: item.Key, doc: doc})
	}
	return nil
}

func (c *cursor) next() (*document.Document, error) {
	if c.done {
		return nil, nil
	}

	if len(c.buf) == 0 {
		if err := c.fill(); err != nil {
			return nil, err
		}
	}
	if len(c.buf) == 0 {
		c.done = true
		return nil, nil
	}

	e := c.buf[0]
	c.buf = c.buf[1:]
	c.last = e.key
	return e.doc, nil
}

func (e *Engine) Cursor(p, filter native.Pointer) native.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.lookup(p).(*database)
	if !ok {
		return native.Nil
	}
	env := db.env
	env.lastErr = ""

	f, ok := e.lookup(filter).(*object)
	if !ok {
		fail(env, "invalid filter object")
		return native.Nil
	}
	if f.env != env || f.coll != db.coll {
		fail(env, "filter object does not belong to database %s", db.coll.name)
		return native.Nil
	}
	if err := env.online(); err != nil {
		fail(env, "%s", err)
		return native.Nil
	}

	c, err := newCursor(env, db.coll, f.doc)
	if err != nil {
		fail(env, "%s", err)
		return native.Nil
	}
	return e.alloc(c)
}

// Next returns Nil with an empty diagnostic once the cursor is exhausted.
func (e *Engine) Next(p native.Pointer) native.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.lookup(p).(*cursor)
	if !ok {
		return native.Nil
	}
	c.env.lastErr = ""

	doc, err := c.next()
	if err != nil {
		fail(c.env, "%s", err)
		return native.Nil
	}
	if doc == nil {
		return native.Nil
	}
	return e.alloc(&object{env: c.env, coll: c.coll, doc: doc})
}
