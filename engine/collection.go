package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ostafen/sophia/document"
	"github.com/ostafen/sophia/internal"
	"github.com/ostafen/sophia/native"
)

const defaultKeyField = "key"

var ErrNotFound = errors.New(native.MsgNotFound)

// collection is the definition of one database: its name, the fields forming
// the key of its documents and the codec new records are written with.
type collection struct {
	name        string
	keys        []string
	compression internal.Compression
	prefix      []byte
}

func newCollection(name string) *collection {
	return &collection{
		name:        name,
		keys:        []string{defaultKeyField},
		compression: internal.NoCompression,
		prefix:      internal.CollectionPrefix(name),
	}
}

func (c *collection) setKeys(def string) error {
	keys := strings.Split(def, ",")
	seen := make(map[string]bool, len(keys))
	for i, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			return fmt.Errorf("invalid key definition %q", def)
		}
		seen[k] = true
		keys[i] = k
	}
	c.keys = keys
	return nil
}

func (c *collection) keysEqual(other *collection) bool {
	if len(c.keys) != len(other.keys) {
		return false
	}
	for i := range c.keys {
		if c.keys[i] != other.keys[i] {
			return false
		}
	}
	return true
}

func (c *collection) key(doc *document.Document) ([]byte, error) {
	parts := make([][]byte, 0, len(c.keys))
	for _, name := range c.keys {
		v, ok := doc.Get(name)
		if !ok {
			return nil, fmt.Errorf("missing key field %q", name)
		}
		parts = append(parts, v)
	}
	return internal.EncodeKey(c.prefix, parts...)
}

// startKey encodes the leading key fields present in doc. It returns nil if the
// first key field is absent.
func (c *collection) startKey(doc *document.Document) []byte {
	parts := make([][]byte, 0, len(c.keys))
	for _, name := range c.keys {
		v, ok := doc.Get(name)
		if !ok {
			break
		}
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return nil
	}
	k, _ := internal.EncodeKey(c.prefix, parts...)
	return k
}

func (c *collection) encode(doc *document.Document) ([]byte, error) {
	data, err := document.Encode(doc)
	if err != nil {
		return nil, err
	}
	return internal.EncodeRecord(c.compression, data)
}

func decodeDocument(rec []byte) (*document.Document, error) {
	data, err := internal.DecodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return document.Decode(data)
}

func hasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}

// database is a handle on a collection.
type database struct {
	env  *environment
	coll *collection
}

func (db *database) typeName() string   { return native.TypeDatabase }
func (db *database) owner() *environment { return db.env }

// object is a document handle. Objects resolved from control paths carry no
// collection and are read-only.
type object struct {
	env      *environment
	coll     *collection
	doc      *document.Document
	readOnly bool
}

func (o *object) typeName() string   { return native.TypeObject }
func (o *object) owner() *environment { return o.env }

func scalar(env *environment, value string) *object {
	doc := document.NewDocument()
	doc.Set(native.ValueField, []byte(value))
	return &object{env: env, doc: doc, readOnly: true}
}

func (e *Engine) Object(p native.Pointer) native.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.lookup(p).(*database)
	if !ok {
		return native.Nil
	}
	db.env.lastErr = ""

	return e.alloc(&object{env: db.env, coll: db.coll, doc: document.NewDocument()})
}

func (e *Engine) SetField(p native.Pointer, field string, value []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.lookup(p).(*object)
	if !ok {
		return native.StatusError
	}
	o.env.lastErr = ""

	if o.readOnly {
		fail(o.env, "object is read-only")
		return native.StatusError
	}
	if field == "" {
		fail(o.env, "invalid field name")
		return native.StatusError
	}

	o.doc.Set(field, value)
	return native.StatusOK
}

func (e *Engine) GetField(p native.Pointer, field string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.lookup(p).(*object)
	if !ok {
		return nil, false
	}

	v, ok := o.doc.Get(field)
	if !ok {
		fail(o.env, "field not found: %s", field)
		return nil, false
	}
	return v, true
}

// target resolves the environment, the collection and the key the operation
// on object o through target t acts on.
func (e *Engine) target(t, o native.Pointer) (resource, *object, []byte, bool) {
	r := e.lookup(t)
	if r == nil {
		return nil, nil, nil, false
	}
	env := r.owner()
	env.lastErr = ""

	obj, ok := e.lookup(o).(*object)
	if !ok {
		fail(env, "invalid object")
		return nil, nil, nil, false
	}
	if obj.env != env {
		fail(env, "object belongs to another environment")
		return nil, nil, nil, false
	}
	if obj.coll == nil {
		fail(env, "object is not bound to a database")
		return nil, nil, nil, false
	}
	if db, ok := r.(*database); ok && db.coll != obj.coll {
		fail(env, "object belongs to database %s, not %s", obj.coll.name, db.coll.name)
		return nil, nil, nil, false
	}

	key, err := obj.coll.key(obj.doc)
	if err != nil {
		fail(env, "%s", err)
		return nil, nil, nil, false
	}
	return r, obj, key, true
}

func (e *Engine) Set(t, o native.Pointer) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, obj, key, ok := e.target(t, o)
	if !ok {
		return native.StatusError
	}

	value, err := obj.coll.encode(obj.doc)
	if err != nil {
		fail(obj.env, "%s", err)
		return native.StatusError
	}
	w := &write{key: key, value: value, doc: obj.doc.Copy()}

	switch r := r.(type) {
	case *database:
		if err := r.env.commitWrites([]*write{w}); err != nil {
			fail(r.env, "%s", err)
			return native.StatusError
		}
	case *transaction:
		if err := r.put(w); err != nil {
			fail(r.env, "%s", err)
			return native.StatusError
		}
	default:
		fail(obj.env, "set is not supported on %s", r.typeName())
		return native.StatusError
	}
	return native.StatusOK
}

func (e *Engine) Get(t, o native.Pointer) native.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, obj, key, ok := e.target(t, o)
	if !ok {
		return native.Nil
	}

	var (
		doc *document.Document
		err error
	)
	switch r := r.(type) {
	case *database:
		doc, err = r.env.lookupDocument(key)
	case *transaction:
		doc, err = r.lookup(key)
	default:
		err = fmt.Errorf("get is not supported on %s", r.typeName())
	}
	if err != nil {
		fail(obj.env, "%s", err)
		return native.Nil
	}

	return e.alloc(&object{env: obj.env, coll: obj.coll, doc: doc})
}

func (e *Engine) Delete(t, o native.Pointer) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, obj, key, ok := e.target(t, o)
	if !ok {
		return native.StatusError
	}
	w := &write{key: key, delete: true}

	var err error
	switch r := r.(type) {
	case *database:
		if _, err = r.env.lookupDocument(key); err == nil {
			err = r.env.commitWrites([]*write{w})
		}
	case *transaction:
		if _, err = r.lookup(key); err == nil {
			err = r.put(w)
		}
	default:
		err = fmt.Errorf("delete is not supported on %s", r.typeName())
	}
	if err != nil {
		fail(obj.env, "%s", err)
		return native.StatusError
	}
	return native.StatusOK
}

func (env *environment) lookupDocument(key []byte) (*document.Document, error) {
	rec, err := env.read(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return decodeDocument(rec)
}
