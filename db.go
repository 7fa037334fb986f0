package sophia

import "github.com/ostafen/sophia/native"

// KV is the set of document operations shared by databases and transactions.
type KV interface {
	Set(o *Object) error
	Get(o *Object) (*Object, error)
	Delete(o *Object) error
}

var (
	_ KV = (*Db)(nil)
	_ KV = (*Transaction)(nil)
)

// Db is a handle on one named database, resolved through "db.<name>".
type Db struct {
	handle
}

// Object allocates an empty document for db.
func (db *Db) Object() (*Object, error) {
	if err := db.valid(); err != nil {
		return nil, err
	}

	ptr := db.eng.Object(db.ptr)
	if ptr == native.Nil {
		return nil, db.fail()
	}
	return &Object{handle: db.child(ptr)}, nil
}

// Set upserts the document identified by the key fields of o.
func (db *Db) Set(o *Object) error {
	return status(&db.handle, o, db.eng.Set)
}

// Get returns the stored document matching the key fields of o. A missing
// document fails with ErrNotFound.
func (db *Db) Get(o *Object) (*Object, error) {
	return lookup(&db.handle, o)
}

// Delete removes the document identified by the key fields of o.
func (db *Db) Delete(o *Object) error {
	return status(&db.handle, o, db.eng.Delete)
}

// Cursor opens an iteration over the documents selected by filter. Its key
// fields set the start position, "order" one of ">=", ">", "<=", "<" and
// "prefix" restricts the first key field. An empty filter scans everything
// in ascending key order.
func (db *Db) Cursor(filter *Object) (*Cursor, error) {
	if err := db.valid(); err != nil {
		return nil, err
	}
	if err := filter.valid(); err != nil {
		return nil, err
	}

	ptr := db.eng.Cursor(db.ptr, filter.ptr)
	if ptr == native.Nil {
		return nil, db.fail()
	}
	return &Cursor{handle: db.child(ptr)}, nil
}

func status(h *handle, o *Object, op func(target, object native.Pointer) int) error {
	if err := h.valid(); err != nil {
		return err
	}
	if err := o.valid(); err != nil {
		return err
	}

	if rc := op(h.ptr, o.ptr); rc != native.StatusOK {
		return h.fail()
	}
	return nil
}

func lookup(h *handle, o *Object) (*Object, error) {
	if err := h.valid(); err != nil {
		return nil, err
	}
	if err := o.valid(); err != nil {
		return nil, err
	}

	ptr := h.eng.Get(h.ptr, o.ptr)
	if ptr == native.Nil {
		return nil, h.fail()
	}
	return &Object{handle: h.child(ptr)}, nil
}
