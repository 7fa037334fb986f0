package sophia

import "github.com/ostafen/sophia/native"

// Transaction batches Set, Get and Delete calls and applies them atomically
// on Commit. Destroying it without committing discards every change.
type Transaction struct {
	handle
	done bool
}

func (tx *Transaction) active() error {
	if tx.done {
		return ErrTxDone
	}
	return tx.valid()
}

// Set records an upsert of o.
func (tx *Transaction) Set(o *Object) error {
	if err := tx.active(); err != nil {
		return err
	}
	return status(&tx.handle, o, tx.eng.Set)
}

// Get returns the document matching the key fields of o, observing the
// changes already recorded by tx.
func (tx *Transaction) Get(o *Object) (*Object, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	return lookup(&tx.handle, o)
}

// Delete records the removal of the document identified by o.
func (tx *Transaction) Delete(o *Object) error {
	if err := tx.active(); err != nil {
		return err
	}
	return status(&tx.handle, o, tx.eng.Delete)
}

// Commit applies the recorded changes atomically. On conflict or failure
// nothing is applied and the diagnostic is returned along with the engine
// status. tx is finished either way.
func (tx *Transaction) Commit() (int, error) {
	if err := tx.active(); err != nil {
		return native.StatusError, err
	}
	tx.done = true

	rc := tx.eng.Commit(tx.ptr)
	if rc != native.StatusOK {
		return rc, tx.fail()
	}
	return rc, nil
}
