package sophia

import (
	"errors"

	"github.com/ostafen/sophia/native"
)

// Cursor yields the documents matching its filter, one per Next, until it is
// exhausted. It cannot be restarted.
type Cursor struct {
	handle
	exhausted bool
}

// Next returns the next document, which the caller must destroy. Once the
// cursor is exhausted Next returns ErrExhausted, now and on every later call.
func (c *Cursor) Next() (*Object, error) {
	if err := c.valid(); err != nil {
		return nil, err
	}
	if c.exhausted {
		return nil, ErrExhausted
	}

	ptr := c.eng.Next(c.ptr)
	if ptr != native.Nil {
		return &Object{handle: c.child(ptr)}, nil
	}

	// an empty diagnostic distinguishes the end from a failure
	msg, ok := diagnostic(c.eng, c.ctl.ptr)
	switch {
	case !ok:
		return nil, ErrUndefined
	case msg != "":
		return nil, &Error{Kind: Defined, Message: msg}
	}

	c.exhausted = true
	return nil, ErrExhausted
}

// ForEach calls fn with every remaining document and destroys it afterwards.
// Iteration stops at the first error returned by fn or by the cursor.
func (c *Cursor) ForEach(fn func(o *Object) error) error {
	for {
		o, err := c.Next()
		if errors.Is(err, ErrExhausted) {
			return nil
		}
		if err != nil {
			return err
		}

		err = fn(o)
		if destroyErr := o.Destroy(); err == nil {
			err = destroyErr
		}
		if err != nil {
			return err
		}
	}
}
