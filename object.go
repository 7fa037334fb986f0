package sophia

import "github.com/ostafen/sophia/native"

// Object is a document: a bag of named byte fields. It is either a request
// built by the caller and passed to Set, Get, Delete or Cursor, or a
// response returned by them.
type Object struct {
	handle
}

// Set stores value under field, replacing any previous value.
func (o *Object) Set(field string, value []byte) error {
	if err := o.valid(); err != nil {
		return err
	}

	if rc := o.eng.SetField(o.ptr, field, value); rc != native.StatusOK {
		return o.fail()
	}
	return nil
}

func (o *Object) SetString(field, value string) error {
	return o.Set(field, []byte(value))
}

// Get returns a view of field owned by the object. The caller must not
// modify it nor use it after the object is destroyed; use GetString or copy
// the slice to keep the value.
func (o *Object) Get(field string) ([]byte, error) {
	if err := o.valid(); err != nil {
		return nil, err
	}

	v, ok := o.eng.GetField(o.ptr, field)
	if !ok {
		return nil, o.fail()
	}
	return v, nil
}

// GetString returns a copy of field as a string. It stays valid after the
// object is destroyed.
func (o *Object) GetString(field string) (string, error) {
	v, err := o.Get(field)
	if err != nil {
		return "", err
	}
	return string(v), nil
}
