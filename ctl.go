package sophia

import (
	"fmt"

	"github.com/ostafen/sophia/native"
)

// Ctl is the control interface of an environment: a flat namespace of
// dotted paths used for configuration, introspection and to resolve
// databases. It is owned by its Env and is never destroyed on its own.
type Ctl struct {
	eng native.Engine
	ptr native.Pointer
	env *Env
}

// ResolutionKind tells which variant a control path resolved to.
type ResolutionKind int

const (
	ScalarValue ResolutionKind = iota
	DatabaseHandle
	DocumentHandle
)

func (k ResolutionKind) String() string {
	switch k {
	case ScalarValue:
		return "scalar"
	case DatabaseHandle:
		return "database"
	}
	return "document"
}

// Resolution is the tagged result of Ctl.Resolve. Exactly one of Db and
// Object is set; Value is filled for scalars, whose Object is also returned.
type Resolution struct {
	Kind   ResolutionKind
	Value  string
	Db     *Db
	Object *Object
}

// Destroy releases the handle held by r.
func (r Resolution) Destroy() error {
	if r.Db != nil {
		return r.Db.Destroy()
	}
	return r.Object.Destroy()
}

func (ctl *Ctl) valid() error {
	if ctl.env.destroyed {
		return ErrDestroyed
	}
	return nil
}

func (ctl *Ctl) fail() error {
	return lastError(ctl.eng, ctl.ptr)
}

func (ctl *Ctl) wrap(ptr native.Pointer) handle {
	return handle{eng: ctl.eng, ptr: ptr, ctl: ctl, logger: ctl.env.logger}
}

// Type returns the engine type name of the control interface.
func (ctl *Ctl) Type() (string, error) {
	if err := ctl.valid(); err != nil {
		return "", err
	}

	t := ctl.eng.Type(ctl.ptr)
	if t == "" {
		return "", ctl.fail()
	}
	return t, nil
}

// Set writes a configuration value at path. Some paths can only be set
// before the environment is opened.
func (ctl *Ctl) Set(path, value string) error {
	if err := ctl.valid(); err != nil {
		return err
	}

	if rc := ctl.eng.SetString(ctl.ptr, path, value); rc != native.StatusOK {
		return ctl.fail()
	}
	return nil
}

// Resolve resolves path and tags the result with the kind of handle it
// yields. Objects exposing a "value" field are scalars.
func (ctl *Ctl) Resolve(path string) (Resolution, error) {
	if err := ctl.valid(); err != nil {
		return Resolution{}, err
	}

	ptr := ctl.eng.GetPath(ctl.ptr, path)
	if ptr == native.Nil {
		return Resolution{}, ctl.fail()
	}

	switch t := ctl.eng.Type(ptr); t {
	case native.TypeDatabase:
		return Resolution{Kind: DatabaseHandle, Db: &Db{handle: ctl.wrap(ptr)}}, nil

	case native.TypeObject:
		obj := &Object{handle: ctl.wrap(ptr)}
		if v, ok := ctl.eng.GetField(ptr, native.ValueField); ok {
			return Resolution{Kind: ScalarValue, Value: string(v), Object: obj}, nil
		}
		return Resolution{Kind: DocumentHandle, Object: obj}, nil

	default:
		h := ctl.wrap(ptr)
		h.Destroy()
		return Resolution{}, &Error{Kind: TypeMismatch, Message: fmt.Sprintf("%s resolved to unexpected type %q", path, t)}
	}
}

func mismatch(path string, want, got ResolutionKind) error {
	return &Error{Kind: TypeMismatch, Message: fmt.Sprintf("%s is a %s, not a %s", path, got, want)}
}

// Get resolves path to a document. Scalar paths yield a document holding
// the value in its "value" field.
func (ctl *Ctl) Get(path string) (*Object, error) {
	r, err := ctl.Resolve(path)
	if err != nil {
		return nil, err
	}

	if r.Kind == DatabaseHandle {
		r.Destroy()
		return nil, mismatch(path, DocumentHandle, r.Kind)
	}
	return r.Object, nil
}

// GetDB resolves path, usually "db.<name>", to a database.
func (ctl *Ctl) GetDB(path string) (*Db, error) {
	r, err := ctl.Resolve(path)
	if err != nil {
		return nil, err
	}

	if r.Kind != DatabaseHandle {
		r.Destroy()
		return nil, mismatch(path, DatabaseHandle, r.Kind)
	}
	return r.Db, nil
}

// GetString resolves a scalar path and returns its value.
func (ctl *Ctl) GetString(path string) (string, error) {
	r, err := ctl.Resolve(path)
	if err != nil {
		return "", err
	}
	defer r.Destroy()

	if r.Kind != ScalarValue {
		return "", mismatch(path, ScalarValue, r.Kind)
	}
	return r.Value, nil
}
