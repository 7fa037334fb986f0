// Package native describes the primitive operation set of the storage engine
// that the sophia handle layer drives. Every resource is an opaque Pointer;
// a Nil pointer or a negative status is the failure sentinel, and details of
// the last failure are read back through the control path "sophia.error".
package native

// Pointer is an opaque reference to one engine resource.
type Pointer uint64

// Nil is the failure sentinel for pointer-returning primitives.
const Nil Pointer = 0

// Status codes returned by status primitives.
const (
	StatusOK       = 0
	StatusRollback = 1
	StatusError    = -1
)

// Diagnostics with a fixed meaning.
const (
	MsgNotFound = "not found"
	MsgConflict = "transaction conflict"
)

// ErrorPath is the control path holding the diagnostic of the last failure,
// in the "value" field of the object it resolves to.
const (
	ErrorPath  = "sophia.error"
	ValueField = "value"
)

// Type names reported by Engine.Type.
const (
	TypeEnv         = "env"
	TypeCtl         = "ctl"
	TypeDatabase    = "database"
	TypeObject      = "object"
	TypeCursor      = "cursor"
	TypeTransaction = "transaction"
)

type Engine interface {
	// Env allocates a new environment.
	Env() Pointer
	// Ctl returns the control interface bound to env. It is owned by env.
	Ctl(env Pointer) Pointer

	// SetString writes a control path.
	SetString(ctl Pointer, path, value string) int
	// SetField writes a field of an object.
	SetField(object Pointer, field string, value []byte) int
	// Set upserts object through a database or transaction.
	Set(target, object Pointer) int

	// GetPath resolves a control path to a database or a read-only object
	// whose "value" field holds the scalar value.
	GetPath(ctl Pointer, path string) Pointer
	// GetField returns a view of a field valid until object is destroyed.
	GetField(object Pointer, field string) ([]byte, bool)
	// Get looks up the stored object matching the key fields of object.
	Get(target, object Pointer) Pointer
	// Next returns the next object of a cursor, or Nil once exhausted.
	Next(cursor Pointer) Pointer

	Delete(target, object Pointer) int

	// Object allocates an empty object for db.
	Object(db Pointer) Pointer
	// Cursor opens an iteration over db scoped by the filter object.
	Cursor(db, filter Pointer) Pointer

	Open(env Pointer) int
	Begin(env Pointer) Pointer
	Commit(tx Pointer) int
	Destroy(p Pointer) int

	// Error polls env for a pending condition that forces a shutdown.
	Error(env Pointer) int
	// Type returns the type name of p, or "" if p is not a live resource.
	Type(p Pointer) string
}
