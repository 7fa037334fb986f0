package sophia

import (
	"errors"
	"strings"

	"github.com/ostafen/sophia/native"
)

// ErrorKind classifies an Error.
type ErrorKind int

const (
	// Undefined means a primitive failed and no diagnostic could be read.
	Undefined ErrorKind = iota
	// Defined errors carry the diagnostic read back from the engine.
	Defined
	// Exhausted signals the end of a cursor. It is not a failure.
	Exhausted
	// TypeMismatch means a control path resolved to another kind of handle
	// than the one requested.
	TypeMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case Defined:
		return "defined"
	case Exhausted:
		return "exhausted"
	case TypeMismatch:
		return "type mismatch"
	}
	return "undefined"
}

// Error is returned by every operation whose primitive reported a failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case Undefined:
		return "sophia: undefined error"
	case Exhausted:
		return "sophia: cursor exhausted"
	}
	return "sophia: " + e.Message
}

// Is matches errors of the same kind. A target with a message also requires
// the messages to be equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrUndefined = &Error{Kind: Undefined}
	ErrExhausted = &Error{Kind: Exhausted}
	ErrNotFound  = &Error{Kind: Defined, Message: native.MsgNotFound}
	ErrConflict  = &Error{Kind: Defined, Message: native.MsgConflict}
)

var (
	ErrDestroyed = errors.New("sophia: handle already destroyed")
	ErrTxDone    = errors.New("sophia: transaction already finished")
)

// diagnostic reads the message stored at the error path through raw
// primitives. ok is false when the message itself cannot be read.
func diagnostic(eng native.Engine, ctl native.Pointer) (msg string, ok bool) {
	if ctl == native.Nil {
		return "", false
	}

	obj := eng.GetPath(ctl, native.ErrorPath)
	if obj == native.Nil {
		return "", false
	}
	defer eng.Destroy(obj)

	v, ok := eng.GetField(obj, native.ValueField)
	if !ok {
		return "", false
	}
	return strings.ToValidUTF8(string(v), "�"), true
}

// lastError converts the current diagnostic into an Error. It never fails:
// anything preventing the diagnostic from being read degrades to Undefined.
func lastError(eng native.Engine, ctl native.Pointer) error {
	msg, ok := diagnostic(eng, ctl)
	if !ok || msg == "" {
		return ErrUndefined
	}
	return &Error{Kind: Defined, Message: msg}
}
