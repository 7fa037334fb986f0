package sophia

import (
	"errors"
	"testing"

	"github.com/ostafen/sophia/engine"
	"github.com/ostafen/sophia/native"
	"github.com/stretchr/testify/require"
)

// faultyEngine wraps the default engine and breaks selected primitives.
type faultyEngine struct {
	*engine.Engine

	noEnv       bool
	noCtl       bool
	noDiag      bool
	failDestroy bool
}

func (e *faultyEngine) Env() native.Pointer {
	if e.noEnv {
		return native.Nil
	}
	return e.Engine.Env()
}

func (e *faultyEngine) Ctl(p native.Pointer) native.Pointer {
	if e.noCtl {
		return native.Nil
	}
	return e.Engine.Ctl(p)
}

func (e *faultyEngine) GetPath(ctl native.Pointer, path string) native.Pointer {
	if e.noDiag && path == native.ErrorPath {
		return native.Nil
	}
	return e.Engine.GetPath(ctl, path)
}

func (e *faultyEngine) Destroy(p native.Pointer) int {
	if e.failDestroy && e.Engine.Type(p) == native.TypeObject {
		return native.StatusError
	}
	return e.Engine.Destroy(p)
}

func TestBootstrapFailureIsUndefined(t *testing.T) {
	_, err := New(WithEngine(&faultyEngine{Engine: engine.New(), noEnv: true}))
	require.ErrorIs(t, err, ErrUndefined)

	_, err = New(WithEngine(&faultyEngine{Engine: engine.New(), noCtl: true}))
	require.ErrorIs(t, err, ErrUndefined)
}

func TestUnreadableDiagnosticIsUndefined(t *testing.T) {
	eng := &faultyEngine{Engine: engine.New(), noDiag: true}
	env, err := New(WithEngine(eng), WithBackend(engine.BackendMemory))
	require.NoError(t, err)
	defer env.Destroy()

	err = env.Ctl().Set("no.such.path", "x")
	require.ErrorIs(t, err, ErrUndefined)
	require.False(t, errors.Is(err, &Error{Kind: Defined}))
}

func TestDefinedError(t *testing.T) {
	env, err := New(WithBackend(engine.BackendMemory))
	require.NoError(t, err)
	defer env.Destroy()

	err = env.Ctl().Set("no.such.path", "x")

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, Defined, e.Kind)
	require.Equal(t, "no.such.path: unknown path", e.Message)
	require.Equal(t, "sophia: no.such.path: unknown path", err.Error())
}

func TestDestroyFailureIsNotRetried(t *testing.T) {
	eng := &faultyEngine{Engine: engine.New(), failDestroy: true}
	env, err := Open(WithEngine(eng), WithBackend(engine.BackendMemory), WithDatabase("items"))
	require.NoError(t, err)
	defer env.Destroy()

	db, err := env.Ctl().GetDB("db.items")
	require.NoError(t, err)
	defer db.Destroy()

	o, err := db.Object()
	require.NoError(t, err)

	require.Error(t, o.Destroy())
	require.ErrorIs(t, o.Destroy(), ErrDestroyed)
}

func TestErrorKinds(t *testing.T) {
	require.ErrorIs(t, &Error{Kind: Defined, Message: native.MsgNotFound}, ErrNotFound)
	require.NotErrorIs(t, &Error{Kind: Defined, Message: "other"}, ErrNotFound)
	require.NotErrorIs(t, ErrExhausted, ErrUndefined)
	require.Equal(t, "sophia: cursor exhausted", ErrExhausted.Error())
	require.Equal(t, "type mismatch", TypeMismatch.String())
}
