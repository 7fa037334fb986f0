// Package sophia is a typed, resource-safe handle layer over the sophia
// engine primitives. An Env owns a Ctl, the control interface that
// configures the engine and resolves databases; documents are Objects
// exchanged with a Db, a Cursor or a Transaction.
//
//	env, err := sophia.New(sophia.WithPath("./data"), sophia.WithDatabase("items"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer env.Destroy()
//
//	if err := env.Open(); err != nil {
//		log.Fatal(err)
//	}
//	db, err := env.Ctl().GetDB("db.items")
//
// Every handle must be destroyed exactly once, and before the Env it derives from.
package sophia

import (
	"github.com/ostafen/sophia/engine"
	"github.com/ostafen/sophia/native"
)

// Env is the root of the handle graph. Destroying it releases the control
// interface too, and invalidates every handle derived from it.
type Env struct {
	handle
	ctl *Ctl
}

// New allocates an environment and its control interface, then applies the
// configured settings. Allocation failures are Undefined: no diagnostic
// source exists yet.
func New(opts ...Option) (*Env, error) {
	config, err := defaultConfig().applyOptions(opts)
	if err != nil {
		return nil, err
	}

	eng := config.Engine
	if eng == nil {
		eng = engine.New(engine.WithLogger(config.Logger))
	}

	ptr := eng.Env()
	if ptr == native.Nil {
		return nil, ErrUndefined
	}

	ctlPtr := eng.Ctl(ptr)
	if ctlPtr == native.Nil {
		eng.Destroy(ptr)
		return nil, ErrUndefined
	}

	env := &Env{handle: handle{eng: eng, ptr: ptr, logger: config.Logger}}
	env.ctl = &Ctl{eng: eng, ptr: ctlPtr, env: env}
	env.handle.ctl = env.ctl

	for _, s := range config.Settings {
		if err := env.ctl.Set(s.Path, s.Value); err != nil {
			env.Destroy()
			return nil, err
		}
	}
	return env, nil
}

// Open creates the environment described by opts and brings it online.
func Open(opts ...Option) (*Env, error) {
	env, err := New(opts...)
	if err != nil {
		return nil, err
	}

	if err := env.Open(); err != nil {
		env.Destroy()
		return nil, err
	}
	return env, nil
}

// Ctl returns the control interface owned by env. It is the same instance
// for the whole lifetime of env.
func (env *Env) Ctl() *Ctl {
	return env.ctl
}

// Open switches env from configuration to operation. Configuration-only
// paths cannot be set afterwards.
func (env *Env) Open() error {
	if err := env.valid(); err != nil {
		return err
	}

	if rc := env.eng.Open(env.ptr); rc != native.StatusOK {
		return env.fail()
	}
	env.logger.Debug("environment opened")
	return nil
}

// Transaction begins a transaction against env.
func (env *Env) Transaction() (*Transaction, error) {
	if err := env.valid(); err != nil {
		return nil, err
	}

	ptr := env.eng.Begin(env.ptr)
	if ptr == native.Nil {
		return nil, env.fail()
	}
	return &Transaction{handle: env.child(ptr)}, nil
}

// Error polls for a pending condition forcing the engine to shut down.
func (env *Env) Error() (int, bool) {
	if env.valid() != nil {
		return 0, false
	}

	rc := env.eng.Error(env.ptr)
	return rc, rc != native.StatusOK
}
