// Package engine is the default implementation of the native primitive
// operation set. Documents are stored in an ordered key-value store chosen
// through the "sophia.backend" control path.
package engine

import (
	"fmt"
	"sync"

	"github.com/ostafen/sophia/native"
	"github.com/ostafen/sophia/store"
	"github.com/ostafen/sophia/store/badger"
	"github.com/ostafen/sophia/store/bbolt"
	"github.com/ostafen/sophia/store/memory"
	"go.uber.org/zap"
)

// Version is reported through the "sophia.version" control path.
const Version = "2.2"

const (
	BackendBolt   = "bbolt"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// resource is any value living in the handle table.
type resource interface {
	typeName() string
	owner() *environment
}

// Engine implements native.Engine. All primitives are serialized by one mutex.
type Engine struct {
	mu       sync.Mutex
	logger   *zap.Logger
	backends map[string]store.OpenFunc

	next    native.Pointer
	handles map[native.Pointer]resource
}

var _ native.Engine = (*Engine)(nil)

// Option is a function that takes an engine and modifies it
type Option func(e *Engine)

// WithLogger sets the logger used for engine diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBackend registers (or replaces) a store backend selectable through "sophia.backend".
func WithBackend(name string, open store.OpenFunc) Option {
	return func(e *Engine) {
		e.backends[name] = open
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		logger: zap.NewNop(),
		backends: map[string]store.OpenFunc{
			BackendBolt:   bbolt.Open,
			BackendBadger: badger.Open,
			BackendMemory: memory.Open,
		},
		handles: make(map[native.Pointer]resource),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) alloc(r resource) native.Pointer {
	e.next++
	e.handles[e.next] = r
	return e.next
}

func (e *Engine) lookup(p native.Pointer) resource {
	return e.handles[p]
}

// fail records a diagnostic on env, if known.
func fail(env *environment, format string, args ...interface{}) {
	if env != nil {
		env.lastErr = fmt.Sprintf(format, args...)
	}
}

func (e *Engine) Env() native.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()

	env := newEnvironment(e.logger)
	p := e.alloc(env)
	env.ctl = e.alloc(&ctlResource{env: env})

	e.logger.Debug("environment allocated", zap.String("id", env.id))
	return p
}

func (e *Engine) Ctl(p native.Pointer) native.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, ok := e.lookup(p).(*environment)
	if !ok {
		return native.Nil
	}
	return env.ctl
}

func (e *Engine) Open(p native.Pointer) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, ok := e.lookup(p).(*environment)
	if !ok {
		return native.StatusError
	}
	env.lastErr = ""

	if err := env.open(e.backends); err != nil {
		fail(env, "%s", err)
		e.logger.Warn("environment open failed", zap.String("id", env.id), zap.Error(err))
		return native.StatusError
	}

	e.logger.Info("environment online",
		zap.String("id", env.id),
		zap.String("backend", env.backend),
		zap.String("path", env.path),
		zap.Int("databases", len(env.collections)))
	return native.StatusOK
}

func (e *Engine) Error(p native.Pointer) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, ok := e.lookup(p).(*environment)
	if !ok {
		return native.StatusError
	}
	return env.fatal
}

func (e *Engine) Type(p native.Pointer) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.lookup(p)
	if r == nil {
		return ""
	}
	return r.typeName()
}

func (e *Engine) Destroy(p native.Pointer) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.lookup(p)
	switch r := r.(type) {
	case nil:
		return native.StatusError

	case *ctlResource:
		fail(r.env, "control interface is owned by its environment")
		return native.StatusError

	case *environment:
		for child, res := range e.handles {
			if res.owner() == r {
				if tx, ok := res.(*transaction); ok {
					tx.discard()
				}
				delete(e.handles, child)
			}
		}
		delete(e.handles, p)

		if err := r.close(); err != nil {
			e.logger.Warn("environment close failed", zap.String("id", r.id), zap.Error(err))
			return native.StatusError
		}
		e.logger.Info("environment destroyed", zap.String("id", r.id))
		return native.StatusOK

	case *transaction:
		r.discard()
	}

	delete(e.handles, p)
	return native.StatusOK
}
