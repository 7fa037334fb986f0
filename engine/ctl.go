package engine

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ostafen/sophia/internal"
	"github.com/ostafen/sophia/native"
	"go.uber.org/zap"
)

var (
	errReadOnlyPath = errors.New("path is read-only")
	errOfflineOnly  = errors.New("path can only be set before open")
)

// splitDatabasePath splits "db.<name>[.<setting>]".
func splitDatabasePath(path string) (name, setting string, ok bool) {
	rest := strings.TrimPrefix(path, "db.")
	if rest == path || rest == "" {
		return "", "", false
	}

	name, setting, _ = strings.Cut(rest, ".")
	return name, setting, true
}

func (e *Engine) SetString(p native.Pointer, path, value string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctl, ok := e.lookup(p).(*ctlResource)
	if !ok {
		return native.StatusError
	}
	env := ctl.env
	env.lastErr = ""

	if err := env.set(path, value); err != nil {
		fail(env, "%s: %s", path, err)
		return native.StatusError
	}
	env.logger.Debug("ctl set", zap.String("path", path), zap.String("value", value))
	return native.StatusOK
}

func (env *environment) set(path, value string) error {
	switch path {
	case "sophia.version", "sophia.id", "sophia.error", "sophia.status":
		return errReadOnlyPath

	case "sophia.path":
		if env.status != statusOffline {
			return errOfflineOnly
		}
		env.path = value
		return nil

	case "sophia.backend":
		if env.status != statusOffline {
			return errOfflineOnly
		}
		env.backend = value
		return nil

	case "db":
		if env.status == statusShutdown {
			return ErrShutdown
		}
		return env.declare(value)
	}

	name, setting, ok := splitDatabasePath(path)
	if !ok {
		return errors.New("unknown path")
	}
	c, err := env.collection(name)
	if err != nil {
		return err
	}

	switch setting {
	case "", "count":
		return errReadOnlyPath

	case "key":
		if env.status != statusOffline {
			return errOfflineOnly
		}
		return c.setKeys(value)

	case "compression":
		if env.status != statusOffline {
			return errOfflineOnly
		}
		comp, err := internal.ParseCompression(value)
		if err != nil {
			return err
		}
		c.compression = comp
		return nil
	}
	return errors.New("unknown path")
}

func (e *Engine) GetPath(p native.Pointer, path string) native.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctl, ok := e.lookup(p).(*ctlResource)
	if !ok {
		return native.Nil
	}
	env := ctl.env

	// reading the diagnostic must not clear it
	if path == native.ErrorPath {
		return e.alloc(scalar(env, env.lastErr))
	}
	env.lastErr = ""

	r, err := env.get(path)
	if err != nil {
		fail(env, "%s: %s", path, err)
		return native.Nil
	}
	return e.alloc(r)
}

func (env *environment) get(path string) (resource, error) {
	switch path {
	case "sophia.version":
		return scalar(env, Version), nil
	case "sophia.id":
		return scalar(env, env.id), nil
	case "sophia.status":
		return scalar(env, env.status), nil
	case "sophia.path":
		return scalar(env, env.path), nil
	case "sophia.backend":
		return scalar(env, env.backend), nil
	}

	name, setting, ok := splitDatabasePath(path)
	if !ok {
		return nil, errors.New("unknown path")
	}
	c, err := env.collection(name)
	if err != nil {
		return nil, err
	}

	switch setting {
	case "":
		if err := env.online(); err != nil {
			return nil, err
		}
		return &database{env: env, coll: c}, nil

	case "key":
		return scalar(env, strings.Join(c.keys, ",")), nil

	case "compression":
		return scalar(env, c.compression.String()), nil

	case "count":
		n, err := env.count(c)
		if err != nil {
			return nil, err
		}
		return scalar(env, strconv.Itoa(n)), nil
	}
	return nil, errors.New("unknown path")
}

func (env *environment) count(c *collection) (int, error) {
	if err := env.online(); err != nil {
		return 0, err
	}

	tx, err := env.store.Begin(false)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	it, err := tx.Cursor(true)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n := 0
	if err := it.Seek(c.prefix); err != nil {
		return 0, err
	}
	for ; it.Valid(); it.Next() {
		item, err := it.Item()
		if err != nil {
			return 0, err
		}
		if !hasPrefix(item.Key, c.prefix) {
			break
		}
		n++
	}
	return n, nil
}
