package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/ostafen/sophia/document"
	"github.com/ostafen/sophia/internal"
	"github.com/ostafen/sophia/native"
	"github.com/ostafen/sophia/store"
	"go.uber.org/zap"
)

const (
	statusOffline  = "offline"
	statusOnline   = "online"
	statusShutdown = "shutdown"
)

var (
	ErrNotOnline          = errors.New("environment is not online")
	ErrShutdown           = errors.New("environment is shutting down")
	ErrCollectionExist    = errors.New("database already exists")
	ErrCollectionNotExist = errors.New("no such database")
)

type environment struct {
	id      string
	logger  *zap.Logger
	ctl     native.Pointer
	status  string
	lastErr string
	fatal   int

	path    string
	backend string
	store   store.Store

	collections map[string]*collection

	// commit sequence and, per written key, the sequence of its last commit.
	// Used to detect write conflicts of optimistic transactions.
	seq      uint64
	versions map[string]uint64
	active   map[*transaction]struct{}
}

func newEnvironment(logger *zap.Logger) *environment {
	id := uuid.Must(uuid.NewV4()).String()
	return &environment{
		id:          id,
		logger:      logger.With(zap.String("env", id)),
		status:      statusOffline,
		backend:     BackendBolt,
		collections: make(map[string]*collection),
		versions:    make(map[string]uint64),
		active:      make(map[*transaction]struct{}),
	}
}

func (env *environment) typeName() string   { return native.TypeEnv }
func (env *environment) owner() *environment { return env }

func (env *environment) online() error {
	switch env.status {
	case statusOnline:
		return nil
	case statusShutdown:
		return ErrShutdown
	}
	return ErrNotOnline
}

func (env *environment) declare(name string) error {
	if name == "" || strings.ContainsAny(name, ".,") {
		return fmt.Errorf("invalid database name %q", name)
	}
	if _, ok := env.collections[name]; ok {
		return fmt.Errorf("%w: %s", ErrCollectionExist, name)
	}

	c := newCollection(name)
	if env.status == statusOnline {
		if err := env.saveCatalog(c); err != nil {
			return err
		}
	}
	env.collections[name] = c
	return nil
}

func (env *environment) collection(name string) (*collection, error) {
	c, ok := env.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotExist, name)
	}
	return c, nil
}

func (env *environment) open(backends map[string]store.OpenFunc) error {
	if env.status != statusOffline {
		return fmt.Errorf("environment is already %s", env.status)
	}

	openStore, ok := backends[env.backend]
	if !ok {
		return fmt.Errorf("unknown backend %q", env.backend)
	}
	if env.path == "" && env.backend != BackendMemory {
		return errors.New("sophia.path is not set")
	}

	s, err := openStore(env.path, env.logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", env.backend, err)
	}
	env.store = s

	if err := env.loadCatalog(); err != nil {
		env.store = nil
		s.Close()
		return err
	}

	env.status = statusOnline
	return nil
}

func (env *environment) close() error {
	env.status = statusShutdown
	if env.store == nil {
		return nil
	}
	err := env.store.Close()
	env.store = nil
	return err
}

// loadCatalog merges the persisted database definitions with the declared ones
// and persists the result.
func (env *environment) loadCatalog() error {
	tx, err := env.store.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cursor, err := tx.Cursor(true)
	if err != nil {
		return err
	}

	prefix := internal.CatalogPrefix()
	stored := make([]*collection, 0)
	for err = cursor.Seek(prefix); err == nil && cursor.Valid(); cursor.Next() {
		item, err := cursor.Item()
		if err != nil {
			cursor.Close()
			return err
		}
		if !hasPrefix(item.Key, prefix) {
			break
		}

		c, err := decodeCatalogEntry(item.Value)
		if err != nil {
			cursor.Close()
			return fmt.Errorf("corrupted catalog entry: %w", err)
		}
		stored = append(stored, c)
	}
	cursor.Close()
	if err != nil {
		return err
	}

	for _, c := range stored {
		declared, ok := env.collections[c.name]
		if !ok {
			env.collections[c.name] = c
			continue
		}
		if !declared.keysEqual(c) {
			return fmt.Errorf("key of database %s is %s, stored definition is %s",
				c.name, strings.Join(declared.keys, ","), strings.Join(c.keys, ","))
		}
	}

	for _, c := range env.collections {
		entry, err := encodeCatalogEntry(c)
		if err != nil {
			return err
		}
		if err := tx.Set(internal.CatalogKey(c.name), entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (env *environment) saveCatalog(c *collection) error {
	entry, err := encodeCatalogEntry(c)
	if err != nil {
		return err
	}

	tx, err := env.store.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.Set(internal.CatalogKey(c.name), entry); err != nil {
		return err
	}
	return tx.Commit()
}

func encodeCatalogEntry(c *collection) ([]byte, error) {
	doc := document.NewDocument()
	doc.Set("name", []byte(c.name))
	doc.Set("key", []byte(strings.Join(c.keys, ",")))
	doc.Set("compression", []byte(c.compression.String()))

	data, err := document.Encode(doc)
	if err != nil {
		return nil, err
	}
	return internal.EncodeRecord(internal.NoCompression, data)
}

func decodeCatalogEntry(rec []byte) (*collection, error) {
	data, err := internal.DecodeRecord(rec)
	if err != nil {
		return nil, err
	}
	doc, err := document.Decode(data)
	if err != nil {
		return nil, err
	}

	entry, err := doc.Project([]string{"name", "key", "compression"})
	if err != nil {
		return nil, err
	}
	name, _ := entry.Get("name")
	keys, _ := entry.Get("key")
	comp, _ := entry.Get("compression")

	c := newCollection(string(name))
	if err := c.setKeys(string(keys)); err != nil {
		return nil, err
	}
	if c.compression, err = internal.ParseCompression(string(comp)); err != nil {
		return nil, err
	}
	return c, nil
}

// commitWrites applies writes in one store transaction and records their versions.
// A store failure puts the environment in shutdown state.
func (env *environment) commitWrites(writes []*write) error {
	if err := env.online(); err != nil {
		return err
	}

	tx, err := env.store.Begin(true)
	if err != nil {
		env.shutdown(err)
		return err
	}
	defer tx.Rollback()

	for _, w := range writes {
		if w.delete {
			err = tx.Delete(w.key)
		} else {
			err = tx.Set(w.key, w.value)
		}
		if err != nil {
			env.shutdown(err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		env.shutdown(err)
		return err
	}

	env.seq++
	for _, w := range writes {
		env.versions[string(w.key)] = env.seq
	}
	env.pruneVersions()
	return nil
}

// read returns the stored record of key, or nil when missing.
func (env *environment) read(key []byte) ([]byte, error) {
	if err := env.online(); err != nil {
		return nil, err
	}

	tx, err := env.store.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	return tx.Get(key)
}

func (env *environment) shutdown(err error) {
	env.status = statusShutdown
	env.fatal = 1
	env.logger.Error("store failure, environment shutting down", zap.Error(err))
}

// pruneVersions drops versions no active transaction can conflict with.
func (env *environment) pruneVersions() {
	if len(env.active) == 0 {
		env.versions = make(map[string]uint64)
		return
	}

	oldest := env.seq
	for tx := range env.active {
		if tx.beginSeq < oldest {
			oldest = tx.beginSeq
		}
	}
	for key, v := range env.versions {
		if v <= oldest {
			delete(env.versions, key)
		}
	}
}

type ctlResource struct {
	env *environment
}

func (c *ctlResource) typeName() string   { return native.TypeCtl }
func (c *ctlResource) owner() *environment { return c.env }
