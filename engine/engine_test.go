package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ostafen/sophia/document"
	"github.com/ostafen/sophia/internal"
	"github.com/ostafen/sophia/native"
	"github.com/ostafen/sophia/store"
	"github.com/ostafen/sophia/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

var errInjected = errors.New("injected write failure")

// brokenStore fails every update transaction once broken is set.
type brokenStore struct {
	store.Store
	broken bool
}

func (s *brokenStore) Begin(update bool) (store.Tx, error) {
	if update && s.broken {
		return nil, errInjected
	}
	return s.Store.Begin(update)
}

type fixture struct {
	t   *testing.T
	e   *Engine
	env native.Pointer
	ctl native.Pointer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	e := New(opts...)

	env := e.Env()
	require.NotEqual(t, native.Nil, env)
	ctl := e.Ctl(env)
	require.NotEqual(t, native.Nil, ctl)

	f := &fixture{t: t, e: e, env: env, ctl: ctl}
	f.set("sophia.backend", BackendMemory)
	t.Cleanup(func() { e.Destroy(env) })
	return f
}

func (f *fixture) set(path, value string) {
	require.Equal(f.t, native.StatusOK, f.e.SetString(f.ctl, path, value), f.diagnostic())
}

func (f *fixture) open() {
	require.Equal(f.t, native.StatusOK, f.e.Open(f.env), f.diagnostic())
}

func (f *fixture) diagnostic() string {
	p := f.e.GetPath(f.ctl, native.ErrorPath)
	require.NotEqual(f.t, native.Nil, p)
	defer f.e.Destroy(p)

	v, ok := f.e.GetField(p, native.ValueField)
	require.True(f.t, ok)
	return string(v)
}

func (f *fixture) scalar(path string) string {
	p := f.e.GetPath(f.ctl, path)
	require.NotEqual(f.t, native.Nil, p, f.diagnostic())
	defer f.e.Destroy(p)

	v, ok := f.e.GetField(p, native.ValueField)
	require.True(f.t, ok)
	return string(v)
}

func (f *fixture) db(name string) native.Pointer {
	p := f.e.GetPath(f.ctl, "db."+name)
	require.NotEqual(f.t, native.Nil, p, f.diagnostic())
	return p
}

func (f *fixture) object(db native.Pointer, fields ...string) native.Pointer {
	o := f.e.Object(db)
	require.NotEqual(f.t, native.Nil, o)
	for i := 0; i+1 < len(fields); i += 2 {
		require.Equal(f.t, native.StatusOK, f.e.SetField(o, fields[i], []byte(fields[i+1])))
	}
	return o
}

func (f *fixture) put(target, db native.Pointer, fields ...string) int {
	o := f.object(db, fields...)
	defer f.e.Destroy(o)
	return f.e.Set(target, o)
}

func (f *fixture) get(target, db native.Pointer, key string) (string, bool) {
	o := f.object(db, "key", key)
	defer f.e.Destroy(o)

	res := f.e.Get(target, o)
	if res == native.Nil {
		return "", false
	}
	defer f.e.Destroy(res)

	v, ok := f.e.GetField(res, "value")
	return string(v), ok
}

func TestHandleTypes(t *testing.T) {
	f := newFixture(t)
	f.set("db", "items")
	f.open()

	db := f.db("items")
	o := f.object(db)
	tx := f.e.Begin(f.env)
	c := f.e.Cursor(db, o)

	require.Equal(t, native.TypeEnv, f.e.Type(f.env))
	require.Equal(t, native.TypeCtl, f.e.Type(f.ctl))
	require.Equal(t, native.TypeDatabase, f.e.Type(db))
	require.Equal(t, native.TypeObject, f.e.Type(o))
	require.Equal(t, native.TypeTransaction, f.e.Type(tx))
	require.Equal(t, native.TypeCursor, f.e.Type(c))

	for _, p := range []native.Pointer{c, tx, o, db} {
		require.Equal(t, native.StatusOK, f.e.Destroy(p))
		require.Equal(t, "", f.e.Type(p))
		require.Equal(t, native.StatusError, f.e.Destroy(p))
	}
}

func TestCtlIsOwnedByEnv(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, native.StatusError, f.e.Destroy(f.ctl))
	require.Contains(t, f.diagnostic(), "owned by its environment")
	require.Equal(t, native.TypeCtl, f.e.Type(f.ctl))

	require.Equal(t, native.StatusOK, f.e.Destroy(f.env))
	require.Equal(t, "", f.e.Type(f.ctl))
	require.Equal(t, native.Nil, f.e.Ctl(f.env))
}

func TestEnvDestroyReleasesChildren(t *testing.T) {
	f := newFixture(t)
	f.set("db", "items")
	f.open()

	db := f.db("items")
	o := f.object(db)
	tx := f.e.Begin(f.env)

	require.Equal(t, native.StatusOK, f.e.Destroy(f.env))
	for _, p := range []native.Pointer{db, o, tx} {
		require.Equal(t, "", f.e.Type(p))
	}
}

func TestErrorPathIsNotCleared(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, native.StatusError, f.e.SetString(f.ctl, "sophia.version", "1"))
	require.Equal(t, "sophia.version: path is read-only", f.diagnostic())
	require.Equal(t, "sophia.version: path is read-only", f.diagnostic())

	require.Equal(t, Version, f.scalar("sophia.version"))
	require.Equal(t, "", f.diagnostic())
}

func TestMissingFieldDiagnostic(t *testing.T) {
	f := newFixture(t)

	p := f.e.GetPath(f.ctl, "sophia.status")
	require.NotEqual(t, native.Nil, p)
	defer f.e.Destroy(p)

	_, ok := f.e.GetField(p, "other")
	require.False(t, ok)
	require.Equal(t, "field not found: other", f.diagnostic())

	require.Equal(t, native.StatusError, f.e.SetField(p, "value", []byte("x")))
	require.Equal(t, "object is read-only", f.diagnostic())
}

func TestOpenRequiresPath(t *testing.T) {
	f := newFixture(t)
	f.set("sophia.backend", BackendBolt)

	require.Equal(t, native.StatusError, f.e.Open(f.env))
	require.Equal(t, "sophia.path is not set", f.diagnostic())
	require.Equal(t, statusOffline, f.scalar("sophia.status"))

	f.set("sophia.backend", "nope")
	require.Equal(t, native.StatusError, f.e.Open(f.env))
	require.Contains(t, f.diagnostic(), "unknown backend")
}

func TestSetGetDelete(t *testing.T) {
	f := newFixture(t)
	f.set("db", "items")
	f.open()

	db := f.db("items")
	defer f.e.Destroy(db)

	require.Equal(t, native.StatusOK, f.put(db, db, "key", "a", "value", "1"))
	v, ok := f.get(db, db, "a")
	require.True(t, ok)
	require.Equal(t, "1", v)

	o := f.object(db, "key", "a")
	require.Equal(t, native.StatusOK, f.e.Delete(db, o))
	require.Equal(t, native.StatusError, f.e.Delete(db, o))
	require.Equal(t, native.MsgNotFound, f.diagnostic())
	f.e.Destroy(o)

	_, ok = f.get(db, db, "a")
	require.False(t, ok)
	require.Equal(t, native.MsgNotFound, f.diagnostic())

	require.Equal(t, native.StatusError, f.put(db, db, "value", "1"))
	require.Equal(t, `missing key field "key"`, f.diagnostic())
}

func TestObjectBoundToDatabase(t *testing.T) {
	f := newFixture(t)
	f.set("db", "a")
	f.set("db", "b")
	f.open()

	a, b := f.db("a"), f.db("b")
	defer f.e.Destroy(a)
	defer f.e.Destroy(b)

	require.Equal(t, native.StatusError, f.put(b, a, "key", "x"))
	require.Equal(t, "object belongs to database a, not b", f.diagnostic())
}

func TestForeignObjectsAreRejected(t *testing.T) {
	f := newFixture(t)
	f.set("db", "a")
	f.set("db", "b")
	f.open()

	a, b := f.db("a"), f.db("b")
	defer f.e.Destroy(a)
	defer f.e.Destroy(b)

	other := f.e.Env()
	defer f.e.Destroy(other)
	otherCtl := f.e.Ctl(other)
	require.Equal(t, native.StatusOK, f.e.SetString(otherCtl, "sophia.backend", BackendMemory))
	require.Equal(t, native.StatusOK, f.e.SetString(otherCtl, "db", "a"))
	require.Equal(t, native.StatusOK, f.e.Open(other))
	otherDb := f.e.GetPath(otherCtl, "db.a")
	require.NotEqual(t, native.Nil, otherDb)

	tx := f.e.Begin(f.env)
	defer f.e.Destroy(tx)

	require.Equal(t, native.StatusError, f.put(tx, otherDb, "key", "x"))
	require.Equal(t, "object belongs to another environment", f.diagnostic())

	filter := f.object(b)
	defer f.e.Destroy(filter)
	require.Equal(t, native.Nil, f.e.Cursor(a, filter))
	require.Equal(t, "filter object does not belong to database a", f.diagnostic())

	foreign := f.object(otherDb)
	defer f.e.Destroy(foreign)
	require.Equal(t, native.Nil, f.e.Cursor(a, foreign))
	require.Equal(t, "filter object does not belong to database a", f.diagnostic())
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	f := newFixture(t)
	f.set("db", "items")
	f.open()

	db := f.db("items")
	defer f.e.Destroy(db)

	tx := f.e.Begin(f.env)
	require.NotEqual(t, native.Nil, tx)

	require.Equal(t, native.StatusOK, f.put(tx, db, "key", "a", "value", "tx"))

	v, ok := f.get(tx, db, "a")
	require.True(t, ok)
	require.Equal(t, "tx", v)

	_, ok = f.get(db, db, "a")
	require.False(t, ok)

	require.Equal(t, native.StatusOK, f.e.Commit(tx))
	v, ok = f.get(db, db, "a")
	require.True(t, ok)
	require.Equal(t, "tx", v)

	require.Equal(t, native.StatusError, f.e.Commit(tx))
	require.Equal(t, ErrTxDone.Error(), f.diagnostic())
	require.Equal(t, native.StatusOK, f.e.Destroy(tx))
}

func TestTransactionConflict(t *testing.T) {
	f := newFixture(t)
	f.set("db", "items")
	f.open()

	db := f.db("items")
	defer f.e.Destroy(db)

	t1 := f.e.Begin(f.env)
	t2 := f.e.Begin(f.env)
	defer f.e.Destroy(t1)
	defer f.e.Destroy(t2)

	require.Equal(t, native.StatusOK, f.put(t1, db, "key", "a", "value", "1"))
	require.Equal(t, native.StatusOK, f.put(t2, db, "key", "a", "value", "2"))

	require.Equal(t, native.StatusOK, f.e.Commit(t1))
	require.Equal(t, native.StatusRollback, f.e.Commit(t2))
	require.Equal(t, native.MsgConflict, f.diagnostic())

	v, _ := f.get(db, db, "a")
	require.Equal(t, "1", v)
}

func TestDisjointTransactionsCommit(t *testing.T) {
	f := newFixture(t)
	f.set("db", "items")
	f.open()

	db := f.db("items")
	defer f.e.Destroy(db)

	t1 := f.e.Begin(f.env)
	t2 := f.e.Begin(f.env)
	defer f.e.Destroy(t1)
	defer f.e.Destroy(t2)

	require.Equal(t, native.StatusOK, f.put(t1, db, "key", "a"))
	require.Equal(t, native.StatusOK, f.put(t2, db, "key", "b"))
	require.Equal(t, native.StatusOK, f.e.Commit(t1))
	require.Equal(t, native.StatusOK, f.e.Commit(t2))
	require.Equal(t, "2", f.scalar("db.items.count"))
}

func TestStoreFailureShutsDown(t *testing.T) {
	s := &brokenStore{}
	f := newFixture(t, WithBackend("broken", func(dir string, logger *zap.Logger) (store.Store, error) {
		inner, err := memory.Open(dir, logger)
		s.Store = inner
		return s, err
	}))
	f.set("sophia.backend", "broken")
	f.set("sophia.path", t.TempDir())
	f.set("db", "items")
	f.open()

	db := f.db("items")
	defer f.e.Destroy(db)

	require.Equal(t, 0, f.e.Error(f.env))

	s.broken = true
	require.Equal(t, native.StatusError, f.put(db, db, "key", "a"))
	require.Equal(t, errInjected.Error(), f.diagnostic())

	require.Equal(t, 1, f.e.Error(f.env))
	require.Equal(t, statusShutdown, f.scalar("sophia.status"))
	require.Equal(t, native.Nil, f.e.Begin(f.env))
	require.Equal(t, ErrShutdown.Error(), f.diagnostic())
}

func TestBackendReceivesEnvLogger(t *testing.T) {
	var got *zap.Logger
	f := newFixture(t, WithBackend("capture", func(dir string, logger *zap.Logger) (store.Store, error) {
		got = logger
		return memory.Open(dir, logger)
	}))
	f.set("sophia.backend", "capture")
	f.set("sophia.path", t.TempDir())
	f.open()

	require.NotNil(t, got)
	require.True(t, got.Core().Enabled(zapcore.DebugLevel))
}

func TestCorruptedCatalogEntry(t *testing.T) {
	s, err := memory.Open("", zap.NewNop())
	require.NoError(t, err)

	doc := document.NewDocument()
	doc.Set("key", []byte("key"))
	doc.Set("compression", []byte("none"))
	data, err := document.Encode(doc)
	require.NoError(t, err)
	rec, err := internal.EncodeRecord(internal.NoCompression, data)
	require.NoError(t, err)

	tx, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx.Set(internal.CatalogKey("items"), rec))
	require.NoError(t, tx.Commit())

	f := newFixture(t, WithBackend("seeded", func(string, *zap.Logger) (store.Store, error) {
		return s, nil
	}))
	f.set("sophia.backend", "seeded")
	f.set("sophia.path", t.TempDir())

	require.Equal(t, native.StatusError, f.e.Open(f.env))
	require.Equal(t, `corrupted catalog entry: missing field "name"`, f.diagnostic())
}

func TestCatalogKeyMismatch(t *testing.T) {
	dir := t.TempDir()

	f := newFixture(t)
	f.set("sophia.backend", BackendBolt)
	f.set("sophia.path", dir)
	f.set("db", "items")
	f.set("db.items.key", "a,b")
	f.open()
	require.Equal(t, native.StatusOK, f.e.Destroy(f.env))

	g := newFixture(t)
	g.set("sophia.backend", BackendBolt)
	g.set("sophia.path", dir)
	g.set("db", "items")
	require.Equal(t, native.StatusError, g.e.Open(g.env))
	require.Equal(t, "key of database items is key, stored definition is a,b", g.diagnostic())

	h := newFixture(t)
	h.set("sophia.backend", BackendBolt)
	h.set("sophia.path", dir)
	h.open()
	require.Equal(t, "a,b", h.scalar("db.items.key"))
}

func TestCursorBatches(t *testing.T) {
	f := newFixture(t)
	f.set("db", "items")
	f.open()

	db := f.db("items")
	defer f.e.Destroy(db)

	n := cursorBatchSize*2 + 5
	for i := 0; i < n; i++ {
		require.Equal(t, native.StatusOK, f.put(db, db, "key", fmt.Sprintf("%04d", i)))
	}

	filter := f.object(db, "order", "<")
	defer f.e.Destroy(filter)

	c := f.e.Cursor(db, filter)
	require.NotEqual(t, native.Nil, c)
	defer f.e.Destroy(c)

	prev := ""
	count := 0
	for {
		o := f.e.Next(c)
		if o == native.Nil {
			break
		}
		k, ok := f.e.GetField(o, "key")
		require.True(t, ok)
		if prev != "" {
			require.Less(t, string(k), prev)
		}
		prev = string(k)
		count++
		f.e.Destroy(o)
	}
	require.Equal(t, n, count)
	require.Equal(t, "", f.diagnostic())
	require.Equal(t, native.Nil, f.e.Next(c))
}

func TestCursorStartKey(t *testing.T) {
	f := newFixture(t)
	f.set("db", "items")
	f.open()

	db := f.db("items")
	defer f.e.Destroy(db)

	for _, k := range []string{"a", "b", "c", "d"} {
		require.Equal(t, native.StatusOK, f.put(db, db, "key", k))
	}

	scan := func(fields ...string) []string {
		filter := f.object(db, fields...)
		defer f.e.Destroy(filter)

		c := f.e.Cursor(db, filter)
		require.NotEqual(t, native.Nil, c, f.diagnostic())
		defer f.e.Destroy(c)

		keys := make([]string, 0)
		for o := f.e.Next(c); o != native.Nil; o = f.e.Next(c) {
			k, _ := f.e.GetField(o, "key")
			keys = append(keys, string(k))
			f.e.Destroy(o)
		}
		return keys
	}

	require.Equal(t, []string{"b", "c", "d"}, scan("key", "b"))
	require.Equal(t, []string{"c", "d"}, scan("key", "b", "order", ">"))
	require.Equal(t, []string{"b", "a"}, scan("key", "b", "order", "<="))
	require.Equal(t, []string{"a"}, scan("key", "b", "order", "<"))
	require.Equal(t, []string{"d", "c", "b", "a"}, scan("order", "<="))
}
