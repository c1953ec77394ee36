package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"aura/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type storeFactory func(t *testing.T, opts ...Option) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, opts ...Option) Store {
			return NewMemoryStore(opts...)
		},
		"file": func(t *testing.T, opts ...Option) Store {
			return NewFileStore(filepath.Join(t.TempDir(), ".aura", "session.json"), opts...)
		},
		"sqlite": func(t *testing.T, opts ...Option) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "aura.db"), opts...)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_RoundTripAndClear(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)

			_, ok := store.Get()
			assert.False(t, ok, "fresh store has no session")

			want := Session{Token: "t1", User: json.RawMessage(`{"id":1}`)}
			require.NoError(t, store.Set(want))

			got, ok := store.Get()
			require.True(t, ok)
			assert.Equal(t, "t1", got.Token)
			assert.JSONEq(t, `{"id":1}`, string(got.User))

			require.NoError(t, store.Set(Session{Token: "t2", User: json.RawMessage(`{"id":2}`)}))
			got, ok = store.Get()
			require.True(t, ok)
			assert.Equal(t, "t2", got.Token, "Set overwrites")

			require.NoError(t, store.Clear())
			_, ok = store.Get()
			assert.False(t, ok)

			require.NoError(t, store.Clear(), "Clear is idempotent")

			bare := Session{Token: "t3"}
			require.NoError(t, store.Set(bare))
			got, ok = store.Get()
			require.True(t, ok)
			assert.Equal(t, bare, *got, "nil profile round-trips as nil")
		})
	}
}

func TestStore_RejectsEmptyToken(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			assert.ErrorIs(t, store.Set(Session{User: json.RawMessage(`{}`)}), ErrEmptyToken)
		})
	}
}

func TestStore_ExpiredTokenReadsAsAbsentAndIsCleared(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			store := newStore(t, WithClock(clock), WithLogger(zap.New(core)))

			// Inside the buffer counts as expired.
			tok := signedToken(t, jwt.MapClaims{"exp": now.Add(30 * time.Second).Unix()})
			require.NoError(t, store.Set(Session{Token: tok}))

			_, ok := store.Get()
			assert.False(t, ok)
			assert.Equal(t, 1, logs.FilterMessage("session token expired, clearing").Len())

			// Cleared: a later clock would not resurrect it.
			_, ok = store.Get()
			assert.False(t, ok)
			assert.Equal(t, 1, logs.FilterMessage("session token expired, clearing").Len())
		})
	}
}

func TestStore_OpaqueAndExpFreeTokensNeverExpire(t *testing.T) {
	far := func() time.Time { return time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC) }

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t, WithClock(far))

			require.NoError(t, store.Set(Session{Token: "opaque-token"}))
			_, ok := store.Get()
			assert.True(t, ok)

			require.NoError(t, store.Set(Session{Token: signedToken(t, jwt.MapClaims{"sub": "1"})}))
			_, ok = store.Get()
			assert.True(t, ok)
		})
	}
}

func TestSession_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s := Session{Token: signedToken(t, jwt.MapClaims{"exp": now.Add(2 * time.Minute).Unix()})}
	exp, ok := s.Expiry()
	require.True(t, ok)
	assert.Equal(t, now.Add(2*time.Minute).Unix(), exp.Unix())
	assert.False(t, s.ExpiredAt(now))
	assert.True(t, s.ExpiredAt(now.Add(61*time.Second)))
	assert.True(t, s.ExpiredAt(now.Add(time.Hour)))

	_, ok = Session{Token: "not.a.jwt"}.Expiry()
	assert.False(t, ok)
}

func TestSession_Profile(t *testing.T) {
	s := Session{Token: "t", User: json.RawMessage(`{"id":7,"name":"Ada","email":"ada@example.com","extra":true}`)}
	p := s.Profile()
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, "ada@example.com", p.Email)

	assert.Equal(t, Profile{}, Session{Token: "t", User: json.RawMessage(`[1,2]`)}.Profile())
	assert.Equal(t, Profile{}, Session{Token: "t"}.Profile())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(Session{Token: "t1", User: json.RawMessage(`{"id":1}`)}))

	got, _ := store.Get()
	got.Token = "mutated"
	got.User[0] = '['

	again, _ := store.Get()
	assert.Equal(t, "t1", again.Token)
	assert.JSONEq(t, `{"id":1}`, string(again.User))
}

func TestFileStore_FileModeAndLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)
	require.NoError(t, store.Set(Session{Token: "t1", User: json.RawMessage(`{"id":1}`)}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.JSONEq(t, `"t1"`, string(onDisk["token"]))
	assert.JSONEq(t, `{"id":1}`, string(onDisk["user"]))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_NullProfileReadsAsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":"t1","user":null}`), 0600))

	got, ok := NewFileStore(path).Get()
	require.True(t, ok)
	assert.Equal(t, Session{Token: "t1"}, *got)
}

func TestFileStore_CorruptFileReadsAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	core, logs := observer.New(zapcore.WarnLevel)
	store := NewFileStore(path, WithLogger(zap.New(core)))

	_, ok := store.Get()
	assert.False(t, ok)
	assert.Equal(t, 1, logs.Len())

	require.NoError(t, store.Set(Session{Token: "t1"}))
	_, ok = store.Get()
	assert.True(t, ok, "Set recovers from corruption")
}

func TestFileStore_Watch(t *testing.T) {
	dir := t.TempDir()
	writer := NewFileStore(filepath.Join(dir, "session.json"))
	watcher := NewFileStore(filepath.Join(dir, "session.json"))

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := watcher.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.Set(Session{Token: "t1"}))
	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after login")
	}
	s, ok := watcher.Get()
	require.True(t, ok)
	assert.Equal(t, "t1", s.Token)

	// Drain anything coalesced from the write, then observe logout.
	drain(changes)
	require.NoError(t, writer.Clear())
	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after logout")
	}

	cancel()
	for range changes {
	}
}

func drain(ch <-chan struct{}) {
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case <-ch:
		case <-deadline:
			return
		}
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, closeFn, err := Open(config.SessionConfig{Backend: config.SessionBackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	require.NoError(t, closeFn())

	store, closeFn, err = Open(config.SessionConfig{Backend: config.SessionBackendFile, Path: filepath.Join(dir, "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	require.NoError(t, closeFn())

	store, closeFn, err = Open(config.SessionConfig{Backend: config.SessionBackendSQLite, DatabasePath: filepath.Join(dir, "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, closeFn())

	_, closeFn, err = Open(config.SessionConfig{Backend: "redis"})
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
