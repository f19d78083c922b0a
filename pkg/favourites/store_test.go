package favourites

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyBackend wraps a MemoryBackend and fails on demand
type flakyBackend struct {
	*MemoryBackend
	mu       sync.Mutex
	failGet  bool
	failSet  bool
	setCalls int
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{MemoryBackend: NewMemoryBackend()}
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, false, errors.New("disk on fire")
	}
	return f.MemoryBackend.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.setCalls++
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Set(ctx, key, value)
}

func TestLoadEmpty(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	set := store.Load(context.Background())
	assert.Equal(t, 0, set.Len())
	assert.NoError(t, store.LastError())
}

func TestLoadPersisted(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Set(context.Background(), Key, []byte(`["A","B","A"]`)))

	set := NewStore(backend).Load(context.Background())
	assert.Equal(t, []string{"A", "B"}, set.Names())
}

func TestLoadUnparseable(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Set(context.Background(), Key, []byte(`{not json`)))

	store := NewStore(backend)
	set := store.Load(context.Background())
	assert.Equal(t, 0, set.Len())
	assert.ErrorIs(t, store.LastError(), ErrStorageRead)
}

func TestLoadBackendFailure(t *testing.T) {
	backend := newFlakyBackend()
	backend.failGet = true

	store := NewStore(backend)
	set := store.Load(context.Background())
	assert.Equal(t, 0, set.Len())
	assert.ErrorIs(t, store.LastError(), ErrStorageRead)
}

func TestTogglePersists(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewStore(backend)
	store.Load(context.Background())

	set := store.Toggle(context.Background(), "A")
	assert.True(t, set.Contains("A"))

	data, found, err := backend.Get(context.Background(), Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `["A"]`, string(data))

	// a fresh store sees the persisted value
	reloaded := NewStore(backend).Load(context.Background())
	assert.True(t, reloaded.Contains("A"))
}

func TestToggleTwiceIsIdentity(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	original := store.Load(context.Background())

	store.Toggle(context.Background(), "A")
	again := store.Toggle(context.Background(), "A")
	assert.True(t, again.Equal(original))
}

func TestToggleWriteFailureKeepsMemoryState(t *testing.T) {
	backend := newFlakyBackend()
	store := NewStore(backend)
	store.Load(context.Background())

	backend.failSet = true
	set := store.Toggle(context.Background(), "A")
	assert.True(t, set.Contains("A"))
	assert.True(t, store.Current().Contains("A"))
	assert.True(t, store.Pending())
	assert.ErrorIs(t, store.LastError(), ErrStorageWrite)

	// a later toggle is not blocked
	set = store.Toggle(context.Background(), "B")
	assert.True(t, set.Contains("B"))

	backend.failSet = false
	require.NoError(t, store.Flush(context.Background()))
	assert.False(t, store.Pending())

	data, found, err := backend.Get(context.Background(), Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `["A","B"]`, string(data))
}

func TestFlushNoopWhenClean(t *testing.T) {
	backend := newFlakyBackend()
	store := NewStore(backend)
	require.NoError(t, store.Flush(context.Background()))
	assert.Equal(t, 0, backend.setCalls)
}

func TestConcurrentTogglesSerialise(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewStore(backend)
	store.Load(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Toggle(context.Background(), "A")
		}()
	}
	wg.Wait()

	// 50 toggles cancel out; memory and backend agree
	assert.False(t, store.Current().Contains("A"))
	reloaded := NewStore(backend).Load(context.Background())
	assert.True(t, reloaded.Equal(store.Current()))
}

func TestFileBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "favs")
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)

	_, found, err := backend.Get(context.Background(), Key)
	require.NoError(t, err)
	assert.False(t, found)

	store := NewStore(backend)
	store.Load(context.Background())
	store.Toggle(context.Background(), "Meczet Centralny")

	raw, err := os.ReadFile(filepath.Join(dir, Key+".json"))
	require.NoError(t, err)
	assert.JSONEq(t, `["Meczet Centralny"]`, string(raw))

	reopened, err := NewFileBackend(dir)
	require.NoError(t, err)
	assert.True(t, NewStore(reopened).Load(context.Background()).Contains("Meczet Centralny"))
}

func TestFileBackendSanitisesKeys(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)

	require.NoError(t, backend.Set(context.Background(), "../escape", []byte(`[]`)))
	_, err = os.Stat(filepath.Join(dir, ".._escape.json"))
	assert.NoError(t, err)
}
