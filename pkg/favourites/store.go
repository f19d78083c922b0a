// Package favourites persists the set of places the user starred.
// Storage problems never reach the caller: reads degrade to an empty set and
// failed writes are remembered and retried.
package favourites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
)

// Key is the storage entry holding the JSON array of favourite names
const Key = "favouritesList"

var (
	ErrStorageRead  = errors.New("storage read failed")
	ErrStorageWrite = errors.New("storage write failed")
)

// Store owns the in-memory favourites and mirrors every change to a Backend
type Store struct {
	backend Backend
	key     string

	mu      sync.Mutex
	current models.FavouritesSet
	pending bool
	lastErr error
}

// NewStore creates a store over backend using the default Key
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		key:     Key,
		current: models.NewFavouritesSet(),
	}
}

// Load reads the persisted set and makes it current. A missing entry, an
// unreadable backend or an unparseable payload all yield the empty set.
func (s *Store) Load(ctx context.Context) models.FavouritesSet {
	loaded, err := s.read(ctx)
	if err != nil {
		log.Printf("Failed to load favourites: %v", err)
		loaded = models.NewFavouritesSet()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = loaded
	s.lastErr = err
	return loaded
}

func (s *Store) read(ctx context.Context) (models.FavouritesSet, error) {
	data, found, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return models.FavouritesSet{}, fmt.Errorf("%w: %v", ErrStorageRead, err)
	}
	if !found || len(data) == 0 {
		return models.NewFavouritesSet(), nil
	}

	var set models.FavouritesSet
	if err := json.Unmarshal(data, &set); err != nil {
		return models.FavouritesSet{}, fmt.Errorf("%w: decode %s: %v", ErrStorageRead, s.key, err)
	}
	return set, nil
}

// Toggle adds name when absent and removes it when present, then persists.
// The returned set is current even if the write failed; see Pending.
func (s *Store) Toggle(ctx context.Context, name string) models.FavouritesSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = s.current.Toggle(name)
	if err := s.persistLocked(ctx); err != nil {
		log.Printf("Failed to save favourites: %v", err)
	}
	return s.current
}

// Current returns the in-memory set
func (s *Store) Current() models.FavouritesSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Pending reports whether the last write failed and the backend is behind
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// LastError returns the most recent storage error, nil after a good write
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Flush retries a failed write. It is a no-op when nothing is pending.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return nil
	}
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.current)
	if err == nil {
		err = s.backend.Set(ctx, s.key, data)
	}
	if err != nil {
		s.pending = true
		s.lastErr = fmt.Errorf("%w: %v", ErrStorageWrite, err)
		return s.lastErr
	}
	s.pending = false
	s.lastErr = nil
	return nil
}
