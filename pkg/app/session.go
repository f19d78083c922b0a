package app

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/favourites"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/geo"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/location"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/source"
	"golang.org/x/sync/errgroup"
)

// Session owns the State and performs the I/O that moves it forward.
// Results that arrive after Close are dropped.
type Session struct {
	source       source.Source
	favourites   *favourites.Store
	locator      location.Provider
	snapshotFile string

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	state State
	index *geo.PlaceIndex
}

// Option customises a Session
type Option func(*Session)

// WithSnapshot saves every good fetch to filename and falls back to it when a fetch fails
func WithSnapshot(filename string) Option {
	return func(s *Session) {
		s.snapshotFile = filename
	}
}

// NewSession wires the collaborators; nothing is loaded until Start
func NewSession(src source.Source, store *favourites.Store, locator location.Provider, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		source:     src,
		favourites: store,
		locator:    locator,
		ctx:        ctx,
		cancel:     cancel,
		state:      NewState(),
		index:      geo.NewPlaceIndex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads favourites, then fetches places and resolves the user location
// concurrently. Neither failure is returned: both degrade and are recorded in
// the State. The only error is cancellation of ctx or of the session.
func (s *Session) Start(ctx context.Context) error {
	ctx, stop := s.bind(ctx)
	defer stop()

	favs := s.favourites.Load(ctx)
	s.apply(ctx, func(st State) State { return st.WithFavourites(favs) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loadPlaces(gctx)
		return nil
	})
	g.Go(func() error {
		s.locate(gctx)
		return nil
	})
	_ = g.Wait()

	return s.done(ctx)
}

// Refresh fetches the place list again
func (s *Session) Refresh(ctx context.Context) error {
	ctx, stop := s.bind(ctx)
	defer stop()

	s.loadPlaces(ctx)
	return s.done(ctx)
}

// Relocate asks the provider for a fresh position
func (s *Session) Relocate(ctx context.Context) error {
	ctx, stop := s.bind(ctx)
	defer stop()

	s.locate(ctx)
	return s.done(ctx)
}

// ToggleFavourite flips name in the favourites set and persists it
func (s *Session) ToggleFavourite(ctx context.Context, name string) models.FavouritesSet {
	favs := s.favourites.Toggle(ctx, name)
	s.mu.Lock()
	s.state = s.state.WithFavourites(favs)
	s.mu.Unlock()
	return favs
}

// SetCategory changes the category filter
func (s *Session) SetCategory(category string) State {
	return s.update(func(st State) State { return st.WithCategory(category) })
}

// SetFavouritesOnly switches the favourites-only view
func (s *Session) SetFavouritesOnly(on bool) State {
	return s.update(func(st State) State { return st.WithFavouritesOnly(on) })
}

// State returns the current state value
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Index returns the spatial index over State().Places
func (s *Session) Index() *geo.PlaceIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// View returns the state together with the index built over its places.
// Index positions refer to the returned State's Places.
func (s *Session) View() (State, *geo.PlaceIndex) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.index
}

// FavouritesPending reports whether a favourites write still needs to reach storage
func (s *Session) FavouritesPending() bool {
	return s.favourites.Pending()
}

// Close cancels in-flight work and retries a pending favourites write
func (s *Session) Close(ctx context.Context) error {
	// under mu so no apply can commit once Close returns
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	return s.favourites.Flush(ctx)
}

func (s *Session) loadPlaces(ctx context.Context) {
	fetched, err := s.source.FetchPlaces(ctx)
	if err == nil {
		s.apply(ctx, func(st State) State { return st.WithPlaces(fetched) })
		if s.snapshotFile != "" && s.done(ctx) == nil {
			if err := source.SaveSnapshot(s.snapshotFile, fetched); err != nil {
				log.Printf("Failed to save place snapshot: %v", err)
			}
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	log.Printf("Failed to fetch places: %v", err)
	if s.snapshotFile != "" && len(s.State().Places) == 0 {
		if snap, snapErr := source.LoadSnapshot(s.snapshotFile); snapErr == nil {
			log.Printf("Using %d places from snapshot taken %s", len(snap.Places), snap.FetchedAt.Format("2006-01-02 15:04"))
			s.apply(ctx, func(st State) State { return st.WithStalePlaces(snap.Places, err) })
			return
		}
	}
	s.apply(ctx, func(st State) State { return st.WithLoadFailure(err) })
}

func (s *Session) locate(ctx context.Context) {
	loc, err := s.locator.Locate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, location.ErrPermissionDenied) {
			log.Println("Location permission denied, distances disabled")
		} else {
			log.Printf("Failed to resolve location: %v", err)
		}
		s.apply(ctx, func(st State) State { return st.WithLocationError(err) })
		return
	}
	s.apply(ctx, func(st State) State { return st.WithUserLocation(loc) })
}

// apply runs transition unless ctx or the session is done, and rebuilds the
// index when the places changed
func (s *Session) apply(ctx context.Context, transition func(State) State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done(ctx) != nil {
		return
	}
	before := s.state.Places
	s.state = transition(s.state)
	if !samePlaces(before, s.state.Places) {
		// a fresh index, so a View taken earlier stays consistent
		index := geo.NewPlaceIndex()
		index.Build(s.state.Places)
		s.index = index
	}
}

func (s *Session) update(transition func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = transition(s.state)
	return s.state
}

// done reports why work bound to ctx should stop, preferring the session's own
// cancellation since the context derived by bind learns of it asynchronously
func (s *Session) done(ctx context.Context) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// bind derives a context that ends with either ctx or the session
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func samePlaces(a, b []models.Place) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
