// Package app holds the application state as an immutable value and the
// session that feeds it from the place source, the favourites store and the
// location provider.
package app

import (
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/places"
)

// LoadStatus tells "nothing yet" apart from "failed" and from "loaded, empty"
type LoadStatus int

const (
	StatusPending LoadStatus = iota
	StatusLoaded
	StatusFailed
)

func (s LoadStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// MarshalText lets the status appear as a word in JSON
func (s LoadStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is one snapshot of everything the list and the map derive from.
// Transitions return a modified copy; a State is never changed in place.
type State struct {
	Places       []models.Place
	Status       LoadStatus
	LoadErr      error
	Stale        bool // Places came from a snapshot after a failed fetch
	Favourites   models.FavouritesSet
	Filter       models.FilterState
	UserLocation *models.Location
	LocationErr  error
}

// NewState returns the state before anything has loaded
func NewState() State {
	return State{
		Places:     []models.Place{},
		Status:     StatusPending,
		Favourites: models.NewFavouritesSet(),
	}
}

// WithPlaces records a successful fetch
func (s State) WithPlaces(p []models.Place) State {
	s.Places = clonePlaces(p)
	s.Status = StatusLoaded
	s.LoadErr = nil
	s.Stale = false
	return s
}

// WithLoadFailure records a failed fetch and keeps whatever was loaded before
func (s State) WithLoadFailure(err error) State {
	s.Status = StatusFailed
	s.LoadErr = err
	return s
}

// WithStalePlaces records a failed fetch answered from an older copy of the list
func (s State) WithStalePlaces(p []models.Place, err error) State {
	s.Places = clonePlaces(p)
	s.Status = StatusFailed
	s.LoadErr = err
	s.Stale = true
	return s
}

// WithFavourites replaces the favourites set
func (s State) WithFavourites(f models.FavouritesSet) State {
	s.Favourites = f
	return s
}

// WithCategory sets the category filter; "" clears it
func (s State) WithCategory(category string) State {
	s.Filter.CategoryFilter = category
	return s
}

// WithFavouritesOnly switches between all places and favourites
func (s State) WithFavouritesOnly(on bool) State {
	s.Filter.ShowFavouritesOnly = on
	return s
}

// WithUserLocation records a resolved position
func (s State) WithUserLocation(loc models.Location) State {
	s.UserLocation = &loc
	s.LocationErr = nil
	return s
}

// WithLocationError records a denied or failed lookup and drops any old position
func (s State) WithLocationError(err error) State {
	s.UserLocation = nil
	s.LocationErr = err
	return s
}

// Visible derives the displayed list
func (s State) Visible() []models.Place {
	return places.ComputeVisible(s.Places, s.Favourites, s.Filter, s.UserLocation)
}

func clonePlaces(in []models.Place) []models.Place {
	out := make([]models.Place, len(in))
	copy(out, in)
	return out
}
