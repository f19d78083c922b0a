package models

import (
	"encoding/json"
	"math"
)

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite numbers
func (l Location) Valid() bool {
	return isFinite(l.Lat) && isFinite(l.Lon)
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location
	TopRight   Location
}

// Contains reports whether loc lies inside the box, edges included
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Lat >= b.BottomLeft.Lat && loc.Lat <= b.TopRight.Lat &&
		loc.Lon >= b.BottomLeft.Lon && loc.Lon <= b.TopRight.Lon
}

// Place is one point of interest read from the spreadsheet.
// Latitude and Longitude are NaN when the source cell did not parse.
// Distance is set only by the pipeline when the user location is known.
type Place struct {
	Name      string
	Category  string
	Latitude  float64
	Longitude float64
	Address   string
	Extra     map[string]string
	Distance  *float64
}

// Location returns the place coordinates
func (p Place) Location() Location {
	return Location{Lat: p.Latitude, Lon: p.Longitude}
}

// HasDistance reports whether the pipeline annotated this place
func (p Place) HasDistance() bool {
	return p.Distance != nil
}

type placeJSON struct {
	Name      string            `json:"name"`
	Category  string            `json:"category"`
	Latitude  *float64          `json:"latitude"`
	Longitude *float64          `json:"longitude"`
	Address   string            `json:"address,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
	Distance  *float64          `json:"distance_km,omitempty"`
}

// MarshalJSON writes non-finite numbers as null.
// A place with unknown coordinates still has its distance key when annotated.
func (p Place) MarshalJSON() ([]byte, error) {
	out := placeJSON{
		Name:      p.Name,
		Category:  p.Category,
		Latitude:  finiteOrNil(p.Latitude),
		Longitude: finiteOrNil(p.Longitude),
		Address:   p.Address,
		Extra:     p.Extra,
	}
	if p.Distance == nil {
		return json.Marshal(out)
	}
	if d := finiteOrNil(*p.Distance); d != nil {
		out.Distance = d
		return json.Marshal(out)
	}

	// omitempty would drop a nil distance, so spell it out
	type withNullDistance struct {
		placeJSON
		Distance *float64 `json:"distance_km"`
	}
	return json.Marshal(withNullDistance{placeJSON: out})
}

// UnmarshalJSON maps null coordinates back to NaN
func (p *Place) UnmarshalJSON(data []byte) error {
	var in placeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Place{
		Name:      in.Name,
		Category:  in.Category,
		Latitude:  math.NaN(),
		Longitude: math.NaN(),
		Address:   in.Address,
		Extra:     in.Extra,
		Distance:  in.Distance,
	}
	if in.Latitude != nil {
		p.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		p.Longitude = *in.Longitude
	}
	return nil
}

// FilterState holds the transient list filters chosen by the user
type FilterState struct {
	CategoryFilter     string `json:"category"`
	ShowFavouritesOnly bool   `json:"favourites_only"`
}

// FavouritesSet is an immutable set of place names.
// Insertion order is kept so the persisted JSON array stays stable.
type FavouritesSet struct {
	names []string
	index map[string]struct{}
}

// NewFavouritesSet builds a set from names; duplicates collapse onto the first occurrence
func NewFavouritesSet(names ...string) FavouritesSet {
	s := FavouritesSet{
		names: make([]string, 0, len(names)),
		index: make(map[string]struct{}, len(names)),
	}
	for _, n := range names {
		if _, ok := s.index[n]; ok {
			continue
		}
		s.index[n] = struct{}{}
		s.names = append(s.names, n)
	}
	return s
}

// Contains reports whether name is a favourite
func (s FavouritesSet) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of favourites
func (s FavouritesSet) Len() int {
	return len(s.names)
}

// Names returns a copy of the favourite names in insertion order
func (s FavouritesSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Toggle returns a new set with name added if absent or removed if present
func (s FavouritesSet) Toggle(name string) FavouritesSet {
	if !s.Contains(name) {
		return NewFavouritesSet(append(s.Names(), name)...)
	}
	kept := make([]string, 0, len(s.names))
	for _, n := range s.names {
		if n != name {
			kept = append(kept, n)
		}
	}
	return NewFavouritesSet(kept...)
}

// Equal reports whether both sets hold the same names, ignoring order
func (s FavouritesSet) Equal(other FavouritesSet) bool {
	if len(s.names) != len(other.names) {
		return false
	}
	for _, n := range s.names {
		if !other.Contains(n) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a JSON array of names
func (s FavouritesSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON decodes a JSON array of names
func (s *FavouritesSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewFavouritesSet(names...)
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteOrNil(f float64) *float64 {
	if !isFinite(f) {
		return nil
	}
	return &f
}
