// Package location resolves the user's position once, on demand.
// A denial is an ordinary outcome, not a failure of the program.
package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
)

// ErrPermissionDenied means the user did not share a position
var ErrPermissionDenied = errors.New("location permission denied")

// Provider answers a one-shot position query
type Provider interface {
	Locate(ctx context.Context) (models.Location, error)
}

// Func adapts a plain function to Provider
type Func func(ctx context.Context) (models.Location, error)

// Locate calls f
func (f Func) Locate(ctx context.Context) (models.Location, error) {
	return f(ctx)
}

// Static always reports the same position, e.g. one given on the command line
type Static struct {
	Position models.Location
}

// Locate returns the fixed position
func (s Static) Locate(ctx context.Context) (models.Location, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	if !s.Position.Valid() {
		return models.Location{}, fmt.Errorf("invalid position %v", s.Position)
	}
	return s.Position, nil
}

// Denied is the provider used when no position is available
type Denied struct{}

// Locate always fails with ErrPermissionDenied
func (Denied) Locate(ctx context.Context) (models.Location, error) {
	return models.Location{}, ErrPermissionDenied
}

// FromOptional picks Static when lat and lon are both set, Denied otherwise
func FromOptional(lat, lon *float64) Provider {
	if lat == nil || lon == nil {
		return Denied{}
	}
	return Static{Position: models.Location{Lat: *lat, Lon: *lon}}
}
