// Package places turns the raw place list into what the map and the list show.
// Everything here is pure: no I/O, no shared state.
package places

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/geo"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
)

// ComputeVisible narrows places by favourites and category, then, when the
// user location is known, annotates every place with its distance and sorts
// ascending. Without a location the filtered places keep their input order.
//
// The input slice is not modified; the result never aliases it.
func ComputeVisible(places []models.Place, favourites models.FavouritesSet, filter models.FilterState, user *models.Location) []models.Place {
	result := make([]models.Place, 0, len(places))
	for _, p := range places {
		if filter.ShowFavouritesOnly && !favourites.Contains(p.Name) {
			continue
		}
		if filter.CategoryFilter != "" && p.Category != filter.CategoryFilter {
			continue
		}
		p.Distance = nil
		result = append(result, p)
	}

	if user == nil {
		return result
	}

	for i := range result {
		d := geo.Distance(user.Lat, user.Lon, result[i].Latitude, result[i].Longitude)
		result[i].Distance = &d
	}
	// +Inf compares greater than every finite distance and equal to itself,
	// so places without coordinates stay last in input order
	sort.SliceStable(result, func(i, j int) bool {
		return *result[i].Distance < *result[j].Distance
	})
	return result
}

// NormalizeCategory trims raw and returns it with the first letter upper case
// and the rest lower case. "  MECZET " becomes "Meczet".
func NormalizeCategory(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + strings.ToLower(s[size:])
}
