// Package geo holds the spherical math and the spatial index used to place
// points of interest relative to the user and to the visible map area.
package geo

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
)

// earthRadius is the WGS-84 equatorial radius the mobile client measured with
const earthRadius = 6378.137 // km

// Distance calculates the Haversine distance between two points in kilometers.
// Any NaN or infinite coordinate yields +Inf so unknown positions sort last.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if !finite(lat1) || !finite(lon1) || !finite(lat2) || !finite(lon2) {
		return math.Inf(1)
	}

	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}

// DistanceBetween is Distance for two locations
func DistanceBetween(from, to models.Location) float64 {
	return Distance(from.Lat, from.Lon, to.Lat, to.Lon)
}

// MapsURL builds the Google Maps deep link opened from the list and the map pins:
// https://www.google.com/maps?q=<lat>,<lon>(<name>)
func MapsURL(p models.Place) string {
	return "https://www.google.com/maps?q=" +
		formatCoord(p.Latitude) + "," + formatCoord(p.Longitude) +
		"(" + EncodeURIComponent(p.Name) + ")"
}

// EncodeURIComponent escapes s the way browsers do for a URI component:
// spaces become %20 and !'()* stay literal.
func EncodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	return componentReplacer.Replace(escaped)
}

var componentReplacer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
