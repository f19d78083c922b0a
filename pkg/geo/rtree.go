package geo

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
)

const (
	tolerance   = 1e-6
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// spatialItem wraps a place position for R-Tree indexing
type spatialItem struct {
	pos  int
	loc  models.Location
	rect *rtreego.Rect
}

func (si *spatialItem) Bounds() *rtreego.Rect {
	return si.rect
}

// PlaceIndex is a thread-safe R-Tree over the positions of a place list.
// Queries answer with indexes into the slice passed to Build so callers keep
// working with their own Place values.
type PlaceIndex struct {
	tree      *rtreego.Rtree
	mu        sync.RWMutex
	itemCount atomic.Int64
	skipped   atomic.Int64
}

// NewPlaceIndex creates an empty index
func NewPlaceIndex() *PlaceIndex {
	return &PlaceIndex{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// Build replaces the index contents with places.
// Places without valid coordinates are left out of the tree.
func (g *PlaceIndex) Build(places []models.Place) {
	items := make([]rtreego.Spatial, 0, len(places))
	skipped := int64(0)
	for i, p := range places {
		loc := p.Location()
		if !loc.Valid() {
			skipped++
			continue
		}
		rect := rtreego.Point{loc.Lat, loc.Lon}.ToRect(tolerance)
		items = append(items, &spatialItem{pos: i, loc: loc, rect: rect})
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	for _, item := range items {
		g.tree.Insert(item)
	}
	g.itemCount.Store(int64(len(items)))
	g.skipped.Store(skipped)
}

// QueryBox returns the positions of all places inside box, in input order
func (g *PlaceIndex) QueryBox(box models.BoundingBox) ([]int, error) {
	bounds, err := boxRect(box)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	results := g.tree.SearchIntersect(bounds)
	g.mu.RUnlock()

	positions := make([]int, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialItem)
		if !ok {
			continue
		}
		// Strict boundary check, the tree matches on padded rects
		if box.Contains(item.loc) {
			positions = append(positions, item.pos)
		}
	}
	sort.Ints(positions)
	return positions, nil
}

// QueryRadius returns the positions of all places within radiusKm of center, in input order
func (g *PlaceIndex) QueryRadius(center models.Location, radiusKm float64) ([]int, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("invalid radius search: center %v", center)
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("invalid radius search: radius %.3f km", radiusKm)
	}

	// Convert radius to degrees (approximation); widen longitude towards the poles
	latDeg := (radiusKm / earthRadius) * (180 / math.Pi)
	lonDeg := latDeg
	if c := math.Cos(center.Lat * math.Pi / 180); c > 0.01 {
		lonDeg = latDeg / c
	} else {
		lonDeg = 180
	}

	box := models.BoundingBox{
		BottomLeft: models.Location{Lat: center.Lat - latDeg, Lon: center.Lon - lonDeg},
		TopRight:   models.Location{Lat: center.Lat + latDeg, Lon: center.Lon + lonDeg},
	}
	bounds, err := boxRect(box)
	if err != nil {
		return nil, fmt.Errorf("invalid radius search: %w", err)
	}

	g.mu.RLock()
	results := g.tree.SearchIntersect(bounds)
	g.mu.RUnlock()

	positions := make([]int, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialItem)
		if !ok {
			continue
		}
		if DistanceBetween(center, item.loc) <= radiusKm {
			positions = append(positions, item.pos)
		}
	}
	sort.Ints(positions)
	return positions, nil
}

// Nearest returns the positions of the k places closest to center, nearest first.
// The tree ranks candidates in degree space; they are re-ranked by great-circle distance.
func (g *PlaceIndex) Nearest(center models.Location, k int) []int {
	if k <= 0 || !center.Valid() {
		return []int{}
	}

	g.mu.RLock()
	// Over-fetch so the haversine re-ranking can correct the planar order
	results := g.tree.NearestNeighbors(k*2, rtreego.Point{center.Lat, center.Lon})
	g.mu.RUnlock()

	type candidate struct {
		pos      int
		distance float64
	}
	candidates := make([]candidate, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialItem)
		if !ok || item == nil {
			continue
		}
		candidates = append(candidates, candidate{
			pos:      item.pos,
			distance: DistanceBetween(center, item.loc),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance == candidates[j].distance {
			return candidates[i].pos < candidates[j].pos
		}
		return candidates[i].distance < candidates[j].distance
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	positions := make([]int, len(candidates))
	for i, c := range candidates {
		positions[i] = c.pos
	}
	return positions
}

// Size returns the number of indexed places
func (g *PlaceIndex) Size() int64 {
	return g.itemCount.Load()
}

// Skipped returns how many places were left out for lacking coordinates
func (g *PlaceIndex) Skipped() int64 {
	return g.skipped.Load()
}

func boxRect(box models.BoundingBox) (*rtreego.Rect, error) {
	if !box.BottomLeft.Valid() || !box.TopRight.Valid() {
		return nil, fmt.Errorf("invalid bounding box: non-finite corner")
	}
	bottomLeft := rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lon}
	rectSize := []float64{
		math.Max(box.TopRight.Lat-box.BottomLeft.Lat, tolerance),
		math.Max(box.TopRight.Lon-box.BottomLeft.Lon, tolerance),
	}
	if box.TopRight.Lat < box.BottomLeft.Lat || box.TopRight.Lon < box.BottomLeft.Lon {
		return nil, fmt.Errorf("invalid bounding box: top-right below bottom-left")
	}

	bounds, err := rtreego.NewRect(bottomLeft, rectSize)
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}
	return bounds, nil
}
