package places

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlaces() []models.Place {
	return []models.Place{
		{Name: "A", Category: "Sklep", Latitude: 0, Longitude: 0},
		{Name: "B", Category: "Meczet", Latitude: 0, Longitude: 1},
	}
}

func names(places []models.Place) []string {
	out := make([]string, len(places))
	for i, p := range places {
		out[i] = p.Name
	}
	return out
}

func TestComputeVisibleWithLocation(t *testing.T) {
	user := &models.Location{Lat: 0, Lon: 0}
	got := ComputeVisible(samplePlaces(), models.NewFavouritesSet(), models.FilterState{}, user)

	require.Len(t, got, 2)
	assert.Equal(t, []string{"A", "B"}, names(got))
	require.True(t, got[0].HasDistance())
	require.True(t, got[1].HasDistance())
	assert.InDelta(t, 0.0, *got[0].Distance, 1e-9)
	assert.InDelta(t, 111.3, *got[1].Distance, 0.1)
}

func TestComputeVisibleFavouritesOnly(t *testing.T) {
	favourites := models.NewFavouritesSet().Toggle("A")
	filter := models.FilterState{ShowFavouritesOnly: true}

	got := ComputeVisible(samplePlaces(), favourites, filter, nil)
	assert.Equal(t, []string{"A"}, names(got))
	assert.False(t, got[0].HasDistance())
}

func TestComputeVisibleCategory(t *testing.T) {
	got := ComputeVisible(samplePlaces(), models.NewFavouritesSet(), models.FilterState{CategoryFilter: "Meczet"}, nil)
	assert.Equal(t, []string{"B"}, names(got))

	// comparison is exact, normalisation happened at ingestion
	got = ComputeVisible(samplePlaces(), models.NewFavouritesSet(), models.FilterState{CategoryFilter: "meczet"}, nil)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestComputeVisibleEmptyInput(t *testing.T) {
	got := ComputeVisible(nil, models.NewFavouritesSet(), models.FilterState{}, &models.Location{Lat: 52, Lon: 21})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComputeVisibleSortsByDistance(t *testing.T) {
	places := []models.Place{
		{Name: "Gdańsk", Latitude: 54.3520, Longitude: 18.6466},
		{Name: "Kraków", Latitude: 50.0647, Longitude: 19.9450},
		{Name: "Warszawa", Latitude: 52.2297, Longitude: 21.0122},
	}
	user := &models.Location{Lat: 52.23, Lon: 21.01}

	got := ComputeVisible(places, models.NewFavouritesSet(), models.FilterState{}, user)
	assert.Equal(t, []string{"Warszawa", "Kraków", "Gdańsk"}, names(got))
}

func TestComputeVisibleNaNCoordinatesSortLast(t *testing.T) {
	places := []models.Place{
		{Name: "broken-1", Latitude: math.NaN(), Longitude: 21},
		{Name: "far", Latitude: 50, Longitude: 20},
		{Name: "broken-2", Latitude: 52, Longitude: math.NaN()},
		{Name: "near", Latitude: 52.2, Longitude: 21},
	}
	user := &models.Location{Lat: 52.2, Lon: 21}

	got := ComputeVisible(places, models.NewFavouritesSet(), models.FilterState{}, user)
	assert.Equal(t, []string{"near", "far", "broken-1", "broken-2"}, names(got))
	assert.True(t, math.IsInf(*got[2].Distance, 1))
	assert.True(t, math.IsInf(*got[3].Distance, 1))
}

func TestComputeVisibleInfiniteCoordinatesSortLast(t *testing.T) {
	places := []models.Place{
		{Name: "north", Latitude: math.Inf(1), Longitude: 21},
		{Name: "far", Latitude: 50, Longitude: 20},
		{Name: "west", Latitude: 52, Longitude: math.Inf(-1)},
		{Name: "near", Latitude: 52.2, Longitude: 21},
	}
	user := &models.Location{Lat: 52.2, Lon: 21}

	got := ComputeVisible(places, models.NewFavouritesSet(), models.FilterState{}, user)
	assert.Equal(t, []string{"near", "far", "north", "west"}, names(got))
	for i := 1; i < len(got); i++ {
		assert.False(t, math.IsNaN(*got[i].Distance))
		assert.LessOrEqual(t, *got[i-1].Distance, *got[i].Distance)
	}
}

func TestComputeVisibleStableTies(t *testing.T) {
	places := []models.Place{
		{Name: "first", Latitude: 10, Longitude: 10},
		{Name: "second", Latitude: 10, Longitude: 10},
		{Name: "third", Latitude: 10, Longitude: 10},
	}
	got := ComputeVisible(places, models.NewFavouritesSet(), models.FilterState{}, &models.Location{Lat: 0, Lon: 0})
	assert.Equal(t, []string{"first", "second", "third"}, names(got))
}

func TestComputeVisibleDoesNotMutateInput(t *testing.T) {
	places := samplePlaces()
	_ = ComputeVisible(places, models.NewFavouritesSet(), models.FilterState{}, &models.Location{Lat: 0, Lon: 1})

	assert.Equal(t, []string{"A", "B"}, names(places))
	assert.Nil(t, places[0].Distance)
	assert.Nil(t, places[1].Distance)
}

func TestComputeVisibleClearsStaleDistance(t *testing.T) {
	stale := 5.0
	places := []models.Place{{Name: "A", Latitude: 0, Longitude: 0, Distance: &stale}}

	got := ComputeVisible(places, models.NewFavouritesSet(), models.FilterState{}, nil)
	assert.False(t, got[0].HasDistance())
}

// randomised checks of the closure, subset and ordering properties
func TestComputeVisibleProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	categories := []string{"Meczet", "Sklep", "Restauracja", "Cmentarz", ""}

	for iter := 0; iter < 200; iter++ {
		n := r.Intn(30)
		input := make([]models.Place, n)
		var favNames []string
		for i := range input {
			input[i] = models.Place{
				Name:      fmt.Sprintf("p%d", r.Intn(20)), // duplicate names on purpose
				Category:  categories[r.Intn(len(categories))],
				Latitude:  r.Float64()*180 - 90,
				Longitude: r.Float64()*360 - 180,
			}
			if r.Intn(10) == 0 {
				input[i].Latitude = math.NaN()
			}
			if r.Intn(3) == 0 {
				favNames = append(favNames, input[i].Name)
			}
		}
		favourites := models.NewFavouritesSet(favNames...)
		filter := models.FilterState{
			CategoryFilter:     categories[r.Intn(len(categories))],
			ShowFavouritesOnly: r.Intn(2) == 0,
		}
		var user *models.Location
		if r.Intn(2) == 0 {
			user = &models.Location{Lat: r.Float64()*180 - 90, Lon: r.Float64()*360 - 180}
		}

		got := ComputeVisible(input, favourites, filter, user)

		// subset: every output place appears in the input, never invented
		remaining := make(map[string]int)
		for _, p := range input {
			remaining[p.Name+"|"+p.Category]++
		}
		for _, p := range got {
			key := p.Name + "|" + p.Category
			require.Positive(t, remaining[key], "place %q not in input", p.Name)
			remaining[key]--

			if filter.CategoryFilter != "" {
				assert.Equal(t, filter.CategoryFilter, p.Category)
			}
			if filter.ShowFavouritesOnly {
				assert.True(t, favourites.Contains(p.Name))
			}
		}

		if user != nil {
			for i := 1; i < len(got); i++ {
				assert.LessOrEqual(t, *got[i-1].Distance, *got[i].Distance)
			}
			for _, p := range got {
				assert.GreaterOrEqual(t, *p.Distance, 0.0)
			}
		} else {
			// stability: output is the filtered subsequence of the input
			j := 0
			for _, p := range input {
				if j < len(got) && p.Name == got[j].Name && p.Category == got[j].Category {
					j++
				}
			}
			assert.Equal(t, len(got), j, "output is not an ordered subsequence of the input")
		}
	}
}

func TestNormalizeCategory(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{"Meczet", "Meczet"},
		{"  MECZET ", "Meczet"},
		{"sklep", "Sklep"},
		{"rESTAURACJA", "Restauracja"},
		{"źródło", "Źródło"},
		{"", ""},
		{"   ", ""},
		{"m", "M"},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeCategory(tc.raw))
		})
	}
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, "🕌", StyleFor("Meczet").Emoji)
	assert.Equal(t, DefaultStyle, StyleFor("Nieznana"))
	assert.Equal(t, []string{"Cmentarz", "Meczet", "Restauracja", "Sklep"}, KnownCategories())
}

func TestCategoriesIn(t *testing.T) {
	places := []models.Place{
		{Category: "Sklep"}, {Category: ""}, {Category: "Meczet"}, {Category: "Sklep"},
	}
	assert.Equal(t, []string{"Meczet", "Sklep"}, CategoriesIn(places))
	assert.Empty(t, CategoriesIn(nil))
}

func BenchmarkComputeVisible(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	places := make([]models.Place, 5000)
	for i := range places {
		places[i] = models.Place{
			Name:      fmt.Sprintf("place_%d", i),
			Category:  "Sklep",
			Latitude:  r.Float64()*6 + 49,
			Longitude: r.Float64()*10 + 14,
		}
	}
	user := &models.Location{Lat: 52.23, Lon: 21.01}
	favs := models.NewFavouritesSet("place_1", "place_2")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ComputeVisible(places, favs, models.FilterState{}, user)
	}
}
