package source

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sheet = "Name,Category,Latitude,Longitude,Address,Phone\n" +
	"Meczet Centralny,  MECZET ,52.2297,21.0122,ul. Wiertnicza 103,\n" +
	"Sklep Al-Amin,sklep,50.0647,19.9450,,+48 123\n" +
	"Bez pozycji,Restauracja,abc,,ul. Długa 1,\n" +
	",,,,,\n" +
	"Pusta kategoria,,54.35,18.64\n"

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"52.2297", 52.2297},
		{" -19.5 ", -19.5},
		{"", math.NaN()},
		{"abc", math.NaN()},
		{"Infinity", math.NaN()},
		{"inf", math.NaN()},
		{"-Inf", math.NaN()},
		{"1e400", math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseCoordinate(tt.in)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(got), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "Meczet Centralny", got[0].Name)
	assert.Equal(t, "Meczet", got[0].Category)
	assert.Equal(t, 52.2297, got[0].Latitude)
	assert.Equal(t, 21.0122, got[0].Longitude)
	assert.Equal(t, "ul. Wiertnicza 103", got[0].Address)
	assert.Nil(t, got[0].Extra)

	assert.Equal(t, "Sklep", got[1].Category)
	assert.Equal(t, map[string]string{"Phone": "+48 123"}, got[1].Extra)

	// unparseable coordinates are kept as NaN, the row is not dropped
	assert.Equal(t, "Bez pozycji", got[2].Name)
	assert.True(t, math.IsNaN(got[2].Latitude))
	assert.True(t, math.IsNaN(got[2].Longitude))

	// short row, empty category stays empty
	assert.Equal(t, "", got[3].Category)
	assert.Equal(t, 18.64, got[3].Longitude)
	assert.Nil(t, got[3].Distance)
}

func TestParseHeaderVariants(t *testing.T) {
	doc := "\ufeff name , CATEGORY,latitude,Longitude\nA,sklep,1,2\n"
	got, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, "Sklep", got[0].Category)
}

func TestParseHeaderOnly(t *testing.T) {
	got, err := Parse(strings.NewReader("Name,Category,Latitude,Longitude\n"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseFailures(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"missing column", "Name,Category,Latitude\nA,Sklep,1\n"},
		{"html error page", "<html><body>Sign in</body></html>\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc))
			assert.ErrorIs(t, err, ErrParseFailed)
		})
	}
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sheet))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, 5*time.Second)
	got, err := f.FetchPlaces(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestFetcherHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL, 5*time.Second).FetchPlaces(context.Background())
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetcherUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewFetcher(url, time.Second).FetchPlaces(context.Background())
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetcherCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(srv.URL, 5*time.Second).FetchPlaces(ctx)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

type countingSource struct {
	calls  atomic.Int32
	places []models.Place
	err    error
}

func (c *countingSource) FetchPlaces(ctx context.Context) ([]models.Place, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.places, nil
}

func TestCachedSource(t *testing.T) {
	upstream := &countingSource{places: []models.Place{{Name: "A"}}}
	cached := NewCachedSource(upstream, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := cached.FetchPlaces(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	assert.Equal(t, int32(1), upstream.calls.Load())

	cached.Invalidate()
	_, err := cached.FetchPlaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), upstream.calls.Load())
}

func TestCachedSourceDoesNotCacheFailures(t *testing.T) {
	upstream := &countingSource{err: errors.New("boom")}
	cached := NewCachedSource(upstream, time.Minute)

	_, err := cached.FetchPlaces(context.Background())
	assert.Error(t, err)
	_, err = cached.FetchPlaces(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(2), upstream.calls.Load())
}

func TestCachedSourceReturnsCopies(t *testing.T) {
	upstream := &countingSource{places: []models.Place{{Name: "A"}}}
	cached := NewCachedSource(upstream, time.Minute)

	first, err := cached.FetchPlaces(context.Background())
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := cached.FetchPlaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", second[0].Name)
}

func TestSnapshotRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "data", "places.gob")
	in := []models.Place{
		{Name: "A", Category: "Sklep", Latitude: 1, Longitude: 2, Extra: map[string]string{"Phone": "1"}},
		{Name: "B", Latitude: math.NaN(), Longitude: math.NaN()},
	}

	require.NoError(t, SaveSnapshot(filename, in))

	snap, err := LoadSnapshot(filename)
	require.NoError(t, err)
	require.Len(t, snap.Places, 2)
	assert.Equal(t, in[0], snap.Places[0])
	assert.True(t, math.IsNaN(snap.Places[1].Latitude))
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestLoadSnapshotMissing(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.gob"))
	assert.Error(t, err)
}
