// Package source fetches the published spreadsheet of places and parses it
// into models.Place records.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/places"
)

var (
	// ErrFetchFailed means the spreadsheet could not be downloaded
	ErrFetchFailed = errors.New("fetch failed")
	// ErrParseFailed means the download was not a usable CSV table
	ErrParseFailed = errors.New("parse failed")
)

const (
	columnName      = "name"
	columnCategory  = "category"
	columnLatitude  = "latitude"
	columnLongitude = "longitude"
	columnAddress   = "address"
)

// Source yields the current list of places
type Source interface {
	FetchPlaces(ctx context.Context) ([]models.Place, error)
}

// Fetcher downloads the CSV export of the places sheet over HTTP
type Fetcher struct {
	url        string
	httpClient *http.Client
}

// NewFetcher creates a fetcher for url with the given request timeout
func NewFetcher(url string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the spreadsheet address
func (f *Fetcher) URL() string {
	return f.url
}

// FetchPlaces downloads and parses the sheet. A sheet with a header and no
// rows is a success with zero places, not an error.
func (f *Fetcher) FetchPlaces(ctx context.Context) ([]models.Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "text/csv")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetchFailed, resp.Status)
	}

	parsed, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	log.Printf("Fetched %d places in %v", len(parsed), time.Since(start))
	return parsed, nil
}

// Parse reads a CSV table whose header names at least the Name, Category,
// Latitude and Longitude columns. Header matching ignores case and
// surrounding spaces. Unparseable coordinates become NaN; the row is kept.
func Parse(r io.Reader) ([]models.Place, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty document", ErrParseFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrParseFailed, err)
	}

	keys := make([]string, len(header))
	columns := make(map[string]int, len(header))
	for i, h := range header {
		keys[i] = strings.ToLower(headerName(h))
		if _, dup := columns[keys[i]]; !dup {
			columns[keys[i]] = i
		}
	}
	for _, required := range []string{columnName, columnCategory, columnLatitude, columnLongitude} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", ErrParseFailed, required)
		}
	}

	result := make([]models.Place, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}
		if blank(record) {
			continue
		}

		field := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}

		place := models.Place{
			Name:      field(columnName),
			Category:  places.NormalizeCategory(field(columnCategory)),
			Latitude:  parseCoordinate(field(columnLatitude)),
			Longitude: parseCoordinate(field(columnLongitude)),
			Address:   field(columnAddress),
		}
		for i, h := range header {
			if isKnownColumn(keys[i]) || i >= len(record) || record[i] == "" {
				continue
			}
			if place.Extra == nil {
				place.Extra = make(map[string]string)
			}
			place.Extra[headerName(h)] = record[i]
		}
		result = append(result, place)
	}

	return result, nil
}

func parseCoordinate(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func isKnownColumn(key string) bool {
	switch key {
	case columnName, columnCategory, columnLatitude, columnLongitude, columnAddress:
		return true
	}
	return false
}

// headerName strips the byte order mark Google Sheets exports may carry
func headerName(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}
