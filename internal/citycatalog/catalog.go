// Package citycatalog loads the static 337-municipality MATOPIBA roster
// used by every other package in this module.
package citycatalog

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

//go:embed data/cities_matopiba.csv
var embeddedFS embed.FS

// expectedCount is the fixed MATOPIBA municipality count: startup must
// fail if the bundled roster does not have exactly this many cities.
const expectedCount = 337

// validStates enumerates the four MATOPIBA states.
var validStates = map[string]bool{
	"MA": true,
	"TO": true,
	"PI": true,
	"BA": true,
}

// City is a single immutable MATOPIBA municipality reference.
type City struct {
	Code       string
	Name       string
	State      string
	Latitude   float64
	Longitude  float64
	ElevationM float64
}

// Catalog is the immutable, process-lifetime list of all 337 cities.
type Catalog struct {
	cities []City
	byCode map[string]City
}

// Load reads and validates the bundled CSV. It fails if the row count is
// not exactly 337 or if any row has a missing/invalid coordinate.
func Load() (*Catalog, error) {
	f, err := embeddedFS.Open("data/cities_matopiba.csv")
	if err != nil {
		return nil, fmt.Errorf("citycatalog: open bundled roster: %w", err)
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("citycatalog: read header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	cat := &Catalog{
		byCode: make(map[string]City, expectedCount),
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("citycatalog: read row: %w", err)
		}

		city, err := parseRow(record)
		if err != nil {
			return nil, err
		}

		if _, dup := cat.byCode[city.Code]; dup {
			return nil, fmt.Errorf("citycatalog: duplicate city code %q", city.Code)
		}

		cat.cities = append(cat.cities, city)
		cat.byCode[city.Code] = city
	}

	if len(cat.cities) != expectedCount {
		return nil, fmt.Errorf(
			"citycatalog: expected exactly %d cities, got %d",
			expectedCount, len(cat.cities),
		)
	}

	return cat, nil
}

func validateHeader(header []string) error {
	want := []string{"code", "name", "state", "latitude", "longitude", "elevation_m"}
	if len(header) != len(want) {
		return fmt.Errorf("citycatalog: expected %d columns, got %d", len(want), len(header))
	}
	for i, col := range want {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("citycatalog: column %d: expected %q, got %q", i, col, header[i])
		}
	}
	return nil
}

func parseRow(record []string) (City, error) {
	if len(record) != 6 {
		return City{}, fmt.Errorf("citycatalog: row has %d fields, want 6: %v", len(record), record)
	}

	code := strings.TrimSpace(record[0])
	name := strings.TrimSpace(record[1])
	state := strings.TrimSpace(record[2])

	if code == "" || name == "" {
		return City{}, fmt.Errorf("citycatalog: row missing code or name: %v", record)
	}
	if !validStates[state] {
		return City{}, fmt.Errorf("citycatalog: row %s: invalid state %q", code, state)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return City{}, fmt.Errorf("citycatalog: row %s: invalid latitude: %w", code, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
	if err != nil {
		return City{}, fmt.Errorf("citycatalog: row %s: invalid longitude: %w", code, err)
	}
	elev, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
	if err != nil {
		return City{}, fmt.Errorf("citycatalog: row %s: invalid elevation: %w", code, err)
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return City{}, fmt.Errorf("citycatalog: row %s: coordinate out of range", code)
	}

	return City{
		Code:       code,
		Name:       name,
		State:      state,
		Latitude:   lat,
		Longitude:  lon,
		ElevationM: elev,
	}, nil
}

// All returns every city in file order. The returned slice must not be
// mutated by callers.
func (c *Catalog) All() []City {
	return c.cities
}

// Len returns the number of cities in the catalog (always 337 once
// successfully loaded).
func (c *Catalog) Len() int {
	return len(c.cities)
}

// Lookup returns the city for a given code.
func (c *Catalog) Lookup(code string) (City, bool) {
	city, ok := c.byCode[code]
	return city, ok
}

// Batches splits the catalog into contiguous groups of at most size
// cities each, preserving file order. Used by the forecast client to
// build the 7 batches of up to 50 cities per provider request.
func (c *Catalog) Batches(size int) [][]City {
	return BatchCities(c.cities, size)
}

// BatchCities splits an arbitrary city slice into contiguous groups of
// at most size cities each, preserving order. Catalog.Batches is a thin
// wrapper over this for the common case of batching the whole catalog;
// the forecast client calls it directly since it batches whatever
// subset of cities it was given to fetch.
func BatchCities(cities []City, size int) [][]City {
	if size <= 0 {
		size = len(cities)
	}
	var batches [][]City
	for start := 0; start < len(cities); start += size {
		end := start + size
		if end > len(cities) {
			end = len(cities)
		}
		batches = append(batches, cities[start:end])
	}
	return batches
}
