package csvfeed

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMissing is returned when a required column cannot be located
var ErrSchemaMissing = errors.New("csvfeed: required column missing")

// StopSchema holds column indexes for the stops feed; -1 means absent
type StopSchema struct {
	ID        int
	Name      int
	Latitude  int
	Longitude int
	Lines     int
}

// Required returns the indexes every accepted row must cover
func (s StopSchema) Required() []int {
	return []int{s.ID, s.Latitude, s.Longitude}
}

// LineSchema holds column indexes for the lines feed; -1 means absent
type LineSchema struct {
	ID          int
	Name        int
	Description int
	StartStop   int
	EndStop     int
}

// Required returns the indexes every accepted row must cover
func (s LineSchema) Required() []int {
	return []int{s.ID}
}

// MapStopSchema locates stop columns in a folded header row.
// Header names are Turkish with inconsistent spelling, so matching is by
// substring and the first matching column wins.
func MapStopSchema(header []string) (StopSchema, error) {
	schema := StopSchema{
		ID:        indexOfFirst(header, contains("ID")),
		Name:      indexOfFirst(header, contains("ADI", "NAME")),
		Latitude:  indexOfFirst(header, contains("ENLEM", "LAT")),
		Longitude: indexOfFirst(header, contains("BOYLAM", "LON")),
		Lines:     indexOfFirst(header, contains("HATLAR")),
	}

	var missing []string
	if schema.ID < 0 {
		missing = append(missing, "id")
	}
	if schema.Latitude < 0 {
		missing = append(missing, "latitude")
	}
	if schema.Longitude < 0 {
		missing = append(missing, "longitude")
	}
	if len(missing) > 0 {
		return schema, fmt.Errorf("%w: stops feed lacks %s", ErrSchemaMissing, strings.Join(missing, ", "))
	}
	return schema, nil
}

// MapLineSchema locates line columns in a folded header row.
// Only the ID column is required.
func MapLineSchema(header []string) (LineSchema, error) {
	schema := LineSchema{
		ID:          indexOfFirst(header, either(equals("HAT_NO"), contains("ID"))),
		Name:        indexOfFirst(header, either(equals("HAT_ADI"), contains("NAME"))),
		Description: indexOfFirst(header, contains("GUZERGAH")),
		StartStop:   indexOfFirst(header, contains("BASLANGIC")),
		EndStop:     indexOfFirst(header, contains("BITIS")),
	}

	if schema.ID < 0 {
		return schema, fmt.Errorf("%w: lines feed lacks id", ErrSchemaMissing)
	}
	return schema, nil
}

type headerMatcher func(string) bool

func contains(subs ...string) headerMatcher {
	return func(h string) bool {
		for _, s := range subs {
			if strings.Contains(h, s) {
				return true
			}
		}
		return false
	}
}

func equals(name string) headerMatcher {
	return func(h string) bool { return h == name }
}

func either(a, b headerMatcher) headerMatcher {
	return func(h string) bool { return a(h) || b(h) }
}

func indexOfFirst(header []string, match headerMatcher) int {
	for i, h := range header {
		if match(h) {
			return i
		}
	}
	return -1
}
