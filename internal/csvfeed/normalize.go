package csvfeed

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ParseDecimal parses a number written with either ',' or '.' as the
// decimal point. Every comma is replaced by a dot before parsing, so
// "38,415" and "38.415" give the same value. Non-finite results are rejected.
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ValidateCoordinates reports whether lat/lon are finite and in range
func ValidateCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// FoldHeader normalizes a header cell for matching: trimmed, stripped of a
// BOM, diacritics removed (BAŞLANGIÇ -> BASLANGIC) and upper-cased
func FoldHeader(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	// Dotless ı has no decomposition; ToUpper maps it to I.
	return strings.ToUpper(folded)
}
