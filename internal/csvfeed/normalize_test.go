package csvfeed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		ok       bool
	}{
		{name: "Comma decimal", input: "38,415", expected: 38.415, ok: true},
		{name: "Dot decimal", input: "38.415", expected: 38.415, ok: true},
		{name: "Surrounding spaces", input: "  27,127 ", expected: 27.127, ok: true},
		{name: "Negative", input: "-17,4677", expected: -17.4677, ok: true},
		{name: "Integer", input: "38", expected: 38, ok: true},
		{name: "Empty", input: "", ok: false},
		{name: "Garbage", input: "kuzey", ok: false},
		{name: "Grouped thousands", input: "1.234,5", ok: false},
		{name: "NaN rejected", input: "NaN", ok: false},
		{name: "Infinity rejected", input: "Inf", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := ParseDecimal(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.expected, result, 1e-9)
			}
		})
	}
}

func TestParseDecimalSeparatorsAgree(t *testing.T) {
	for _, pair := range [][2]string{
		{"38,415", "38.415"},
		{"0,5", "0.5"},
		{"-179,999999", "-179.999999"},
		{"27,12700", "27.127"},
	} {
		a, okA := ParseDecimal(pair[0])
		b, okB := ParseDecimal(pair[1])
		assert.True(t, okA)
		assert.True(t, okB)
		assert.Equal(t, a, b, "%s vs %s", pair[0], pair[1])
	}
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		expected bool
	}{
		{name: "Izmir", lat: 38.4192, lon: 27.1287, expected: true},
		{name: "Edges inclusive", lat: -90, lon: 180, expected: true},
		{name: "Latitude too high", lat: 95, lon: 27, expected: false},
		{name: "Longitude too low", lat: 38, lon: -200, expected: false},
		{name: "NaN", lat: math.NaN(), lon: 27, expected: false},
		{name: "Infinite", lat: 38, lon: math.Inf(1), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateCoordinates(tt.lat, tt.lon))
		})
	}
}

func TestFoldHeader(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: " durak_id ", expected: "DURAK_ID"},
		{input: "BAŞLANGIÇ", expected: "BASLANGIC"},
		{input: "Güzergah", expected: "GUZERGAH"},
		{input: "bitiş", expected: "BITIS"},
		{input: "HAT_ADı", expected: "HAT_ADI"},
		{input: "\ufeffDURAK_ID", expected: "DURAK_ID"},
		{input: "İD", expected: "ID"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, FoldHeader(tt.input))
		})
	}
}
