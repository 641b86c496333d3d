package csvfeed

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// SniffSize is how many leading bytes are inspected to pick an encoding
// and a delimiter
const SniffSize = 2048

var (
	// ErrEmptyInput is returned when there is nothing to parse
	ErrEmptyInput = errors.New("csvfeed: empty input")
	// ErrUndecodable is returned when no candidate encoding can read the prefix
	ErrUndecodable = errors.New("csvfeed: input not decodable under any supported encoding")
)

// Encoding identifies the text encoding chosen for a feed
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingWindows1254
	EncodingISO88599
	EncodingLatin1
)

func (e Encoding) String() string {
	switch e {
	case EncodingUTF8:
		return "UTF-8"
	case EncodingWindows1254:
		return "windows-1254"
	case EncodingISO88599:
		return "ISO-8859-9"
	case EncodingLatin1:
		return "ISO-8859-1"
	}
	return "unknown"
}

// legacyEncodings is the fixed fallback order after UTF-8.
// ISO-8859-9 (Latin-5) is the nearest equivalent of windows-1254 and
// ISO-8859-1 stands in for a plain single-byte decoding.
var legacyEncodings = []struct {
	enc     Encoding
	charmap *charmap.Charmap
}{
	{EncodingWindows1254, charmap.Windows1254},
	{EncodingISO88599, charmap.ISO8859_9},
	{EncodingLatin1, charmap.ISO8859_1},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sniff picks an encoding and a field delimiter by inspecting at most the
// first SniffSize bytes of data. It has no side effects.
func Sniff(data []byte) (Encoding, rune, error) {
	if len(data) == 0 {
		return 0, 0, ErrEmptyInput
	}

	prefix := data
	if len(prefix) > SniffSize {
		prefix = prefix[:SniffSize]
	}

	enc, text, err := detectEncoding(prefix, len(data) > len(prefix))
	if err != nil {
		return 0, 0, err
	}

	return enc, DetectDelimiter(firstNonEmptyLine(text)), nil
}

// Decode sniffs data and returns the whole body as UTF-8 text along with
// the delimiter to split it on
func Decode(data []byte) (string, Encoding, rune, error) {
	enc, delim, err := Sniff(data)
	if err != nil {
		return "", 0, 0, err
	}

	text, err := decodeAll(data, enc)
	if err != nil {
		return "", 0, 0, err
	}
	return text, enc, delim, nil
}

// DetectDelimiter counts ';', ',' and tabs in a header line.
// Semicolon wins ties, then tab must strictly beat comma, otherwise comma.
func DetectDelimiter(line string) rune {
	semicolons := strings.Count(line, ";")
	commas := strings.Count(line, ",")
	tabs := strings.Count(line, "\t")

	switch {
	case semicolons >= commas && semicolons >= tabs:
		return ';'
	case tabs > commas:
		return '\t'
	default:
		return ','
	}
}

// detectEncoding tries strict UTF-8 first, then the legacy code pages in order.
// truncated tells whether prefix was cut from a longer body, in which case an
// incomplete rune at the very end is not treated as invalid.
func detectEncoding(prefix []byte, truncated bool) (Encoding, string, error) {
	candidate := bytes.TrimPrefix(prefix, utf8BOM)
	if truncated {
		candidate = trimPartialRune(candidate)
	}
	if utf8.Valid(candidate) {
		return EncodingUTF8, string(candidate), nil
	}

	for _, legacy := range legacyEncodings {
		text, err := decodeWith(legacy.charmap, prefix)
		if err != nil || strings.ContainsRune(text, utf8.RuneError) {
			continue
		}
		return legacy.enc, text, nil
	}

	return 0, "", ErrUndecodable
}

func decodeAll(data []byte, enc Encoding) (string, error) {
	if enc == EncodingUTF8 {
		body := bytes.TrimPrefix(data, utf8BOM)
		if utf8.Valid(body) {
			return string(body), nil
		}
		// Bad bytes past the sniffed prefix; keep the rows we can read.
		return strings.ToValidUTF8(string(body), "\uFFFD"), nil
	}

	for _, legacy := range legacyEncodings {
		if legacy.enc == enc {
			return decodeWith(legacy.charmap, data)
		}
	}
	return "", ErrUndecodable
}

func decodeWith(cm encoding.Encoding, data []byte) (string, error) {
	out, err := cm.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
