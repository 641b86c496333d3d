package csvfeed

import "strings"

// maxLineSize bounds a single data row; longer rows are skipped
const maxLineSize = 1 << 20

// Table is a header-indexed view of a delimited text body.
// Header cells are trimmed and folded for matching; row fields are only trimmed.
type Table struct {
	Header  []string
	Rows    [][]string
	Skipped int // data rows over maxLineSize
}

// ReadTable splits text into a header and data rows.
// The first non-blank line is the header, blank lines are skipped, and every
// field is trimmed. Row width is not checked here; callers filter with Covers.
func ReadTable(text string, delim rune) (*Table, error) {
	table := &Table{}
	sep := string(delim)

	for len(text) > 0 {
		var line string
		line, text, _ = strings.Cut(text, "\n")
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if table.Header == nil {
			fields := splitFields(line, sep)
			table.Header = make([]string, len(fields))
			for i, f := range fields {
				table.Header[i] = FoldHeader(f)
			}
			continue
		}

		if len(line) > maxLineSize {
			table.Skipped++
			continue
		}
		table.Rows = append(table.Rows, splitFields(line, sep))
	}

	if table.Header == nil {
		return nil, ErrEmptyInput
	}
	return table, nil
}

// Covers reports whether row has a field at every index in required.
// Negative indexes mark optional columns that were not found and are ignored.
func Covers(row []string, required ...int) bool {
	for _, idx := range required {
		if idx >= len(row) {
			return false
		}
	}
	return true
}

// Field returns the field at idx, or "" and false when the column is
// unmapped or the row is too short
func Field(row []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) {
		return "", false
	}
	return row[idx], true
}

func splitFields(line, sep string) []string {
	parts := strings.Split(line, sep)
	for i, p := range parts {
		parts[i] = unquote(strings.TrimSpace(p))
	}
	return parts
}

// unquote strips one pair of enclosing double quotes, if present
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.TrimSpace(strings.ReplaceAll(s[1:len(s)-1], `""`, `"`))
	}
	return s
}
