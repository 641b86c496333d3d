package repository

import (
	"errors"
	"fmt"
)

// ErrNoData marks a load that produced no usable records
var ErrNoData = errors.New("repository: no usable records")

// Outcome says where a successful load got its records from
type Outcome int

const (
	// FromMemory served the in-memory copy without I/O
	FromMemory Outcome = iota
	// FromDisk parsed the persisted copy; no download was attempted
	FromDisk
	// Fresh downloaded, persisted and parsed new bytes
	Fresh
	// Stale fell back to previously available data after a failed refresh
	Stale
)

func (o Outcome) String() string {
	switch o {
	case FromMemory:
		return "memory"
	case FromDisk:
		return "disk"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText renders the outcome by name in JSON
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is a successful load. Hard failures are reported only through the
// error return of Load.
//
// RefreshErr is set whenever Outcome is Stale. ParseErr is set when the
// bytes that were read produced no records; Items is then empty and the
// resource stays uncached.
type Result[T any] struct {
	Items      []T
	Outcome    Outcome
	RefreshErr error
	ParseErr   error
}

// Empty reports whether the load produced no records
func (r Result[T]) Empty() bool {
	return len(r.Items) == 0
}
