package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eshotmap/eshot_core/internal/logging"
	"github.com/eshotmap/eshot_core/internal/models"
)

// Fetcher downloads the raw bytes of a static resource
type Fetcher interface {
	Fetch(ctx context.Context, res models.Resource) ([]byte, error)
}

// Store persists raw resource bytes
type Store interface {
	Exists(res models.Resource) bool
	Read(res models.Resource) ([]byte, error)
	Write(res models.Resource, data []byte) error
	ModTime(res models.Resource) (time.Time, bool)
}

// ParseFunc turns raw bytes into records
type ParseFunc[T any] func(data []byte) ([]T, error)

// Resource is the Empty/Cached state machine for one feed.
// At most one download+parse runs at a time; memory hits never wait for it.
type Resource[T any] struct {
	name    models.Resource
	fetcher Fetcher
	store   Store
	parse   ParseFunc[T]
	logger  *slog.Logger

	loadMu sync.Mutex

	mu          sync.RWMutex
	items       []T
	cached      bool
	loadedAt    time.Time
	lastOutcome Outcome
	lastErr     error
}

// NewResource wires one feed's state machine
func NewResource[T any](name models.Resource, fetcher Fetcher, store Store, parse ParseFunc[T], logger *slog.Logger) *Resource[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resource[T]{
		name:    name,
		fetcher: fetcher,
		store:   store,
		parse:   parse,
		logger:  logger.With(slog.String("resource", string(name))),
	}
}

// Snapshot returns the in-memory copy. The slice is shared and must not be modified.
func (r *Resource[T]) Snapshot() ([]T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items, r.cached
}

// Load returns the resource's records.
//
// Without force a cached copy is returned with no I/O. Otherwise the feed is
// downloaded when there is no persisted copy or force is set. A failed
// download is fatal only when nothing is persisted; with a persisted copy the
// stale bytes are parsed instead and the failure is reported in
// Result.RefreshErr.
func (r *Resource[T]) Load(ctx context.Context, force bool) (Result[T], error) {
	if !force {
		if items, ok := r.Snapshot(); ok {
			return Result[T]{Items: items, Outcome: FromMemory}, nil
		}
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	// Another caller may have finished a load while we waited
	if !force {
		if items, ok := r.Snapshot(); ok {
			return Result[T]{Items: items, Outcome: FromMemory}, nil
		}
	}

	start := time.Now()
	persisted := r.store.Exists(r.name)

	var refreshErr error
	if !persisted || force {
		res, err := r.refresh(ctx, persisted)
		if err == nil {
			r.logLoaded(res, start)
			return res, nil
		}
		if !persisted {
			r.recordFailure(err)
			logging.LogError(r.logger, "load failed with no persisted copy", err)
			return Result[T]{}, fmt.Errorf("failed to load %s: %w", r.name, err)
		}

		refreshErr = err
		r.logger.Warn("refresh failed, using persisted copy",
			slog.String("error", err.Error()))
	}

	data, err := r.store.Read(r.name)
	if err != nil {
		err = errors.Join(refreshErr, err)
		r.recordFailure(err)
		return Result[T]{}, fmt.Errorf("failed to load %s: %w", r.name, err)
	}

	outcome := FromDisk
	if refreshErr != nil {
		outcome = Stale
	}

	items, parseErr := r.parseRecords(data)
	if parseErr != nil {
		return r.keepPrevious(outcome, refreshErr, parseErr), nil
	}

	r.commit(items, outcome, refreshErr)
	res := Result[T]{Items: items, Outcome: outcome, RefreshErr: refreshErr}
	r.logLoaded(res, start)
	return res, nil
}

// refresh downloads and parses new bytes, persisting them only when they
// yield records. An unusable download counts as a failed refresh so a good
// persisted copy is never overwritten by an error page.
func (r *Resource[T]) refresh(ctx context.Context, persisted bool) (Result[T], error) {
	data, err := r.fetcher.Fetch(ctx, r.name)
	if err != nil {
		return Result[T]{}, err
	}

	items, parseErr := r.parseRecords(data)
	if parseErr != nil {
		if persisted {
			return Result[T]{}, fmt.Errorf("downloaded %s feed is unusable: %w", r.name, parseErr)
		}
		// Nothing to fall back to: report an empty, non-fatal result
		return r.keepPrevious(Fresh, nil, parseErr), nil
	}

	if err := r.store.Write(r.name, data); err != nil {
		logging.LogError(r.logger, "failed to persist download", err)
	}

	r.commit(items, Fresh, nil)
	return Result[T]{Items: items, Outcome: Fresh}, nil
}

func (r *Resource[T]) parseRecords(data []byte) ([]T, error) {
	items, err := r.parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoData, err)
	}
	if len(items) == 0 {
		return nil, ErrNoData
	}
	return items, nil
}

// keepPrevious handles a parse that produced nothing. A previous in-memory
// copy survives and is served as stale; otherwise the result is empty.
func (r *Resource[T]) keepPrevious(outcome Outcome, refreshErr, parseErr error) Result[T] {
	logging.LogError(r.logger, "parse produced no records", parseErr)

	if items, ok := r.Snapshot(); ok {
		err := errors.Join(refreshErr, parseErr)
		r.recordFailure(err)
		return Result[T]{Items: items, Outcome: Stale, RefreshErr: err}
	}

	r.recordFailure(errors.Join(refreshErr, parseErr))
	return Result[T]{Items: []T{}, Outcome: outcome, RefreshErr: refreshErr, ParseErr: parseErr}
}

func (r *Resource[T]) commit(items []T, outcome Outcome, refreshErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
	r.cached = true
	r.loadedAt = time.Now()
	r.lastOutcome = outcome
	r.lastErr = refreshErr
}

func (r *Resource[T]) recordFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
}

func (r *Resource[T]) logLoaded(res Result[T], start time.Time) {
	logging.LogOperation(r.logger, "resource loaded",
		slog.String("outcome", res.Outcome.String()),
		slog.Int("count", len(res.Items)),
		slog.Duration("duration", time.Since(start)))
}

// Status describes the cache state of one resource
type Status struct {
	Resource    models.Resource `json:"resource"`
	InMemory    bool            `json:"in_memory"`
	Count       int             `json:"count"`
	LoadedAt    *time.Time      `json:"loaded_at,omitempty"`
	LastOutcome *Outcome        `json:"last_outcome,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	OnDisk      bool            `json:"on_disk"`
	DiskModTime *time.Time      `json:"disk_mod_time,omitempty"`
}

// Status reports memory and disk state without triggering a load
func (r *Resource[T]) Status() Status {
	r.mu.RLock()
	st := Status{
		Resource: r.name,
		InMemory: r.cached,
		Count:    len(r.items),
	}
	if r.cached {
		loadedAt := r.loadedAt
		outcome := r.lastOutcome
		st.LoadedAt = &loadedAt
		st.LastOutcome = &outcome
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.mu.RUnlock()

	if mod, ok := r.store.ModTime(r.name); ok {
		st.OnDisk = true
		st.DiskModTime = &mod
	}
	return st
}
