package tracker

import (
	"context"
	"sync"

	"github.com/eshotmap/eshot_core/internal/models"
)

// Ticket identifies one stop selection. Results are committed against a
// ticket and dropped if a newer selection has started since.
type Ticket struct {
	StopID string
	gen    uint64
}

// Selection holds the currently selected stop and its approaching buses
type Selection struct {
	mu     sync.Mutex
	gen    uint64
	stopID string
	buses  []models.ApproachingBus
	cancel context.CancelFunc
}

// NewSelection returns an empty selection
func NewSelection() *Selection {
	return &Selection{}
}

// Begin makes stopID the current selection. The previous bus list is
// cleared and any fetch started for the previous selection is canceled
// through its context. The returned context is canceled on the next Begin
// or Clear.
func (s *Selection) Begin(parent context.Context, stopID string) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	s.stopID = stopID
	s.buses = nil
	s.cancel = cancel

	return ctx, Ticket{StopID: stopID, gen: s.gen}
}

// Commit stores buses for t. It reports false and stores nothing when t is
// no longer the current selection.
func (s *Selection) Commit(t Ticket, buses []models.ApproachingBus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.gen != s.gen {
		return false
	}
	s.buses = buses
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

// Get returns the selected stop id and its committed buses.
// buses is nil while a fetch is outstanding.
func (s *Selection) Get() (string, []models.ApproachingBus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopID, s.buses
}

// Clear drops the selection and cancels any outstanding fetch
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.stopID = ""
	s.buses = nil
}
