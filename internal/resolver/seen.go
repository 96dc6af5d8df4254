package resolver

import (
	"sync"
	"sync/atomic"

	"github.com/KingRainbow44/modpack-installer/internal/artifact"
)

// Seen is the set of package ids already taken up as dependencies during a run.
// It is shared by all workers.
type Seen struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newSeen() *Seen {
	return &Seen{ids: make(map[string]struct{})}
}

// Add inserts id and reports whether it was absent
func (s *Seen) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Len returns the number of ids in the set
func (s *Seen) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Stats counts resolution outcomes across all workers of a run
type Stats struct {
	Downloaded  atomic.Int64
	Present     atomic.Int64
	Skipped     atomic.Int64
	Unsupported atomic.Int64
	Failed      atomic.Int64
}

func (s *Stats) record(o artifact.Outcome) {
	switch o {
	case artifact.Downloaded:
		s.Downloaded.Add(1)
	case artifact.AlreadyPresent:
		s.Present.Add(1)
	case artifact.Skipped:
		s.Skipped.Add(1)
	}
}
