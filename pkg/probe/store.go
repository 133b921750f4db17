package probe

import (
	"sync"

	"github.com/jjgarcianorway/anna/pkg/models"
)

// Store is the per-request evidence arena: probe id → frozen result,
// plus the resource diagnostics collected along the way.
//
// Single-writer (the orchestrator) / many-reader (drafter, auditor,
// scorer). Once a probe id is present its result never changes; Put is
// first-write-wins, which doubles as the at-most-once execution memo.
type Store struct {
	mu          sync.RWMutex
	results     map[models.ProbeID]models.ProbeResult
	order       []models.ProbeID
	diagnostics []models.ResourceDiagnostic
}

// NewStore creates an empty evidence store.
func NewStore() *Store {
	return &Store{results: make(map[models.ProbeID]models.ProbeResult)}
}

// Put records a result unless the probe id is already present.
// Returns true when the result was stored.
func (s *Store) Put(res models.ProbeResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[res.ProbeID]; exists {
		return false
	}
	s.results[res.ProbeID] = res
	s.order = append(s.order, res.ProbeID)
	if res.TruncatedBytes > 0 {
		s.diagnostics = append(s.diagnostics, models.ResourceDiagnostic{
			Kind:        models.ResourceProbeOutput,
			Limit:       OutputCap,
			Dropped:     res.TruncatedBytes,
			Consequence: "probe output truncated, reliability penalty applies",
		})
	}
	return true
}

// Get returns the result for a probe id.
func (s *Store) Get(id models.ProbeID) (models.ProbeResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[id]
	return res, ok
}

// Has reports whether the probe already executed this request.
func (s *Store) Has(id models.ProbeID) bool {
	_, ok := s.Get(id)
	return ok
}

// All returns results in insertion order.
func (s *Store) All() []models.ProbeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ProbeResult, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.results[id])
	}
	return out
}

// IDs returns the stored probe ids in insertion order.
func (s *Store) IDs() []models.ProbeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ProbeID, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of stored results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// AddDiagnostic records a resource budget breach.
func (s *Store) AddDiagnostic(d models.ResourceDiagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = append(s.diagnostics, d)
}

// Diagnostics returns all recorded resource diagnostics.
func (s *Store) Diagnostics() []models.ResourceDiagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ResourceDiagnostic, len(s.diagnostics))
	copy(out, s.diagnostics)
	return out
}
