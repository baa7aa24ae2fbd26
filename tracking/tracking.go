// Package tracking is the activation point of change tracking. Entities
// opt in by embedding State; the engine switches tracking on for root
// entities once a query's object graph is fully assembled, so the initial
// load is never recorded as a pending change.
package tracking

import (
	"sort"
	"sync"
)

// Tracked is implemented by entities that can record field mutations.
type Tracked interface {
	// EnableTracking starts recording mutations. Calling it on an entity
	// that is already tracking has no effect.
	EnableTracking()

	// IsTracking reports whether mutations are being recorded.
	IsTracking() bool

	// HasChanges reports whether a mutation was recorded since tracking
	// was enabled.
	HasChanges() bool
}

// State is an embeddable Tracked implementation. The zero value is an
// untracked entity.
type State struct {
	mu       sync.Mutex
	tracking bool
	dirty    map[string]struct{}
}

// EnableTracking implements Tracked.
func (s *State) EnableTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracking {
		return
	}
	s.tracking = true
	s.dirty = nil
}

// IsTracking implements Tracked.
func (s *State) IsTracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

// HasChanges implements Tracked.
func (s *State) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0
}

// MarkDirty records a mutation of field. It is ignored until tracking is on.
func (s *State) MarkDirty(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracking {
		return
	}
	if s.dirty == nil {
		s.dirty = make(map[string]struct{})
	}
	s.dirty[field] = struct{}{}
}

// DirtyFields returns the mutated field names, sorted.
func (s *State) DirtyFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := make([]string, 0, len(s.dirty))
	for f := range s.dirty {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// AcceptChanges clears recorded mutations, typically after they were saved.
// Tracking stays on.
func (s *State) AcceptChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = nil
}

// Supports reports whether v can be tracked.
func Supports(v any) bool {
	_, ok := v.(Tracked)
	return ok
}

// Enable switches tracking on for v and reports whether v supports it.
func Enable(v any) bool {
	t, ok := v.(Tracked)
	if !ok {
		return false
	}
	t.EnableTracking()
	return true
}

// EnableAll switches tracking on for every entity in roots and returns how
// many were tracked. Nested entities are left alone.
func EnableAll(roots []any) int {
	n := 0
	for _, r := range roots {
		if Enable(r) {
			n++
		}
	}
	return n
}
