package merge

import (
	"sort"
	"sync"
)

// ReferenceMap records which files each stylesheet references, keyed by
// physical path. It lets the freshness layer treat a stylesheet as stale when
// an image it points at changes.
type ReferenceMap struct {
	mu   sync.RWMutex
	refs map[string]map[string]struct{}
}

// NewReferenceMap creates an empty map.
func NewReferenceMap() *ReferenceMap {
	return &ReferenceMap{refs: make(map[string]map[string]struct{})}
}

// Replace sets the references of stylesheet to exactly targets.
func (m *ReferenceMap) Replace(stylesheet string, targets []string) {
	if m == nil || stylesheet == "" {
		return
	}
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if t != "" && t != stylesheet {
			set[t] = struct{}{}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(set) == 0 {
		delete(m.refs, stylesheet)
		return
	}
	m.refs[stylesheet] = set
}

// DependenciesOf returns the sorted references recorded for stylesheet.
func (m *ReferenceMap) DependenciesOf(stylesheet string) []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.refs[stylesheet]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of stylesheets with recorded references.
func (m *ReferenceMap) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}
