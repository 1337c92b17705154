package provider

import "sync"

// CoverageEntry records whether a registered definition was invoked.
type CoverageEntry struct {
	Definition *Definition
	Invoked    bool
}

// Coverage lists entries in registration order.
type Coverage []CoverageEntry

// Uninvoked returns the definitions that were never successfully matched.
func (c Coverage) Uninvoked() []*Definition {
	var out []*Definition
	for _, e := range c {
		if !e.Invoked {
			out = append(out, e.Definition)
		}
	}
	return out
}

// DefinitionSet is the mutable definition list of one endpoint binding and
// its coverage table. It is safe for concurrent use.
type DefinitionSet struct {
	mu      sync.Mutex
	defs    []*Definition
	invoked map[ID]bool
}

// NewDefinitionSet creates a set and registers defs.
func NewDefinitionSet(defs ...*Definition) *DefinitionSet {
	s := &DefinitionSet{invoked: make(map[ID]bool)}
	s.Append(defs...)
	return s
}

// Append registers copies of defs at the end of the list, each under a fresh
// ID, and returns the registered copies. Structurally identical definitions
// are distinct entries.
func (s *DefinitionSet) Append(defs ...*Definition) []*Definition {
	registered := make([]*Definition, 0, len(defs))
	for _, d := range defs {
		cp := *d
		cp.ID = NewID()
		registered = append(registered, &cp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range registered {
		s.defs = append(s.defs, d)
		s.invoked[d.ID] = false
	}
	return registered
}

// Snapshot returns the current definition list. Definitions are never
// mutated after registration, so the snapshot is safe to read unlocked.
func (s *DefinitionSet) Snapshot() []*Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Definition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Len returns the number of registered definitions.
func (s *DefinitionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.defs)
}

// Match selects the definition for req from the current list. Coverage is
// left alone: the caller marks it once the response has been produced.
func (s *DefinitionSet) Match(req *Request) Result {
	return Match(req, s.Snapshot())
}

// MarkInvoked records that the definition with id answered a request.
// IDs that were never registered in this set are ignored.
func (s *DefinitionSet) MarkInvoked(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoked[id]; ok {
		s.invoked[id] = true
	}
}

// Coverage returns a point-in-time copy of the coverage table.
func (s *DefinitionSet) Coverage() Coverage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Coverage, len(s.defs))
	for i, d := range s.defs {
		out[i] = CoverageEntry{Definition: d, Invoked: s.invoked[d.ID]}
	}
	return out
}
