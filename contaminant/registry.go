// Package contaminant tracks which contaminants an instance emits or
// responds to, and the per-contaminant body burden it exposes to others.
package contaminant

import (
	"fmt"

	"github.com/pthm-cable/exposure/pack"
)

// nameSet is an insertion-ordered set with stable ordinals.
type nameSet struct {
	names []string
	index map[string]int
}

func (s *nameSet) add(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[name] = len(s.names)
	s.names = append(s.names, name)
	return len(s.names) - 1
}

func (s *nameSet) lookup(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

func (s *nameSet) clear() {
	s.names = nil
	s.index = nil
}

// Registry holds the source set (contaminants an instance emits) and the
// interest set (contaminants it tracks exposure to). Both only grow, except
// through the explicit Clear methods.
type Registry struct {
	sources   nameSet
	interests nameSet
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterSource adds name to the source set and returns its ordinal.
func (r *Registry) RegisterSource(name string) int { return r.sources.add(name) }

// RegisterInterest adds name to the interest set and returns its ordinal.
func (r *Registry) RegisterInterest(name string) int { return r.interests.add(name) }

func (r *Registry) IsSource(name string) bool { return r.sources.lookup(name) >= 0 }
func (r *Registry) IsInterested(name string) bool { return r.interests.lookup(name) >= 0 }

func (r *Registry) CountSources() int { return len(r.sources.names) }
func (r *Registry) CountInterests() int { return len(r.interests.names) }

// SourceAt returns the source with ordinal i.
func (r *Registry) SourceAt(i int) string { return r.sources.names[i] }

// InterestAt returns the interest with ordinal i.
func (r *Registry) InterestAt(i int) string { return r.interests.names[i] }

// SourceIndex returns the ordinal of a source, or -1.
func (r *Registry) SourceIndex(name string) int { return r.sources.lookup(name) }

// InterestIndex returns the ordinal of an interest, or -1.
func (r *Registry) InterestIndex(name string) int { return r.interests.lookup(name) }

// Interests returns a copy of the interest names in ordinal order.
func (r *Registry) Interests() []string {
	return append([]string(nil), r.interests.names...)
}

// Sources returns a copy of the source names in ordinal order.
func (r *Registry) Sources() []string {
	return append([]string(nil), r.sources.names...)
}

func (r *Registry) ClearSources() { r.sources.clear() }
func (r *Registry) ClearInterests() { r.interests.clear() }

// MarshalBinary packs both sets in ordinal order.
func (r *Registry) MarshalBinary() ([]byte, error) {
	w := pack.NewWriter()
	for _, set := range []*nameSet{&r.sources, &r.interests} {
		w.Int(len(set.names))
		for _, n := range set.names {
			w.String(n)
		}
	}
	return w.Bytes(), nil
}

// UnmarshalBinary replaces both sets with those in data.
func (r *Registry) UnmarshalBinary(data []byte) error {
	rd := pack.NewReader(data)
	var sets [2]nameSet
	for i := range sets {
		n, err := rd.Int()
		if err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		if n < 0 {
			return fmt.Errorf("registry: negative count %d", n)
		}
		for j := 0; j < n; j++ {
			name, err := rd.String()
			if err != nil {
				return fmt.Errorf("registry: %w", err)
			}
			if sets[i].add(name) != j {
				return fmt.Errorf("registry: duplicate name %q", name)
			}
		}
	}
	if err := rd.Done(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	r.sources, r.interests = sets[0], sets[1]
	return nil
}
