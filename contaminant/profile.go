package contaminant

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/exposure/pack"
)

// ErrEmptyName is returned when appending an unnamed profile entry.
var ErrEmptyName = errors.New("contaminant: empty profile entry name")

// Entry is one contaminant mass held by an organism.
type Entry struct {
	Name string
	Mass float64 // kg
}

// Profile is an ordered, append-only list of contaminant masses. It is the
// view of an instance's body burden that other instances (predators, for
// example) read. Duplicate names are allowed; Set updates the first match.
type Profile struct {
	entries []Entry
}

// NewProfile creates an empty profile.
func NewProfile() *Profile {
	return &Profile{}
}

// Append adds an entry.
func (p *Profile) Append(name string, mass float64) error {
	if name == "" {
		return ErrEmptyName
	}
	p.entries = append(p.entries, Entry{Name: name, Mass: mass})
	return nil
}

// Len returns the number of entries.
func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// At returns entry i.
func (p *Profile) At(i int) Entry {
	return p.entries[i]
}

// Mass returns the mass of the first entry called name.
func (p *Profile) Mass(name string) (float64, bool) {
	for _, e := range p.entries {
		if e.Name == name {
			return e.Mass, true
		}
	}
	return 0, false
}

// Set updates the first entry called name and reports whether one existed.
func (p *Profile) Set(name string, mass float64) bool {
	for i := range p.entries {
		if p.entries[i].Name == name {
			p.entries[i].Mass = mass
			return true
		}
	}
	return false
}

// Entries returns a copy of all entries.
func (p *Profile) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}

// Clone returns an independent copy.
func (p *Profile) Clone() *Profile {
	return &Profile{entries: p.Entries()}
}

// MarshalBinary packs the entry count followed by the entry list, or an
// absent part when the profile is empty.
func (p *Profile) MarshalBinary() ([]byte, error) {
	w := pack.NewWriter()
	w.Int(len(p.entries))
	if len(p.entries) == 0 {
		w.Absent()
		return w.Bytes(), nil
	}
	list := pack.NewWriter()
	for _, e := range p.entries {
		list.Float64(e.Mass)
		list.String(e.Name)
	}
	w.Part(list.Bytes())
	return w.Bytes(), nil
}

// UnmarshalBinary replaces the entries with those in data.
func (p *Profile) UnmarshalBinary(data []byte) error {
	r := pack.NewReader(data)
	n, err := r.Int()
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("profile: negative entry count %d", n)
	}
	list, ok, err := r.Part()
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if err := r.Done(); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if !ok {
		if n != 0 {
			return fmt.Errorf("profile: %d entries declared but list absent", n)
		}
		p.entries = nil
		return nil
	}

	lr := pack.NewReader(list)
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		mass, err := lr.Float64()
		if err != nil {
			return fmt.Errorf("profile entry %d: %w", i, err)
		}
		name, err := lr.String()
		if err != nil {
			return fmt.Errorf("profile entry %d: %w", i, err)
		}
		if name == "" {
			return fmt.Errorf("profile entry %d: %w", i, ErrEmptyName)
		}
		entries = append(entries, Entry{Name: name, Mass: mass})
	}
	if err := lr.Done(); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	p.entries = entries
	return nil
}
