package contaminant

import (
	"math"
	"testing"

	"github.com/pthm-cable/exposure/pack"
)

func TestRegistryOrdinals(t *testing.T) {
	r := NewRegistry()
	if i := r.RegisterInterest("cadmium"); i != 0 {
		t.Errorf("first ordinal = %d, want 0", i)
	}
	r.RegisterInterest("ddt")
	if i := r.RegisterInterest("cadmium"); i != 0 {
		t.Errorf("re-register ordinal = %d, want 0", i)
	}
	if r.CountInterests() != 2 {
		t.Fatalf("CountInterests = %d, want 2", r.CountInterests())
	}
	if r.InterestAt(1) != "ddt" {
		t.Errorf("InterestAt(1) = %q, want ddt", r.InterestAt(1))
	}
	if !r.IsInterested("ddt") || r.IsSource("ddt") {
		t.Error("sets are not independent")
	}

	r.RegisterSource("ddt")
	if r.SourceIndex("ddt") != 0 || r.SourceIndex("pcb") != -1 {
		t.Errorf("SourceIndex wrong: %d %d", r.SourceIndex("ddt"), r.SourceIndex("pcb"))
	}

	r.ClearInterests()
	if r.CountInterests() != 0 || r.IsInterested("cadmium") {
		t.Error("ClearInterests left entries")
	}
	if r.CountSources() != 1 {
		t.Error("ClearInterests touched sources")
	}
	if i := r.RegisterInterest("pcb"); i != 0 {
		t.Errorf("ordinal after clear = %d, want 0", i)
	}
}

func TestRegistryBinaryRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.RegisterSource("ddt")
	r.RegisterInterest("cadmium")
	r.RegisterInterest("ddt")

	data, err := r.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got := NewRegistry()
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.CountSources() != 1 || got.SourceAt(0) != "ddt" {
		t.Errorf("sources = %v", got.Sources())
	}
	if got.InterestIndex("ddt") != 1 || got.InterestIndex("cadmium") != 0 {
		t.Errorf("interests = %v", got.Interests())
	}

	if err := got.UnmarshalBinary(data[:len(data)-1]); err == nil {
		t.Error("truncated buffer accepted")
	}
}

func TestRegistryUnmarshalDuplicate(t *testing.T) {
	w := pack.NewWriter()
	w.Int(0)
	w.Int(2)
	w.String("cadmium")
	w.String("cadmium")

	r := NewRegistry()
	r.RegisterInterest("mercury")
	if err := r.UnmarshalBinary(w.Bytes()); err == nil {
		t.Fatal("registry with a duplicate interest accepted")
	}
	if r.CountInterests() != 1 || r.InterestAt(0) != "mercury" {
		t.Errorf("interests after rejected buffer = %v, want [mercury]", r.Interests())
	}
}

func TestProfile(t *testing.T) {
	p := NewProfile()
	if err := p.Append("", 1); err != ErrEmptyName {
		t.Errorf("Append empty name err = %v, want ErrEmptyName", err)
	}
	p.Append("ddt", 0)
	p.Append("cadmium", 0.5)
	p.Append("ddt", 2)

	if !p.Set("ddt", 3) {
		t.Fatal("Set(ddt) = false")
	}
	if p.At(0).Mass != 3 || p.At(2).Mass != 2 {
		t.Errorf("Set updated wrong entry: %+v", p.Entries())
	}
	if p.Set("pcb", 1) {
		t.Error("Set(pcb) = true for missing entry")
	}

	c := p.Clone()
	c.Set("cadmium", 9)
	if m, _ := p.Mass("cadmium"); m != 0.5 {
		t.Errorf("clone shares storage: cadmium = %v", m)
	}
}

func TestProfileBinaryRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"empty", nil},
		{"entries", []Entry{{"ddt", 1.0 / 3}, {"cadmium", math.SmallestNonzeroFloat64}, {"ddt", 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProfile()
			for _, e := range tt.entries {
				p.Append(e.Name, e.Mass)
			}
			data, err := p.MarshalBinary()
			if err != nil {
				t.Fatal(err)
			}
			got := NewProfile()
			got.Append("stale", 1)
			if err := got.UnmarshalBinary(data); err != nil {
				t.Fatalf("UnmarshalBinary: %v", err)
			}
			if got.Len() != len(tt.entries) {
				t.Fatalf("Len = %d, want %d", got.Len(), len(tt.entries))
			}
			for i, e := range tt.entries {
				g := got.At(i)
				if g.Name != e.Name || math.Float64bits(g.Mass) != math.Float64bits(e.Mass) {
					t.Errorf("entry %d = %+v, want %+v", i, g, e)
				}
			}
		})
	}
}
