package exposure

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/exposure/contaminant"
	"github.com/pthm-cable/exposure/formula"
	"github.com/pthm-cable/exposure/pack"
)

func settledController(t *testing.T) *Controller {
	t.Helper()
	c, _, _ := newController(t, testParams())
	c.records[0].TickConcentration = 3
	c.Ingest("mercury", 4, 0)
	if err := c.Settle(0, 5, 5); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	c.SetMembers(c.Members() - 10)
	return c
}

func TestStateRoundTrip(t *testing.T) {
	c := settledController(t)
	data, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	got := New(Deps{Params: testParams(), Evaluator: formula.NewExpr(), Host: c.Host})
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if err := got.Reinitialize(); err != nil {
		t.Fatalf("Reinitialize: %v", err)
	}

	if got.Taxon() != "minnow" || got.Name() != "shoal-1" {
		t.Errorf("identity = %s/%s", got.Taxon(), got.Name())
	}
	if got.Members() != c.Members() {
		t.Errorf("Members = %v, want %v", got.Members(), c.Members())
	}
	for _, name := range c.Hazards() {
		want, _ := c.Record(name)
		r, ok := got.Record(name)
		if !ok {
			t.Fatalf("record %s missing", name)
		}
		if math.Float64bits(r.CurrentLoad) != math.Float64bits(want.CurrentLoad) {
			t.Errorf("%s load = %v, want %v", name, r.CurrentLoad, want.CurrentLoad)
		}
		if math.Float64bits(got.Level(name)) != math.Float64bits(c.Level(name)) {
			t.Errorf("%s level = %v, want %v", name, got.Level(name), c.Level(name))
		}
		if m, _ := got.Profile().Mass(name); m != want.CurrentLoad {
			t.Errorf("%s profile = %v", name, m)
		}
	}

	again, _ := got.MarshalBinary()
	if !bytes.Equal(again, data) {
		t.Error("re-marshalled state differs")
	}

	// Both controllers settle identically after the restore.
	for _, x := range []*Controller{c, got} {
		x.records[0].TickConcentration = 2
		if err := x.Settle(5, 5, 5); err != nil {
			t.Fatalf("Settle after restore: %v", err)
		}
	}
	if got.Members() != c.Members() || got.Level("cadmium") != c.Level("cadmium") {
		t.Error("restored controller diverged")
	}
}

func TestSettleBeforeReinitializeFails(t *testing.T) {
	data, _ := settledController(t).MarshalBinary()
	c := New(Deps{Params: testParams(), Evaluator: formula.NewExpr(), Host: &testHost{mass: 1}})
	if err := c.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if err := c.Settle(0, 1, 1); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestReinitializeRejectsChangedHazards(t *testing.T) {
	data, _ := settledController(t).MarshalBinary()

	p := testParams()
	sink := p["minnow"]
	sink.Contaminants[0], sink.Contaminants[1] = sink.Contaminants[1], sink.Contaminants[0]
	p["minnow"] = sink

	c := New(Deps{Params: p, Evaluator: formula.NewExpr(), Host: &testHost{}})
	if err := c.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if err := c.Reinitialize(); !errors.Is(err, ErrHazardSetChanged) {
		t.Errorf("err = %v, want ErrHazardSetChanged", err)
	}
}

func TestUnmarshalRejectsCorrupt(t *testing.T) {
	c := settledController(t)
	cube, _ := c.cube.MarshalBinary()
	rec, _ := c.records[0].MarshalBinary()

	build := func(n int, withCube bool, records int) []byte {
		w := pack.NewWriter()
		w.String("minnow")
		w.Int(n)
		if withCube {
			w.Part(cube)
		} else {
			w.Absent()
		}
		w.String("shoal-1")
		for i := 0; i < records; i++ {
			w.Part(rec)
		}
		return w.Bytes()
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"count exceeds records", build(3, true, 2)},
		{"axes mismatch count", build(1, true, 1)},
		{"records without accumulator", build(2, false, 2)},
		{"trailing record", build(2, true, 3)},
		{"duplicate names", build(2, true, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(Deps{Params: testParams(), Evaluator: formula.NewExpr(), Host: &testHost{}})
			if err := got.UnmarshalBinary(tt.data); !errors.Is(err, ErrCorruptState) {
				t.Errorf("err = %v, want ErrCorruptState", err)
			}
		})
	}
}

func TestAttach(t *testing.T) {
	c := settledController(t)

	reg := contaminant.NewRegistry()
	reg.RegisterInterest("cadmium")
	reg.RegisterInterest("mercury")
	prof := contaminant.NewProfile()
	prof.Append("cadmium", -1)
	prof.Append("mercury", 0)

	if err := c.Attach(reg, prof); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	r, _ := c.Record("cadmium")
	if m, _ := c.Profile().Mass("cadmium"); m != r.CurrentLoad {
		t.Errorf("attached profile not resynced: %v vs %v", m, r.CurrentLoad)
	}

	wrong := contaminant.NewRegistry()
	wrong.RegisterInterest("mercury")
	wrong.RegisterInterest("cadmium")
	if err := c.Attach(wrong, prof); !errors.Is(err, ErrHazardSetChanged) {
		t.Errorf("reordered registry err = %v", err)
	}
}

func TestAdopt(t *testing.T) {
	src := settledController(t)
	dst, _, _ := newController(t, testParams())
	deps := dst.Deps

	dst.Adopt(src)
	if dst.Members() != src.Members() {
		t.Errorf("Members = %v, want %v", dst.Members(), src.Members())
	}
	if dst.Host != deps.Host || dst.Logger != deps.Logger {
		t.Error("Adopt replaced the controller's collaborators")
	}
	for _, name := range src.Hazards() {
		if dst.Level(name) != src.Level(name) {
			t.Errorf("%s level = %v, want %v", name, dst.Level(name), src.Level(name))
		}
	}
}
