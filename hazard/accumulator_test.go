package hazard

import (
	"math"
	"testing"
)

func TestAdjustByLevelsComposesAxes(t *testing.T) {
	a := NewWithReference(2, 1000)

	if got := a.AdjustByLevels([]float64{0.1, 0}, 0); got != 900 {
		t.Fatalf("after first batch Value = %v, want 900", got)
	}
	if got := a.AdjustByLevels([]float64{0, 0.5}, 0); got != 450 {
		t.Fatalf("after second batch Value = %v, want 450", got)
	}
	if a.Level(0) != 0.1 || a.Level(1) != 0.5 {
		t.Errorf("levels = [%v %v], want [0.1 0.5]", a.Level(0), a.Level(1))
	}
}

func TestAdjustByLevelsClosedForm(t *testing.T) {
	a := NewWithReference(3, 1)
	a.AdjustByLevels([]float64{0.2}, 1)
	a.AdjustByLevels([]float64{0.3}, 1)

	want := 1 - (1-0.2)*(1-0.3)
	if got := a.Level(1); math.Abs(got-want) > 1e-15 {
		t.Errorf("Level(1) = %v, want %v", got, want)
	}
	if a.Level(0) != 0 || a.Level(2) != 0 {
		t.Errorf("untouched axes changed: %v %v", a.Level(0), a.Level(2))
	}
}

func TestAdjustByCount(t *testing.T) {
	a := NewWithReference(1, 200)

	if got := a.AdjustByCount(50, 0); got != 50 {
		t.Errorf("AdjustByCount(50) = %v, want 50", got)
	}
	if got := a.Level(0); got != 0.25 {
		t.Errorf("Level(0) = %v, want 0.25", got)
	}
	if got := a.Value(); got != 150 {
		t.Errorf("Value = %v, want 150", got)
	}
}

func TestAdjustByCountClampsToSurvivors(t *testing.T) {
	a := NewWithReference(2, 100)
	a.AdjustByLevels([]float64{0, 0.5}, 0)

	got := a.AdjustByCount(1000, 0)
	if got != 50 {
		t.Errorf("AdjustByCount(1000) = %v, want 50", got)
	}
	if a.Level(0) != 1 {
		t.Errorf("Level(0) = %v, want 1", a.Level(0))
	}
	if a.Value() != 0 {
		t.Errorf("Value = %v, want 0", a.Value())
	}
}

func TestAdjustByCountNoOps(t *testing.T) {
	tests := []struct {
		name    string
		ref     float64
		levels  []float64
		removed float64
	}{
		{"zero removal", 100, []float64{0, 0}, 0},
		{"negative removal", 100, []float64{0, 0}, -5},
		{"NaN removal", 100, []float64{0, 0}, math.NaN()},
		{"zero reference", 0, []float64{0, 0}, 10},
		{"other axis saturated", 100, []float64{0, 1}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewWithReference(len(tt.levels), tt.ref)
			a.AdjustByLevels(tt.levels, 0)
			if got := a.AdjustByCount(tt.removed, 0); got != 0 {
				t.Errorf("AdjustByCount = %v, want 0", got)
			}
			if a.Level(0) != 0 {
				t.Errorf("Level(0) = %v, want 0", a.Level(0))
			}
		})
	}
}

func TestValueNonIncreasing(t *testing.T) {
	a := NewWithReference(4, 5000)
	batches := [][]float64{
		{0.01, 0.2, 0},
		{0, 0, 0.3},
		{0.5, 0, 0},
		{0, 0, 0},
		{1, 0.9, 0.1},
	}
	prev := a.Value()
	for i, b := range batches {
		got := a.AdjustByLevels(b, 1)
		if got > prev {
			t.Fatalf("batch %d: Value rose from %v to %v", i, prev, got)
		}
		prev = got
		if n := a.AdjustByCount(7, 0); n < 0 {
			t.Fatalf("batch %d: AdjustByCount returned %v", i, n)
		}
		if v := a.Value(); v > prev {
			t.Fatalf("batch %d: Value rose after count removal", i)
		}
		prev = a.Value()
	}
}

func TestLevelOutOfRangePanics(t *testing.T) {
	tests := []struct {
		name  string
		level float64
	}{
		{"negative", -0.1},
		{"above one", 1.5},
		{"NaN", math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			a := New(1)
			a.AdjustByLevels([]float64{tt.level}, 0)
		})
	}
}

func TestAddDimension(t *testing.T) {
	a := NewWithReference(1, 10)
	a.AdjustByLevels([]float64{0.5}, 0)
	a.AddDimension()

	if a.Axes() != 2 {
		t.Fatalf("Axes = %d, want 2", a.Axes())
	}
	if a.Level(1) != 0 {
		t.Errorf("new axis level = %v, want 0", a.Level(1))
	}
	if a.Value() != 5 {
		t.Errorf("Value = %v, want 5", a.Value())
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	a := NewWithReference(3, 1234.5)
	a.AdjustByLevels([]float64{0.1, 1.0 / 3, 0.7}, 0)

	data, err := a.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(data) != 8*5 {
		t.Fatalf("len = %d, want 40", len(data))
	}

	var b Accumulator
	if err := b.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if b.Reference() != a.Reference() || b.Axes() != a.Axes() {
		t.Fatalf("header mismatch: ref %v axes %d", b.Reference(), b.Axes())
	}
	for i := 0; i < a.Axes(); i++ {
		if math.Float64bits(a.Level(i)) != math.Float64bits(b.Level(i)) {
			t.Errorf("axis %d: %v != %v", i, b.Level(i), a.Level(i))
		}
	}
	if b.Value() != a.Value() {
		t.Errorf("Value = %v, want %v", b.Value(), a.Value())
	}
}

func TestUnmarshalRejectsCorrupt(t *testing.T) {
	good, _ := NewWithReference(2, 10).MarshalBinary()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", good[:len(good)-8]},
		{"ragged", good[:len(good)-3]},
		{"extra word", append(append([]byte{}, good...), make([]byte, 8)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Accumulator
			if err := a.UnmarshalBinary(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}
