package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Derived.DT != 3600 {
		t.Errorf("Derived.DT = %v, want 3600", cfg.Derived.DT)
	}
	if cfg.Derived.StatsWindow != 86400 {
		t.Errorf("Derived.StatsWindow = %v, want 86400", cfg.Derived.StatsWindow)
	}

	sink, ok := cfg.SinkConfig("daphnia")
	if !ok {
		t.Fatal("daphnia taxon missing")
	}
	if len(sink.Contaminants) != 1 || sink.Contaminants[0].Name != "cadmium" {
		t.Fatalf("daphnia contaminants = %+v", sink.Contaminants)
	}
	if sink.Contaminants[0].Movement != nil {
		t.Error("absent endpoint decoded as present")
	}
	if r := sink.Contaminants[0].Reproduction; r == nil || *r != "none" {
		t.Errorf("reproduction = %v, want none", r)
	}

	src, ok := cfg.SourceConfig("effluent")
	if !ok || len(src.Contaminants) != 1 {
		t.Errorf("effluent source = %+v, %v", src, ok)
	}
	if m := cfg.Derived.OrganismMass["daphnia-nearfield"]; m != 1e-4 {
		t.Errorf("daphnia mass = %v, want 1e-4", m)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	overlay := []byte("simulation:\n  dt: 15[min]\nstore:\n  driver: sqlite\n  path: run.db\n")
	if err := os.WriteFile(path, overlay, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Derived.DT != 900 {
		t.Errorf("Derived.DT = %v, want 900", cfg.Derived.DT)
	}
	if cfg.Simulation.MaxTicks != 720 {
		t.Errorf("MaxTicks = %d, want default 720", cfg.Simulation.MaxTicks)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "store:\n  driver: mongo\n"},
		{"sqlite without path", "store:\n  driver: sqlite\n  path: \"\"\n"},
		{"missing load update", "taxa:\n  snail:\n    contaminant_sink:\n      contaminants:\n        - name: zinc\n"},
		{"bad dt", "simulation:\n  dt: 3[parsec]\n"},
		{"zero dt", "simulation:\n  dt: \"0\"\n"},
		{"bad mass", "scenario:\n  organisms:\n    - name: x\n      taxon: daphnia\n      mass: heavy\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := Parse([]byte("store:\n  driver: mongo\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "effective.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("Load(written): %v", err)
	}
	if again.Derived.DT != cfg.Derived.DT || len(again.Taxa) != len(cfg.Taxa) {
		t.Error("round trip changed config")
	}
}

func TestCfgBeforeInitPanics(t *testing.T) {
	saved := global
	global = nil
	defer func() {
		global = saved
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Cfg()
}
