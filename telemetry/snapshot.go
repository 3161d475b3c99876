package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot is a human-readable dump of every organism instance. It is
// written alongside bookmarks; the binary checkpoint in the store is what
// restores a run.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`

	Tick    int32   `json:"tick"`
	SimTime float64 `json:"sim_time"`

	Instances []InstanceState `json:"instances"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// InstanceState holds one organism instance's exposure state.
type InstanceState struct {
	Name  string  `json:"name"`
	Taxon string  `json:"taxon"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`

	Members float64 `json:"members"`
	Mass    float64 `json:"mass"`

	// Hazard levels of the tracked contaminants in axis order.
	Levels []float64 `json:"levels"`

	Loads       map[string]float64 `json:"loads,omitempty"`
	Impairments map[string]float64 `json:"impairments,omitempty"`

	Lifetime *LifetimeStats `json:"lifetime,omitempty"`
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
