package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/piwi3910/KitPlacer/internal/model"
)

// SnapshotVersion is written into every experiment snapshot.
const SnapshotVersion = "1.0.0"

// Snapshot is the on-disk form of the active experiment.
type Snapshot struct {
	Version    string           `json:"version"`
	SavedAt    string           `json:"saved_at"`
	Experiment model.Experiment `json:"experiment"`
}

// SaveSnapshot writes the experiment to path. The file is written to a
// temporary sibling first and renamed into place.
func SaveSnapshot(path string, exp model.Experiment) error {
	snap := Snapshot{
		Version:    SnapshotVersion,
		SavedAt:    time.Now().UTC().Format(time.RFC3339),
		Experiment: exp,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal experiment snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

// LoadSnapshot reads an experiment snapshot. A missing file yields an
// empty experiment with no error.
func LoadSnapshot(path string) (model.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewExperiment(), nil
		}
		return model.Experiment{}, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Experiment{}, fmt.Errorf("failed to parse snapshot file: %w", err)
	}
	if snap.Version == "" {
		return model.Experiment{}, fmt.Errorf("invalid snapshot file: missing version field")
	}
	exp := snap.Experiment
	if exp.Materials == nil {
		exp.Materials = []model.Material{}
	}
	if exp.Procedure == nil {
		exp.Procedure = []model.ProcedureWell{}
	}
	return exp, nil
}
