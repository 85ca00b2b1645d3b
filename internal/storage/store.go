// Package storage persists simulation runs: per-run directories holding
// stage state snapshots, thermodynamic traces and run metadata. The stage
// state files are the hand-off between protocol stages.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// StageMeta summarizes one completed protocol stage.
type StageMeta struct {
	Name      string             `json:"name"`
	Steps     int                `json:"steps"`
	Timestep  float64            `json:"timestep"`
	Seed      int64              `json:"seed,omitempty"`
	Couplings []string           `json:"couplings,omitempty"`
	Outcome   string             `json:"outcome,omitempty"`
	Final     map[string]float64 `json:"final,omitempty"`
}

type RunMetadata struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Stages    []StageMeta `json:"stages"`
}

// Run is an open run directory.
type Run struct {
	ID   string
	dir  string
	Meta RunMetadata
}

func (s *Store) NewRun(source string) (*Run, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("run_%d", time.Now().Unix())
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Run{
		ID:  id,
		dir: dir,
		Meta: RunMetadata{
			ID:        id,
			Timestamp: time.Now(),
			Source:    source,
		},
	}, nil
}

func (r *Run) Dir() string { return r.dir }

func (r *Run) StatePath(stage string) string {
	return filepath.Join(r.dir, fmt.Sprintf("state_%s.json", stage))
}

func (r *Run) ThermoPath(stage string) string {
	return filepath.Join(r.dir, fmt.Sprintf("thermo_%s.csv", stage))
}

func (r *Run) AddStage(m StageMeta) { r.Meta.Stages = append(r.Meta.Stages, m) }

func (r *Run) WriteMetadata() error {
	f, err := os.Create(filepath.Join(r.dir, "metadata.json"))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Meta)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}
	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadThermo reads one stage's thermodynamic trace back as named columns.
func (s *Store) LoadThermo(runID, stage string) ([]string, [][]float64, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, fmt.Sprintf("thermo_%s.csv", stage)))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 1 {
		return nil, nil, fmt.Errorf("thermo trace for %s/%s is empty", runID, stage)
	}

	header := records[0]
	cols := make([][]float64, len(header))
	for _, row := range records[1:] {
		for j, cell := range row {
			if j >= len(cols) {
				break
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			cols[j] = append(cols[j], v)
		}
	}
	return header, cols, nil
}
