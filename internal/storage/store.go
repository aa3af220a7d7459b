// Package storage persists collision runs as per-run directories with JSON
// metadata and a CSV time series.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/plasmakit/collide/internal/run"
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

type RunMetadata struct {
	ID        string             `json:"id"`
	Scheme    string             `json:"scheme"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Dt        float64            `json:"dt"`
	Duration  float64            `json:"duration"`
	Markers   int                `json:"markers"`
	Accepted  int                `json:"accepted"`
	Rejected  int                `json:"rejected"`
	Errors    map[string]string  `json:"errors,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Save writes metadata.json and series.csv for one run and returns its id.
func (s *Store) Save(scheme string, dt, duration float64, seed int64, markers int, res *run.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", scheme, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Scheme:    scheme,
		Timestamp: time.Now(),
		Seed:      seed,
		Dt:        dt,
		Duration:  duration,
		Markers:   markers,
		Accepted:  res.Accepted,
		Rejected:  res.Rejected,
		Metrics:   res.Metrics,
	}
	if len(res.LaneErrors) > 0 {
		meta.Errors = make(map[string]string, len(res.LaneErrors))
		for lane, err := range res.LaneErrors {
			meta.Errors[strconv.Itoa(lane)] = err.Error()
		}
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "series.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if err := w.Write([]string{"time", "mean_energy_kev", "mean_pitch", "active"}); err != nil {
		return "", err
	}
	for i := range res.Times {
		row := []string{
			strconv.FormatFloat(res.Times[i], 'e', 9, 64),
			strconv.FormatFloat(res.MeanEnergy[i], 'f', 6, 64),
			strconv.FormatFloat(res.MeanPitch[i], 'f', 6, 64),
			strconv.Itoa(res.Active[i]),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	return runID, nil
}

// List returns metadata for every stored run.
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

// LoadSeries reads back a stored run's time series columns.
func (s *Store) LoadSeries(runID string) (times, energy, pitch []float64, err error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "series.csv"))
	if err != nil {
		return nil, nil, nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, nil, err
	}
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 3 {
			continue
		}
		t, err1 := strconv.ParseFloat(rec[0], 64)
		e, err2 := strconv.ParseFloat(rec[1], 64)
		x, err3 := strconv.ParseFloat(rec[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		times = append(times, t)
		energy = append(energy, e)
		pitch = append(pitch, x)
	}
	return times, energy, pitch, nil
}
