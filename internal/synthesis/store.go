// Package synthesis owns the cross-activity aggregate: one JSON document per
// deployment holding every exercise and student ever seen with running
// statistics, plus a derived CSV projection, and the merge algorithm that
// folds a new activity into it with streaming mean updates.
package synthesis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/model"
)

// Contribution records what one activity added to an exercise, so a forced
// re-merge can subtract it again exactly.
type Contribution struct {
	N            int     `json:"n"`
	AverageScore float64 `json:"average_score"`
	MinScore     float64 `json:"min_score"`
	MaxScore     float64 `json:"max_score"`
}

// Exercise is the running record for one exercise identity. Created on first
// occurrence across any activity, mutated in place by every merge, never
// deleted.
type Exercise struct {
	N             int                     `json:"n"`
	AverageScore  float64                 `json:"average_score"`
	MinScore      float64                 `json:"min_score"`
	MaxScore      float64                 `json:"max_score"`
	Titre         string                  `json:"titre,omitempty"`
	Theme         string                  `json:"theme,omitempty"`
	SubTheme      string                  `json:"sub_theme,omitempty"`
	Params        model.ExerciseParams    `json:"params"`
	Activities    []string                `json:"activities"`
	Contributions map[string]Contribution `json:"contributions,omitempty"`
}

// Student is the running record for one student name. Class and group are
// fixed at creation; scores grow additively across activities.
type Student struct {
	Class      string             `json:"class"`
	Group      string             `json:"group"`
	Scores     map[string]float64 `json:"scores"`
	Activities []string           `json:"activities"`

	// ScoreSources keeps the raw per-activity score behind each blended
	// entry, keyed exercise id then activity name. It is the replay base
	// for forced re-merges.
	ScoreSources map[string]map[string]float64 `json:"score_sources,omitempty"`
}

// Statistics are the global figures recomputed after every merge.
type Statistics struct {
	TotalExercises           int     `json:"total_exercises"`
	TotalStudents            int     `json:"total_students"`
	AverageScoreAllExercises float64 `json:"average_score_all_exercises"`
	TotalN                   int     `json:"total_n"`
}

// Metadata is the store-level bookkeeping block.
type Metadata struct {
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	SynthesizedActivities []string   `json:"synthesized_activities"`
	TotalN                int        `json:"total_n"`
	Statistics            Statistics `json:"statistics"`
}

// Store is the persistent aggregate. It is an explicit value passed through
// load → merge → save; callers serialize access (single writer, no locking).
type Store struct {
	Tags      map[string]string    `json:"tags"`
	Exercises map[string]*Exercise `json:"exercises"`
	Students  map[string]*Student  `json:"students"`
	Metadata  Metadata             `json:"metadata"`

	// order fixes the exercise column order of the CSV projection:
	// insertion order within a process, sorted after a load.
	order []string
}

// New returns an empty but valid store.
func New() *Store {
	now := time.Now()
	return &Store{
		Tags:      map[string]string{},
		Exercises: map[string]*Exercise{},
		Students:  map[string]*Student{},
		Metadata: Metadata{
			CreatedAt:             now,
			UpdatedAt:             now,
			SynthesizedActivities: []string{},
		},
	}
}

// Load reads the store document. A missing file yields a fresh empty store;
// a present but undecodable file is an error, never a silent reset.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read synthesis store %s: %w", path, err)
	}

	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode synthesis store %s: %w", path, err)
	}
	if s.Tags == nil {
		s.Tags = map[string]string{}
	}
	if s.Exercises == nil {
		s.Exercises = map[string]*Exercise{}
	}
	if s.Students == nil {
		s.Students = map[string]*Student{}
	}
	if s.Metadata.SynthesizedActivities == nil {
		s.Metadata.SynthesizedActivities = []string{}
	}

	s.order = make([]string, 0, len(s.Exercises))
	for id := range s.Exercises {
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)
	return s, nil
}

// ExerciseOrder returns the CSV column order for the current exercises.
func (s *Store) ExerciseOrder() []string {
	return append([]string(nil), s.order...)
}

// Save writes the JSON document and regenerates the CSV projection. The CSV
// is a pure derived view; JSON is written first, so a failure in between
// leaves a store that can still regenerate its projection.
func (s *Store) Save(jsonPath, csvPath string) error {
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0o755); err != nil {
		return fmt.Errorf("create synthesis dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal synthesis store: %w", err)
	}
	if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", jsonPath, err)
	}

	return s.writeCSV(csvPath)
}

// writeCSV projects the store as a wide table: one row per student, one
// column per exercise, blank cells where a student has no score.
func (s *Store) writeCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"Élève", "Classe", "Groupe"}, s.order...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	names := make([]string, 0, len(s.Students))
	for name := range s.Students {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := s.Students[name]
		rec := []string{name, st.Class, st.Group}
		for _, id := range s.order {
			if v, ok := st.Scores[id]; ok {
				rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				rec = append(rec, "")
			}
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write row for %s: %w", name, err)
		}
	}
	w.Flush()
	return w.Error()
}
