// Package activity turns a normalized score table into the per-activity
// summary record and its audit files (resultat.csv, resultat.json).
package activity

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/model"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/table"
)

// Resolver supplies static exercise metadata (title, theme, sub-theme) for a
// mathALÉA exercise reference. A nil Resolver leaves the metadata unresolved.
type Resolver interface {
	Resolve(ref string) (titre, theme, subTheme string, ok bool)
}

// BuildResult computes the ActivityResult for one normalized table: per
// exercise mean/min/max/count over non-missing scores, per student the map
// of non-missing scores.
func BuildResult(tbl *table.Normalized, params []model.ExerciseParams, activityName string, tags map[string]string, res Resolver) *model.ActivityResult {
	now := time.Now()
	result := &model.ActivityResult{
		Metadata: model.Metadata{
			CreatedAt: now,
			UpdatedAt: now,
			Activity:  activityName,
		},
		Tags:      tags,
		Exercises: make(map[string]model.ExerciseResult, len(params)),
		Students:  make(map[string]model.StudentResult, len(tbl.Rows)),
	}
	if result.Tags == nil {
		result.Tags = map[string]string{}
	}

	for i, p := range params {
		id := tbl.Exercises[i]
		er := model.ExerciseResult{Params: p, Titre: p.Title}
		for _, row := range tbl.Rows {
			v, ok := row.Scores[id]
			if !ok {
				continue
			}
			if er.Count == 0 || v < er.MinScore {
				er.MinScore = v
			}
			if er.Count == 0 || v > er.MaxScore {
				er.MaxScore = v
			}
			er.AverageScore += v
			er.Count++
		}
		if er.Count > 0 {
			er.AverageScore /= float64(er.Count)
		}
		if res != nil {
			if titre, theme, subTheme, ok := res.Resolve(p.ID); ok {
				if titre != "" {
					er.Titre = titre
				}
				er.Theme = theme
				er.SubTheme = subTheme
			}
		}
		result.Exercises[id] = er
	}

	for _, row := range tbl.Rows {
		scores := make(map[string]float64, len(row.Scores))
		for id, v := range row.Scores {
			scores[id] = v
		}
		result.Students[row.Student] = model.StudentResult{
			Class:  row.Class,
			Group:  row.Group,
			Scores: scores,
		}
	}

	return result
}

// WriteCSV writes the normalized table as the activity's resultat.csv.
func WriteCSV(path string, tbl *table.Normalized) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"Élève", "Classe", "Groupe"}, tbl.Exercises...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range tbl.Rows {
		rec := []string{row.Student, row.Class, row.Group}
		for _, id := range tbl.Exercises {
			if v, ok := row.Scores[id]; ok {
				rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				rec = append(rec, "")
			}
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write row for %s: %w", row.Student, err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteJSON persists the activity record. Re-exporting the same activity
// overwrites in place: created_at and export_id survive from the existing
// file, updated_at is refreshed. The first write stamps a fresh export id.
func WriteJSON(path string, result *model.ActivityResult) error {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var existing model.ActivityResult
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("decode existing %s: %w", path, err)
		}
		if !existing.Metadata.CreatedAt.IsZero() {
			result.Metadata.CreatedAt = existing.Metadata.CreatedAt
		}
		if existing.Metadata.ExportID != "" {
			result.Metadata.ExportID = existing.Metadata.ExportID
		}
		result.Metadata.UpdatedAt = time.Now()
	case os.IsNotExist(err):
		// First export of this activity.
	default:
		return fmt.Errorf("read %s: %w", path, err)
	}
	if result.Metadata.ExportID == "" {
		result.Metadata.ExportID = uuid.NewString()
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal activity result: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
