// Package table builds the normalized per-activity score table: raw results
// joined with the roster, columns renamed to exercise identities, scores
// scaled into [0,1] by each exercise's max points.
package table

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/model"
)

// MissingRosterEntryError reports a student present in the raw results but
// absent from the roster.
type MissingRosterEntryError struct {
	Student string
}

func (e *MissingRosterEntryError) Error() string {
	return fmt.Sprintf("student %q has no roster entry", e.Student)
}

// ColumnCountMismatchError reports a disagreement between the parsed
// exercise parameter groups and the numeric result columns.
type ColumnCountMismatchError struct {
	Params  int
	Columns int
}

func (e *ColumnCountMismatchError) Error() string {
	return fmt.Sprintf("parsed %d exercise parameter groups but found %d numeric columns", e.Params, e.Columns)
}

// RosterEntry is one student's class and group assignment.
type RosterEntry struct {
	Class string
	Group string
}

// Roster maps student name to class/group.
type Roster map[string]RosterEntry

// Raw is the results export as read from disk: first column student name,
// remaining columns one per exercise-attempt slot.
type Raw struct {
	Columns []string
	Rows    []RawRow
}

// RawRow holds one student's raw cells; only numeric cells are kept.
type RawRow struct {
	Student string
	Values  map[string]float64
}

// Row is one student's normalized line, keyed by exercise identity.
type Row struct {
	Student string
	Class   string
	Group   string
	Scores  map[string]float64
}

// Normalized is the per-activity score table handed to the exporter:
// Exercises lists identities in column order, rows follow raw-file order.
type Normalized struct {
	Exercises []string
	Rows      []Row
}

// ReadRaw reads the raw results CSV. Cells that do not parse as numbers are
// treated as missing, matching the lenient numeric coercion of the export.
func ReadRaw(path string) (*Raw, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("results file %s is empty", path)
	}

	header := records[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("results file %s has no score columns", path)
	}
	raw := &Raw{Columns: header[1:]}
	for _, rec := range records[1:] {
		row := RawRow{Student: strings.TrimSpace(rec[0]), Values: make(map[string]float64)}
		for i, col := range raw.Columns {
			if i+1 >= len(rec) {
				break
			}
			cell := strings.TrimSpace(rec[i+1])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", "."), 64)
			if err != nil || math.IsNaN(v) {
				continue
			}
			row.Values[col] = v
		}
		raw.Rows = append(raw.Rows, row)
	}
	return raw, nil
}

// ReadRoster reads the student/class/group file. Column order is free; the
// Élève, Classe and Groupe headers are located by name.
func ReadRoster(path string) (Roster, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("roster file %s is empty", path)
	}

	idx := map[string]int{}
	for i, name := range records[0] {
		idx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"Élève", "Classe", "Groupe"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("roster file %s: missing column %q", path, required)
		}
	}

	roster := make(Roster, len(records)-1)
	for _, rec := range records[1:] {
		name := strings.TrimSpace(rec[idx["Élève"]])
		if name == "" {
			continue
		}
		roster[name] = RosterEntry{
			Class: strings.TrimSpace(rec[idx["Classe"]]),
			Group: strings.TrimSpace(rec[idx["Groupe"]]),
		}
	}
	return roster, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// Build joins the roster onto the raw table, renames the numeric columns to
// the exercise identities carried by params (positional alignment), infers a
// missing max-points value per exercise from the observed maximum, and
// normalizes every score by that max. The inferred max is written back into
// params so downstream consumers see a consistent value.
func Build(raw *Raw, params []model.ExerciseParams, roster Roster) (*Normalized, error) {
	numeric := numericColumns(raw.Columns)
	if len(numeric) != len(params) {
		return nil, &ColumnCountMismatchError{Params: len(params), Columns: len(numeric)}
	}

	out := &Normalized{}
	for i := range params {
		out.Exercises = append(out.Exercises, params[i].SuperID())
	}

	for _, rr := range raw.Rows {
		entry, ok := roster[rr.Student]
		if !ok {
			return nil, &MissingRosterEntryError{Student: rr.Student}
		}
		row := Row{Student: rr.Student, Class: entry.Class, Group: entry.Group, Scores: make(map[string]float64)}
		for i, col := range numeric {
			if v, ok := rr.Values[col]; ok {
				row.Scores[out.Exercises[i]] = v
			}
		}
		out.Rows = append(out.Rows, row)
	}

	for i := range params {
		id := out.Exercises[i]
		if params[i].N == 0 {
			max, ok := columnMax(out.Rows, id)
			if !ok {
				return nil, fmt.Errorf("exercise %s: cannot infer max points, no scores recorded", id)
			}
			params[i].N = int(max)
		}
		if params[i].N <= 0 {
			return nil, fmt.Errorf("exercise %s: invalid max points %d", id, params[i].N)
		}
		for r := range out.Rows {
			if v, ok := out.Rows[r].Scores[id]; ok {
				out.Rows[r].Scores[id] = v / float64(params[i].N)
			}
		}
	}

	return out, nil
}

// numericColumns keeps the headers containing at least one digit; those are
// the attempt-score slots, everything else is dropped after the join.
func numericColumns(columns []string) []string {
	var out []string
	for _, col := range columns {
		if strings.ContainsAny(col, "0123456789") {
			out = append(out, col)
		}
	}
	return out
}

func columnMax(rows []Row, id string) (float64, bool) {
	max, found := 0.0, false
	for _, row := range rows {
		if v, ok := row.Scores[id]; ok {
			if !found || v > max {
				max = v
			}
			found = true
		}
	}
	return max, found
}
