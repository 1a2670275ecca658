package activity

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/model"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/table"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func sampleTable() (*table.Normalized, []model.ExerciseParams) {
	tbl := &table.Normalized{
		Exercises: []string{"X1_1", "Y2"},
		Rows: []table.Row{
			{Student: "Alice", Class: "6A", Group: "G1", Scores: map[string]float64{"X1_1": 1.0, "Y2": 0.25}},
			{Student: "Bob", Class: "6A", Group: "G2", Scores: map[string]float64{"X1_1": 0.5}},
		},
	}
	params := []model.ExerciseParams{
		{ID: "X1", S: "1", N: 8},
		{ID: "Y2", N: 4},
	}
	return tbl, params
}

func TestBuildResultStatistics(t *testing.T) {
	tbl, params := sampleTable()
	result := BuildResult(tbl, params, "act-1", nil, nil)

	ex, ok := result.Exercises["X1_1"]
	if !ok {
		t.Fatal("missing exercise X1_1")
	}
	if ex.Count != 2 {
		t.Errorf("count = %d, want 2", ex.Count)
	}
	if !almostEqual(ex.AverageScore, 0.75) {
		t.Errorf("average = %v, want 0.75", ex.AverageScore)
	}
	if !almostEqual(ex.MinScore, 0.5) || !almostEqual(ex.MaxScore, 1.0) {
		t.Errorf("min/max = %v/%v, want 0.5/1.0", ex.MinScore, ex.MaxScore)
	}

	// Y2 has a single non-missing value.
	ey := result.Exercises["Y2"]
	if ey.Count != 1 || !almostEqual(ey.AverageScore, 0.25) {
		t.Errorf("Y2 stats: %+v", ey)
	}

	alice := result.Students["Alice"]
	if alice.Class != "6A" || alice.Group != "G1" {
		t.Errorf("Alice: %+v", alice)
	}
	if len(alice.Scores) != 2 {
		t.Errorf("Alice scores: %v", alice.Scores)
	}
	bob := result.Students["Bob"]
	if _, ok := bob.Scores["Y2"]; ok {
		t.Error("Bob should have no Y2 score")
	}
	if result.Metadata.Activity != "act-1" {
		t.Errorf("activity = %q", result.Metadata.Activity)
	}
}

type staticResolver struct{}

func (staticResolver) Resolve(ref string) (string, string, string, bool) {
	if ref == "X1" {
		return "Calcul littéral", "Littéral", "Réduction", true
	}
	return "", "", "", false
}

func TestBuildResultResolvesMetadata(t *testing.T) {
	tbl, params := sampleTable()
	result := BuildResult(tbl, params, "act-1", nil, staticResolver{})

	ex := result.Exercises["X1_1"]
	if ex.Titre != "Calcul littéral" || ex.Theme != "Littéral" || ex.SubTheme != "Réduction" {
		t.Errorf("metadata not resolved: %+v", ex)
	}
	if result.Exercises["Y2"].Theme != "" {
		t.Errorf("unresolved exercise should keep empty theme: %+v", result.Exercises["Y2"])
	}
}

func TestWriteCSV(t *testing.T) {
	tbl, _ := sampleTable()
	path := filepath.Join(t.TempDir(), "resultat.csv")
	if err := WriteCSV(path, tbl); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := "Élève,Classe,Groupe,X1_1,Y2\nAlice,6A,G1,1,0.25\nBob,6A,G2,0.5,\n"
	if string(data) != want {
		t.Errorf("csv = %q, want %q", string(data), want)
	}
}

func TestWriteJSONCreateThenUpdate(t *testing.T) {
	tbl, params := sampleTable()
	path := filepath.Join(t.TempDir(), "resultat.json")

	first := BuildResult(tbl, params, "act-1", map[string]string{"periode": "T1"}, nil)
	if err := WriteJSON(path, first); err != nil {
		t.Fatalf("first WriteJSON: %v", err)
	}
	if first.Metadata.ExportID == "" {
		t.Fatal("first export got no export id")
	}

	var onDisk model.ActivityResult
	readBack := func() {
		t.Helper()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if err := json.Unmarshal(data, &onDisk); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	readBack()
	created := onDisk.Metadata.CreatedAt
	exportID := onDisk.Metadata.ExportID

	// Re-export overwrites in place: same created_at and export id,
	// refreshed updated_at, replaced content.
	second := BuildResult(tbl, params, "act-1", map[string]string{"periode": "T2"}, nil)
	if err := WriteJSON(path, second); err != nil {
		t.Fatalf("second WriteJSON: %v", err)
	}
	readBack()

	if !onDisk.Metadata.CreatedAt.Equal(created) {
		t.Errorf("created_at changed: %v vs %v", onDisk.Metadata.CreatedAt, created)
	}
	if onDisk.Metadata.ExportID != exportID {
		t.Errorf("export id changed: %q vs %q", onDisk.Metadata.ExportID, exportID)
	}
	if onDisk.Metadata.UpdatedAt.Before(created) {
		t.Errorf("updated_at not refreshed: %v", onDisk.Metadata.UpdatedAt)
	}
	if onDisk.Tags["periode"] != "T2" {
		t.Errorf("tags not replaced: %v", onDisk.Tags)
	}
}

func TestWriteJSONCorruptExisting(t *testing.T) {
	tbl, params := sampleTable()
	path := filepath.Join(t.TempDir(), "resultat.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := BuildResult(tbl, params, "act-1", nil, nil)
	if err := WriteJSON(path, result); err == nil {
		t.Fatal("expected error for corrupt existing file")
	}
}
