package activity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/config"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/model"
)

// newTestDeployment lays out a data root with one ready-to-process activity.
func newTestDeployment(t *testing.T, activityName string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	sourceDir := cfg.SourceDataDir(activityName)
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		filepath.Join(sourceDir, cfg.ResFilename): "Élève,ex1_raw\nAlice,8\nBob,4\n",
		filepath.Join(sourceDir, cfg.URLFilename): `<html><head><meta http-equiv="refresh" content="0; URL=https://coopmaths.fr/alea/?uuid=u1&id=X1&s=1&alea=AAAA"></head></html>`,
		cfg.RosterPath():                          "Élève,Classe,Groupe\nAlice,6A,G1\nBob,6A,G2\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	cfg := newTestDeployment(t, "1-Calcul_littéral")

	out, err := Run(cfg, "1-Calcul_littéral", map[string]string{"periode": "T1"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(out.JSONPath)
	if err != nil {
		t.Fatalf("read result json: %v", err)
	}
	var result model.ActivityResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result json: %v", err)
	}

	ex, ok := result.Exercises["X1_1"]
	if !ok {
		t.Fatalf("exercises: %v", result.Exercises)
	}
	if ex.Count != 2 {
		t.Errorf("count = %d, want 2", ex.Count)
	}
	if !almostEqual(ex.AverageScore, 0.75) {
		t.Errorf("average = %v, want 0.75", ex.AverageScore)
	}
	// Max points inferred as 8: Alice hit it, Bob got half.
	if ex.Params.N != 8 {
		t.Errorf("inferred max points = %d, want 8", ex.Params.N)
	}
	if got := result.Students["Alice"].Scores["X1_1"]; !almostEqual(got, 1.0) {
		t.Errorf("Alice = %v, want 1.0", got)
	}
	if got := result.Students["Bob"].Scores["X1_1"]; !almostEqual(got, 0.5) {
		t.Errorf("Bob = %v, want 0.5", got)
	}
	if result.Tags["periode"] != "T1" {
		t.Errorf("tags: %v", result.Tags)
	}

	if _, err := os.Stat(out.CSVPath); err != nil {
		t.Errorf("csv not written: %v", err)
	}
}

func TestRunMissingActivityFolder(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	_, err := Run(cfg, "absente", nil, nil)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
}

func TestRunMissingSourceData(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	if err := os.MkdirAll(cfg.ActivityDir("act"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := Run(cfg, "act", nil, nil)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
}
