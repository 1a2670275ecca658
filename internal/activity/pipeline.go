package activity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/config"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/table"
	"github.com/Monsieur-Zinj/mathalea-reco/internal/urlblob"
)

// ErrMissingInput reports a required folder or file that does not exist.
var ErrMissingInput = errors.New("missing required input")

// Output names the files produced by a pipeline run.
type Output struct {
	CSVPath  string
	JSONPath string
}

// Run executes the per-activity pipeline: read the raw export, roster and
// URL blob, build the normalized table, and write the activity's final data.
func Run(cfg config.Config, activityName string, tags map[string]string, res Resolver) (*Output, error) {
	activityDir := cfg.ActivityDir(activityName)
	if _, err := os.Stat(activityDir); err != nil {
		return nil, fmt.Errorf("%w: activity folder %s", ErrMissingInput, activityDir)
	}
	sourceDir := cfg.SourceDataDir(activityName)
	if _, err := os.Stat(sourceDir); err != nil {
		return nil, fmt.Errorf("%w: source data folder %s", ErrMissingInput, sourceDir)
	}

	raw, err := table.ReadRaw(filepath.Join(sourceDir, cfg.ResFilename))
	if err != nil {
		return nil, err
	}
	roster, err := table.ReadRoster(cfg.RosterPath())
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(filepath.Join(sourceDir, cfg.URLFilename))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, filepath.Join(sourceDir, cfg.URLFilename))
	}
	params, err := urlblob.ParseDocument(string(blob))
	if err != nil {
		return nil, err
	}

	tbl, err := table.Build(raw, params, roster)
	if err != nil {
		return nil, err
	}

	result := BuildResult(tbl, params, activityName, tags, res)

	finalDir := cfg.FinalDataDir(activityName)
	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", finalDir, err)
	}

	out := &Output{
		CSVPath:  filepath.Join(finalDir, cfg.ResultCSVFilename),
		JSONPath: filepath.Join(finalDir, cfg.ResultJSONFilename),
	}
	if err := WriteCSV(out.CSVPath, tbl); err != nil {
		return nil, err
	}
	if err := WriteJSON(out.JSONPath, result); err != nil {
		return nil, err
	}
	return out, nil
}
