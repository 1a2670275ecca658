// Package config resolves the on-disk layout the pipeline works against:
// one data root holding the activities, the roster, the synthesis store and
// the exercise catalog cache.
package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the directory and file layout for one deployment.
type Config struct {
	DataDir string

	ActivitiesDirName  string
	SourceDataDirName  string
	FinalDataDirName   string
	ResFilename        string
	URLFilename        string
	RosterFilename     string
	ResultCSVFilename  string
	ResultJSONFilename string

	SynthesisDirName      string
	SynthesisCSVFilename  string
	SynthesisJSONFilename string

	CatalogDirName     string
	CatalogDBFilename  string
	CatalogCSVFilename string
}

// Default returns the layout the original deployment uses.
func Default() Config {
	return Config{
		DataDir:            "data",
		ActivitiesDirName:  "Activités",
		SourceDataDirName:  "source_data",
		FinalDataDirName:   "final_data",
		ResFilename:        "res.csv",
		URLFilename:        "mathAlea.html",
		RosterFilename:     "eleve_groupe.csv",
		ResultCSVFilename:  "resultat.csv",
		ResultJSONFilename: "resultat.json",

		SynthesisDirName:      "synthesis_data",
		SynthesisCSVFilename:  "synthesis.csv",
		SynthesisJSONFilename: "synthesis.json",

		CatalogDirName:     "exercices",
		CatalogDBFilename:  "catalog.db",
		CatalogCSVFilename: "exercices.csv",
	}
}

// FromViper builds a Config from bound flags, environment and config file,
// falling back to the default layout for anything unset.
func FromViper(v *viper.Viper) Config {
	cfg := Default()
	if s := v.GetString("data-dir"); s != "" {
		cfg.DataDir = s
	}
	get := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	get("files.activities-dir", &cfg.ActivitiesDirName)
	get("files.source-data-dir", &cfg.SourceDataDirName)
	get("files.final-data-dir", &cfg.FinalDataDirName)
	get("files.results", &cfg.ResFilename)
	get("files.url-blob", &cfg.URLFilename)
	get("files.roster", &cfg.RosterFilename)
	get("files.result-csv", &cfg.ResultCSVFilename)
	get("files.result-json", &cfg.ResultJSONFilename)
	get("files.synthesis-dir", &cfg.SynthesisDirName)
	get("files.synthesis-csv", &cfg.SynthesisCSVFilename)
	get("files.synthesis-json", &cfg.SynthesisJSONFilename)
	get("files.catalog-dir", &cfg.CatalogDirName)
	get("files.catalog-db", &cfg.CatalogDBFilename)
	get("files.catalog-csv", &cfg.CatalogCSVFilename)
	return cfg
}

// ActivitiesRoot is the folder holding one subfolder per activity.
func (c Config) ActivitiesRoot() string {
	return filepath.Join(c.DataDir, c.ActivitiesDirName)
}

// ActivityDir is the folder of one activity.
func (c Config) ActivityDir(activity string) string {
	return filepath.Join(c.ActivitiesRoot(), activity)
}

// SourceDataDir holds an activity's raw export files.
func (c Config) SourceDataDir(activity string) string {
	return filepath.Join(c.ActivityDir(activity), c.SourceDataDirName)
}

// FinalDataDir holds an activity's processed result files.
func (c Config) FinalDataDir(activity string) string {
	return filepath.Join(c.ActivityDir(activity), c.FinalDataDirName)
}

// RosterPath is the student/class/group file shared by all activities.
func (c Config) RosterPath() string {
	return filepath.Join(c.DataDir, c.RosterFilename)
}

// SynthesisDir holds the cross-activity aggregate files.
func (c Config) SynthesisDir() string {
	return filepath.Join(c.DataDir, c.SynthesisDirName)
}

// SynthesisJSONPath is the synthesis store document.
func (c Config) SynthesisJSONPath() string {
	return filepath.Join(c.SynthesisDir(), c.SynthesisJSONFilename)
}

// SynthesisCSVPath is the synthesis store's derived wide-table view.
func (c Config) SynthesisCSVPath() string {
	return filepath.Join(c.SynthesisDir(), c.SynthesisCSVFilename)
}

// CatalogDir holds the cached exercise catalog.
func (c Config) CatalogDir() string {
	return filepath.Join(c.DataDir, c.CatalogDirName)
}

// CatalogDBPath is the sqlite catalog cache.
func (c Config) CatalogDBPath() string {
	return filepath.Join(c.CatalogDir(), c.CatalogDBFilename)
}

// CatalogCSVPath is the interactive-exercise listing.
func (c Config) CatalogCSVPath() string {
	return filepath.Join(c.CatalogDir(), c.CatalogCSVFilename)
}
