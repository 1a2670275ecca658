package catalog

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the local sqlite cache of the remote catalogs. It survives
// offline runs: the pipeline resolves titles and themes from the cache and
// degrades to "Unknown" metadata when the cache is empty.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the catalog cache at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate catalog db: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exercises (
		ref TEXT PRIMARY KEY,
		titre TEXT NOT NULL DEFAULT '',
		uuid TEXT NOT NULL DEFAULT '',
		interactive INTEGER NOT NULL DEFAULT 0,
		raw TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS themes (
		key TEXT PRIMARY KEY,
		titre TEXT NOT NULL,
		sous_themes TEXT NOT NULL DEFAULT '{}'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutExercises upserts the flattened exercise catalog.
func (s *Store) PutExercises(exercises map[string]map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO exercises (ref, titre, uuid, interactive, raw) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET titre = excluded.titre, uuid = excluded.uuid,
		 interactive = excluded.interactive, raw = excluded.raw`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for ref, entry := range exercises {
		titre, _ := entry["titre"].(string)
		uuid, _ := entry["uuid"].(string)
		interactive := 0
		if tags, ok := entry["tags"].(map[string]any); ok {
			if v, ok := tags["interactif"].(bool); ok && v {
				interactive = 1
			}
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal exercise %s: %w", ref, err)
		}
		if _, err := stmt.Exec(ref, titre, uuid, interactive, string(raw)); err != nil {
			return fmt.Errorf("upsert exercise %s: %w", ref, err)
		}
	}
	return tx.Commit()
}

// PutThemes upserts the theme catalog.
func (s *Store) PutThemes(themes map[string]Theme) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO themes (key, titre, sous_themes) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET titre = excluded.titre, sous_themes = excluded.sous_themes`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for key, t := range themes {
		sub, err := json.Marshal(t.SousThemes)
		if err != nil {
			return fmt.Errorf("marshal sub-themes for %s: %w", key, err)
		}
		if _, err := stmt.Exec(key, t.Titre, string(sub)); err != nil {
			return fmt.Errorf("upsert theme %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// ExerciseCount returns the number of cached exercises.
func (s *Store) ExerciseCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exercises`).Scan(&n)
	return n, err
}

// Themes returns all cached themes.
func (s *Store) Themes() (map[string]Theme, error) {
	rows, err := s.db.Query(`SELECT key, titre, sous_themes FROM themes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	themes := make(map[string]Theme)
	for rows.Next() {
		var key, titre, sub string
		if err := rows.Scan(&key, &titre, &sub); err != nil {
			return nil, err
		}
		t := Theme{Titre: titre}
		if err := json.Unmarshal([]byte(sub), &t.SousThemes); err != nil {
			return nil, fmt.Errorf("decode sub-themes for %s: %w", key, err)
		}
		themes[key] = t
	}
	return themes, rows.Err()
}

// ResolveTheme maps an exercise reference to its theme and sub-theme using
// the reference's prefix structure: the first rune names the level, the
// first three the theme. Unmatched references yield "Unknown"/"Unknown".
func (s *Store) ResolveTheme(ref string) (theme, subTheme string, err error) {
	theme, subTheme = "Unknown", "Unknown"
	if len(ref) < 3 {
		return theme, subTheme, nil
	}
	themes, err := s.Themes()
	if err != nil {
		return theme, subTheme, err
	}

	level := ref[:1]
	themeKey := ref[:3]

	keys := make([]string, 0, len(themes))
	for k := range themes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasPrefix(key, level) || !strings.HasPrefix(themeKey, key) {
			continue
		}
		t := themes[key]
		theme = t.Titre

		subKeys := make([]string, 0, len(t.SousThemes))
		for sk := range t.SousThemes {
			subKeys = append(subKeys, sk)
		}
		sort.Strings(subKeys)
		for _, sk := range subKeys {
			if strings.HasPrefix(ref, sk) {
				subTheme = t.SousThemes[sk]
				break
			}
		}
		break
	}
	return theme, subTheme, nil
}

// Resolve implements the activity exporter's metadata lookup: title from the
// cached exercise row, theme/sub-theme from the prefix rules. ok is false
// when the reference is not cached at all.
func (s *Store) Resolve(ref string) (titre, theme, subTheme string, ok bool) {
	err := s.db.QueryRow(`SELECT titre FROM exercises WHERE ref = ?`, ref).Scan(&titre)
	if err != nil {
		return "", "", "", false
	}
	theme, subTheme, err = s.ResolveTheme(ref)
	if err != nil {
		theme, subTheme = "Unknown", "Unknown"
	}
	return titre, theme, subTheme, true
}

// ExportInteractiveCSV writes the interactive-exercise listing: one row per
// cached exercise flagged interactive, with resolved theme metadata.
func (s *Store) ExportInteractiveCSV(path string) error {
	rows, err := s.db.Query(`SELECT ref, titre, uuid FROM exercises WHERE interactive = 1 ORDER BY ref`)
	if err != nil {
		return err
	}
	defer rows.Close()

	// Drain the result set before resolving themes so no second query runs
	// while this one is open.
	type entry struct{ ref, titre, uuid string }
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.ref, &e.titre, &e.uuid); err != nil {
			return err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"refs", "titre", "uuid", "theme", "sub_theme"}); err != nil {
		return err
	}
	for _, e := range entries {
		theme, subTheme, err := s.ResolveTheme(e.ref)
		if err != nil {
			return err
		}
		if err := w.Write([]string{e.ref, e.titre, e.uuid, theme, subTheme}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
