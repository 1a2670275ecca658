// Package catalog fetches and caches the remote mathALÉA exercise and theme
// catalogs, and resolves exercise references to title/theme metadata.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Default catalog locations on the mathALÉA forge.
const (
	DefaultExercisesURL = "https://forge.apps.education.fr/coopmaths/mathalea/-/raw/main/src/json/allExercice.json"
	DefaultThemesURL    = "https://forge.apps.education.fr/coopmaths/mathalea/-/raw/main/src/json/levelsThemesList.json"
)

// Theme is one level/theme entry of the remote theme catalog.
type Theme struct {
	Titre      string            `json:"titre"`
	SousThemes map[string]string `json:"sousThemes"`
}

// Client fetches the remote catalogs.
type Client struct {
	httpClient   *http.Client
	exercisesURL string
	themesURL    string
}

// NewClient returns a catalog client. Empty URLs fall back to the defaults.
func NewClient(exercisesURL, themesURL string, timeout time.Duration) *Client {
	if exercisesURL == "" {
		exercisesURL = DefaultExercisesURL
	}
	if themesURL == "" {
		themesURL = DefaultThemesURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		exercisesURL: exercisesURL,
		themesURL:    themesURL,
	}
}

// FetchExercises downloads the full exercise catalog and flattens it to a
// ref-keyed map.
func (c *Client) FetchExercises(ctx context.Context) (map[string]map[string]any, error) {
	var doc any
	if err := c.getJSON(ctx, c.exercisesURL, &doc); err != nil {
		return nil, fmt.Errorf("fetch exercise catalog: %w", err)
	}
	return Flatten(doc), nil
}

// FetchThemes downloads the theme catalog, keeping only entries that carry
// both a title and a sub-theme mapping.
func (c *Client) FetchThemes(ctx context.Context) (map[string]Theme, error) {
	var doc map[string]json.RawMessage
	if err := c.getJSON(ctx, c.themesURL, &doc); err != nil {
		return nil, fmt.Errorf("fetch theme catalog: %w", err)
	}

	themes := make(map[string]Theme)
	for key, raw := range doc {
		var t Theme
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		if t.Titre == "" || t.SousThemes == nil {
			continue
		}
		themes[key] = t
	}
	return themes, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Flatten walks an arbitrarily nested decoded JSON document and collects
// every object carrying a ref key, keyed by that ref. Matched objects are
// not descended into.
func Flatten(doc any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	var walk func(v any)
	walk = func(v any) {
		switch node := v.(type) {
		case map[string]any:
			for _, child := range node {
				if m, ok := child.(map[string]any); ok {
					if ref, ok := m["ref"].(string); ok && ref != "" {
						out[ref] = m
						continue
					}
				}
				walk(child)
			}
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(doc)
	return out
}
