// Package urlblob parses the mathALÉA redirect document shipped with each
// activity export: an HTML file whose URL= marker carries the query string
// describing every exercise instance of the session.
package urlblob

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/model"
)

// ErrMalformedBlob reports a redirect document without a URL= marker.
var ErrMalformedBlob = errors.New("malformed URL blob: no URL= marker")

var paramPattern = regexp.MustCompile(`(\w+)=([^&]+)`)

// ExtractURL pulls the redirect target out of the HTML document.
func ExtractURL(content string) (string, error) {
	_, rest, found := strings.Cut(content, "URL=")
	if !found {
		return "", ErrMalformedBlob
	}
	// The marker value runs until the closing quote of the meta tag.
	if end := strings.IndexAny(rest, `"'`); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), nil
}

// ParseParams splits the URL's query string into ordered parameter groups,
// one per exercise instance. A uuid key starts a new group; a leading group
// carrying neither id nor alea is a preamble, not an exercise, and is dropped.
func ParseParams(rawURL string) ([]model.ExerciseParams, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	matches := paramPattern.FindAllStringSubmatch(u.RawQuery, -1)

	var groups []model.ExerciseParams
	var current model.ExerciseParams
	started := false
	for _, m := range matches {
		key, value := m[1], m[2]
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		if key == "uuid" && started {
			groups = append(groups, current)
			current = model.ExerciseParams{}
		}
		current.Set(key, value)
		started = true
	}
	if started {
		groups = append(groups, current)
	}

	if len(groups) > 0 && !groups[0].Has("id") && !groups[0].Has("alea") {
		groups = groups[1:]
	}
	return groups, nil
}

// ParseDocument combines extraction and parsing for one redirect document.
func ParseDocument(content string) ([]model.ExerciseParams, error) {
	rawURL, err := ExtractURL(content)
	if err != nil {
		return nil, err
	}
	return ParseParams(rawURL)
}
