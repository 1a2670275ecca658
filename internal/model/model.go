package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExerciseParams holds the query parameters of one exercise instance as
// parsed from an activity's URL blob. The known fields mirror the mathALÉA
// query keys; anything else ends up in Extra so unknown keys survive a JSON
// round trip.
type ExerciseParams struct {
	UUID  string `json:"uuid,omitempty"`
	ID    string `json:"id,omitempty"`
	N     int    `json:"n,omitempty"` // max points; 0 until inferred from the data
	D     string `json:"d,omitempty"`
	S     string `json:"s,omitempty"`
	S2    string `json:"s2,omitempty"`
	S3    string `json:"s3,omitempty"`
	S4    string `json:"s4,omitempty"`
	S5    string `json:"s5,omitempty"`
	S6    string `json:"s6,omitempty"`
	S7    string `json:"s7,omitempty"`
	S8    string `json:"s8,omitempty"`
	S9    string `json:"s9,omitempty"`
	Alea  string `json:"alea,omitempty"`
	I     string `json:"i,omitempty"`
	CD    string `json:"cd,omitempty"`
	Title string `json:"title,omitempty"`
	ES    string `json:"es,omitempty"`

	Extra map[string]string `json:"-"`
}

var knownParamKeys = map[string]struct{}{
	"uuid": {}, "id": {}, "n": {}, "d": {}, "s": {},
	"s2": {}, "s3": {}, "s4": {}, "s5": {}, "s6": {}, "s7": {}, "s8": {}, "s9": {},
	"alea": {}, "i": {}, "cd": {}, "title": {}, "es": {},
}

// SuperID derives the stable exercise identity from the parameter set:
// id, s and s2..s9 joined by underscore, empty components dropped. Two
// invocations differing only in seed or uuid collapse to the same identity.
func (p ExerciseParams) SuperID() string {
	components := []string{p.ID, p.S, p.S2, p.S3, p.S4, p.S5, p.S6, p.S7, p.S8, p.S9}
	var kept []string
	for _, c := range components {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, "_")
}

// Set assigns a query key to the matching known field, or to Extra.
func (p *ExerciseParams) Set(key, value string) {
	switch key {
	case "uuid":
		p.UUID = value
	case "id":
		p.ID = value
	case "n":
		// Max points arrive as a decimal string; a non-numeric value is
		// kept in Extra so nothing is lost.
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			p.N = n
			return
		}
		p.setExtra(key, value)
	case "d":
		p.D = value
	case "s":
		p.S = value
	case "s2":
		p.S2 = value
	case "s3":
		p.S3 = value
	case "s4":
		p.S4 = value
	case "s5":
		p.S5 = value
	case "s6":
		p.S6 = value
	case "s7":
		p.S7 = value
	case "s8":
		p.S8 = value
	case "s9":
		p.S9 = value
	case "alea":
		p.Alea = value
	case "i":
		p.I = value
	case "cd":
		p.CD = value
	case "title":
		p.Title = value
	case "es":
		p.ES = value
	default:
		p.setExtra(key, value)
	}
}

func (p *ExerciseParams) setExtra(key, value string) {
	if p.Extra == nil {
		p.Extra = make(map[string]string)
	}
	p.Extra[key] = value
}

// Has reports whether the parameter set carries the given query key.
func (p ExerciseParams) Has(key string) bool {
	switch key {
	case "uuid":
		return p.UUID != ""
	case "id":
		return p.ID != ""
	case "alea":
		return p.Alea != ""
	}
	_, ok := p.Extra[key]
	return ok
}

// MarshalJSON flattens Extra into the same object as the known fields.
func (p ExerciseParams) MarshalJSON() ([]byte, error) {
	type alias ExerciseParams
	data, err := json.Marshal(alias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return data, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON restores known fields and collects unknown keys into Extra.
func (p *ExerciseParams) UnmarshalJSON(data []byte) error {
	type alias ExerciseParams
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for k, v := range m {
		if _, ok := knownParamKeys[k]; ok {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]string)
		}
		a.Extra[k] = fmt.Sprint(v)
	}
	*p = ExerciseParams(a)
	return nil
}

// Metadata tracks document lifecycle timestamps for exported files.
type Metadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExportID  string    `json:"export_id,omitempty"`
	Activity  string    `json:"activity,omitempty"`
}

// ExerciseResult holds one exercise's statistics within a single activity.
type ExerciseResult struct {
	AverageScore float64        `json:"average_score"`
	MinScore     float64        `json:"min_score"`
	MaxScore     float64        `json:"max_score"`
	Count        int            `json:"n"`
	Titre        string         `json:"titre,omitempty"`
	Theme        string         `json:"theme,omitempty"`
	SubTheme     string         `json:"sub_theme,omitempty"`
	Params       ExerciseParams `json:"params"`
}

// StudentResult holds one student's normalized scores within a single activity.
type StudentResult struct {
	Class  string             `json:"class"`
	Group  string             `json:"group"`
	Scores map[string]float64 `json:"scores"`
}

// ActivityResult is the per-activity summary record: produced once per run,
// written as the activity's resultat.json, and consumed by the synthesis merge.
type ActivityResult struct {
	Metadata  Metadata                  `json:"metadata"`
	Tags      map[string]string         `json:"tags"`
	Exercises map[string]ExerciseResult `json:"exercises"`
	Students  map[string]StudentResult  `json:"students"`
}
