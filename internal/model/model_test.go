package model

import (
	"encoding/json"
	"testing"
)

func TestSuperID(t *testing.T) {
	tests := []struct {
		name   string
		params ExerciseParams
		want   string
	}{
		{"id and s", ExerciseParams{ID: "X1", S: "1"}, "X1_1"},
		{"id only", ExerciseParams{ID: "3L11"}, "3L11"},
		{"full spread", ExerciseParams{ID: "3L11", S: "1", S2: "2", S3: "1-2-3-4"}, "3L11_1_2_1-2-3-4"},
		{"gap in s levels", ExerciseParams{ID: "6C10", S: "4", S4: "faux"}, "6C10_4_faux"},
		{"empty", ExerciseParams{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.SuperID(); got != tt.want {
				t.Errorf("SuperID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSuperIDIgnoresSeedAndUUID(t *testing.T) {
	a := ExerciseParams{ID: "3L11", S: "1", UUID: "db2e0", Alea: "AlwE"}
	b := ExerciseParams{ID: "3L11", S: "1", UUID: "99999", Alea: "ZZZZ"}
	if a.SuperID() != b.SuperID() {
		t.Errorf("identities differ: %q vs %q", a.SuperID(), b.SuperID())
	}
}

func TestSuperIDIndependentOfAssignmentOrder(t *testing.T) {
	var a, b ExerciseParams
	a.Set("id", "3L11")
	a.Set("s", "1")
	a.Set("s2", "2")
	b.Set("s2", "2")
	b.Set("s", "1")
	b.Set("id", "3L11")
	if a.SuperID() != b.SuperID() {
		t.Errorf("identities differ: %q vs %q", a.SuperID(), b.SuperID())
	}
}

func TestParamsSetKnownAndExtra(t *testing.T) {
	var p ExerciseParams
	p.Set("uuid", "db2e0")
	p.Set("id", "3L11")
	p.Set("n", "4")
	p.Set("alea", "AlwE")
	p.Set("serie", "printemps")

	if p.UUID != "db2e0" || p.ID != "3L11" || p.Alea != "AlwE" {
		t.Errorf("known fields not set: %+v", p)
	}
	if p.N != 4 {
		t.Errorf("N = %d, want 4", p.N)
	}
	if p.Extra["serie"] != "printemps" {
		t.Errorf("Extra[serie] = %q, want printemps", p.Extra["serie"])
	}
}

func TestParamsJSONRoundTripKeepsExtras(t *testing.T) {
	p := ExerciseParams{
		UUID: "db2e0",
		ID:   "3L11",
		N:    4,
		S:    "1",
		Alea: "AlwE",
		Extra: map[string]string{
			"serie": "printemps",
			"v":     "eleve",
		},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got ExerciseParams
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.UUID != p.UUID || got.ID != p.ID || got.N != p.N || got.S != p.S || got.Alea != p.Alea {
		t.Errorf("known fields lost: got %+v", got)
	}
	if got.Extra["serie"] != "printemps" || got.Extra["v"] != "eleve" {
		t.Errorf("extras lost: got %v", got.Extra)
	}
	if got.SuperID() != p.SuperID() {
		t.Errorf("identity changed across round trip: %q vs %q", got.SuperID(), p.SuperID())
	}
}

func TestParamsUnmarshalUnknownKeys(t *testing.T) {
	data := []byte(`{"uuid":"abc","id":"6C10","s":"2","niveau":"6e","bonus":3}`)
	var p ExerciseParams
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.ID != "6C10" || p.S != "2" {
		t.Errorf("known fields: %+v", p)
	}
	if p.Extra["niveau"] != "6e" {
		t.Errorf("Extra[niveau] = %q", p.Extra["niveau"])
	}
	if p.Extra["bonus"] != "3" {
		t.Errorf("Extra[bonus] = %q", p.Extra["bonus"])
	}
}
