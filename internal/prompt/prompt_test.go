package prompt

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Monsieur-Zinj/mathalea-reco/internal/i18n"
)

func newTestContext(t *testing.T) context.Context {
	t.Helper()
	if err := i18n.Init("fr"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	return i18n.WithLang(context.Background(), "fr")
}

func TestTagsCollectsUntilBlankKey(t *testing.T) {
	ctx := newTestContext(t)
	in := strings.NewReader("periode\nT1\nclasse\n6A\n\n")
	var out bytes.Buffer

	tags := New(in, &out).Tags(ctx)

	if len(tags) != 2 {
		t.Fatalf("tags = %v", tags)
	}
	if tags["periode"] != "T1" || tags["classe"] != "6A" {
		t.Errorf("tags = %v", tags)
	}
	if !strings.Contains(out.String(), "periode") {
		t.Errorf("value prompt should echo the tag key: %q", out.String())
	}
}

func TestTagsStopsOnEOF(t *testing.T) {
	ctx := newTestContext(t)
	in := strings.NewReader("periode\nT1\n")
	var out bytes.Buffer

	tags := New(in, &out).Tags(ctx)

	if len(tags) != 1 || tags["periode"] != "T1" {
		t.Errorf("tags = %v", tags)
	}
}

func TestTagsTrimsWhitespace(t *testing.T) {
	ctx := newTestContext(t)
	in := strings.NewReader("  periode  \n  T1  \n\n")
	var out bytes.Buffer

	tags := New(in, &out).Tags(ctx)

	if tags["periode"] != "T1" {
		t.Errorf("tags = %v, want trimmed key and value", tags)
	}
}
