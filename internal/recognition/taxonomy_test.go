package recognition

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"testing"
)

func TestDefaultTaxonomy(t *testing.T) {
	taxonomy, err := DefaultTaxonomy()
	if err != nil {
		t.Fatalf("default taxonomy: %v", err)
	}
	tests := map[string]string{
		"whip":         "bdsm.impact",
		"rope":         "bdsm.bondage",
		"handcuffs":    "bdsm.bondage",
		"diaper":       "abdl",
		"latex_glove":  "material_fetish.latex",
		"Leather Mask": "material_fetish.leather",
	}
	for label, category := range tests {
		entry, ok := taxonomy.Lookup(label)
		if !ok {
			t.Fatalf("expected %q in taxonomy", label)
		}
		if entry.Category != category {
			t.Fatalf("%s: expected %s got %s", label, category, entry.Category)
		}
	}
	if _, ok := taxonomy.Lookup("teddy_bear"); ok {
		t.Fatalf("unexpected entry for teddy_bear")
	}

	entries := taxonomy.Entries()
	if !sort.SliceIsSorted(entries, func(i, j int) bool { return entries[i].Object < entries[j].Object }) {
		t.Fatalf("entries should be sorted by object")
	}
}

func TestLoadTaxonomy(t *testing.T) {
	path := writeTaxonomy(t, map[string]any{
		"version": "2",
		"objects": map[string]any{"Spreader Bar": map[string]any{"category": "bdsm.bondage", "confidence": 0.8}},
	})
	taxonomy, err := LoadTaxonomy(path)
	if err != nil {
		t.Fatalf("load taxonomy: %v", err)
	}
	if taxonomy.Version() != "2" {
		t.Fatalf("unexpected version %q", taxonomy.Version())
	}
	if _, ok := taxonomy.Lookup("spreader_bar"); !ok {
		t.Fatalf("expected normalised label lookup to succeed")
	}
	if _, ok := taxonomy.Lookup("whip"); ok {
		t.Fatalf("file taxonomy must replace the embedded one")
	}
}

func TestLoadTaxonomyValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		errPart string
	}{
		{"empty", map[string]any{"objects": map[string]any{}}, "no objects"},
		{"no category", map[string]any{"objects": map[string]any{"whip": map[string]any{"confidence": 0.5}}}, "no category"},
		{"confidence", map[string]any{"objects": map[string]any{"whip": map[string]any{"category": "x", "confidence": 1.2}}}, "outside"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadTaxonomy(writeTaxonomy(t, tc.payload))
			if err == nil || !strings.Contains(err.Error(), tc.errPart) {
				t.Fatalf("expected error containing %q got %v", tc.errPart, err)
			}
		})
	}
}

func TestNilTaxonomy(t *testing.T) {
	var taxonomy *Taxonomy
	if _, ok := taxonomy.Lookup("whip"); ok {
		t.Fatalf("nil taxonomy should not resolve labels")
	}
	if taxonomy.Entries() != nil || taxonomy.Version() != "" {
		t.Fatalf("nil taxonomy should be empty")
	}
}

func writeTaxonomy(t *testing.T, value any) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "taxonomy-*.json")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return f.Name()
}
