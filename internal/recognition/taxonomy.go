package recognition

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"profile-ml/service/internal/match"
)

//go:embed data/taxonomy.json
var taxonomyFS embed.FS

// TaxonomyEntry maps a recognised object label onto a tag category.
type TaxonomyEntry struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// TaxonomyListing is a TaxonomyEntry together with its object label.
type TaxonomyListing struct {
	Object string `json:"object"`
	TaxonomyEntry
}

// Taxonomy is the immutable object-label lookup table.
type Taxonomy struct {
	version string
	entries map[string]TaxonomyEntry
}

type taxonomyFile struct {
	Version string                   `json:"version"`
	Objects map[string]TaxonomyEntry `json:"objects"`
}

// DefaultTaxonomy returns the taxonomy shipped with the binary.
func DefaultTaxonomy() (*Taxonomy, error) {
	data, err := taxonomyFS.ReadFile("data/taxonomy.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded taxonomy: %w", err)
	}
	return parseTaxonomy(data)
}

// LoadTaxonomy reads a taxonomy from path, falling back to the embedded one when path is empty.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return parseTaxonomy(data)
}

func parseTaxonomy(data []byte) (*Taxonomy, error) {
	var raw taxonomyFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal taxonomy: %w", err)
	}
	if len(raw.Objects) == 0 {
		return nil, errors.New("taxonomy has no objects")
	}
	entries := make(map[string]TaxonomyEntry, len(raw.Objects))
	for label, entry := range raw.Objects {
		normalized := match.NormalizeLabel(label)
		if normalized == "" {
			continue
		}
		entry.Category = strings.TrimSpace(entry.Category)
		if entry.Category == "" {
			return nil, fmt.Errorf("taxonomy object %q has no category", label)
		}
		if entry.Confidence < 0 || entry.Confidence > 1 {
			return nil, fmt.Errorf("taxonomy object %q confidence outside [0,1]", label)
		}
		entries[normalized] = entry
	}
	return &Taxonomy{version: raw.Version, entries: entries}, nil
}

// Lookup resolves an object label.
func (t *Taxonomy) Lookup(label string) (TaxonomyEntry, bool) {
	if t == nil {
		return TaxonomyEntry{}, false
	}
	entry, ok := t.entries[match.NormalizeLabel(label)]
	return entry, ok
}

// Entries lists the taxonomy sorted by object label.
func (t *Taxonomy) Entries() []TaxonomyListing {
	if t == nil {
		return nil
	}
	out := make([]TaxonomyListing, 0, len(t.entries))
	for label, entry := range t.entries {
		out = append(out, TaxonomyListing{Object: label, TaxonomyEntry: entry})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Object < out[j].Object })
	return out
}

// Version reports the taxonomy version.
func (t *Taxonomy) Version() string {
	if t == nil {
		return ""
	}
	return t.version
}
