package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archetype keys produced by Classify.
const (
	ArchetypeStrictDomme = "strict_domme"
	ArchetypeSoftDom     = "soft_dom"
	ArchetypeSwitch      = "switch"
	ArchetypeSubmissive  = "submissive"
	ArchetypeSlave       = "slave"
)

// Archetype is one static classification bucket with its display metadata.
type Archetype struct {
	Key             string   `json:"key"`
	Name            string   `json:"name"`
	NameEn          string   `json:"name_en,omitempty"`
	DominanceLevel  int      `json:"dominance_level"`
	SubmissionLevel int      `json:"submission_level"`
	Traits          []string `json:"traits"`
}

// Classify maps a score pair onto an archetype key. Rules are evaluated top-down with strict
// inequalities, so boundary values (80, 60, 40) fall through to the next rule.
func Classify(score ScorePair) string {
	switch {
	case score.Dominance > 80:
		return ArchetypeStrictDomme
	case score.Dominance > 60:
		return ArchetypeSoftDom
	case score.Dominance > 40:
		return ArchetypeSwitch
	case score.Submission > 60:
		return ArchetypeSubmissive
	default:
		return ArchetypeSlave
	}
}

// Catalog is the immutable, versioned archetype lookup table.
type Catalog struct {
	version    string
	defaultKey string
	order      []string
	entries    map[string]Archetype
}

type catalogFile struct {
	Version    string      `json:"version"`
	Default    string      `json:"default"`
	Archetypes []Archetype `json:"archetypes"`
}

// DefaultCatalog returns the reference catalog shipped with the binary.
func DefaultCatalog() (*Catalog, error) {
	data, err := seedFS.ReadFile("data/archetypes.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded archetypes: %w", err)
	}
	return parseCatalog(data)
}

// LoadCatalog reads a catalog from path, falling back to the embedded catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read archetypes: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var raw catalogFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal archetypes: %w", err)
	}
	if len(raw.Archetypes) == 0 {
		return nil, errors.New("archetype catalog is empty")
	}

	defaultKey := strings.TrimSpace(raw.Default)
	if defaultKey == "" {
		defaultKey = ArchetypeSwitch
	}

	c := &Catalog{
		version:    raw.Version,
		defaultKey: defaultKey,
		entries:    make(map[string]Archetype, len(raw.Archetypes)),
	}
	for _, a := range raw.Archetypes {
		a.Key = strings.TrimSpace(a.Key)
		if a.Key == "" {
			return nil, errors.New("archetype with empty key")
		}
		if _, exists := c.entries[a.Key]; exists {
			return nil, fmt.Errorf("duplicate archetype %q", a.Key)
		}
		if a.DominanceLevel < 0 || a.DominanceLevel > 100 || a.SubmissionLevel < 0 || a.SubmissionLevel > 100 {
			return nil, fmt.Errorf("archetype %q levels outside [0,100]", a.Key)
		}
		a.Traits = append([]string(nil), a.Traits...)
		c.entries[a.Key] = a
		c.order = append(c.order, a.Key)
	}
	if _, ok := c.entries[defaultKey]; !ok {
		return nil, fmt.Errorf("default archetype %q missing from catalog", defaultKey)
	}
	return c, nil
}

// Lookup returns the archetype for key, or the default (switch) archetype when key is unknown.
// The returned value is a copy and safe to modify.
func (c *Catalog) Lookup(key string) Archetype {
	a, ok := c.entries[key]
	if !ok {
		a = c.entries[c.defaultKey]
	}
	a.Traits = append([]string(nil), a.Traits...)
	return a
}

// Has reports whether key is present in the catalog.
func (c *Catalog) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Archetypes returns every entry in declaration order.
func (c *Catalog) Archetypes() []Archetype {
	out := make([]Archetype, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.Lookup(key))
	}
	return out
}

// Version reports the catalog version.
func (c *Catalog) Version() string {
	return c.version
}

// DefaultKey reports the fallback archetype key.
func (c *Catalog) DefaultKey() string {
	return c.defaultKey
}
