// Package catalog loads the static intervention catalog.
//
// The catalog is read-only input data: a list of phase-tagged interventions
// loaded from YAML or JSON, or the built-in default shipped with the binary.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/PhaseGuide/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

var (
	// ErrInvalidCatalog is returned when a catalog file fails validation.
	ErrInvalidCatalog = errors.New("invalid intervention catalog")
	// ErrDuplicateTitle is returned when two interventions share a title.
	ErrDuplicateTitle = errors.New("duplicate intervention title")
)

// Catalog is an immutable, ordered collection of interventions.
type Catalog struct {
	interventions []models.Intervention
	byTitle       map[string]int
}

type catalogFile struct {
	Interventions []models.Intervention `json:"interventions" yaml:"interventions"`
}

// New validates the given interventions and builds a catalog preserving their order.
func New(interventions []models.Intervention) (*Catalog, error) {
	c := &Catalog{
		interventions: make([]models.Intervention, 0, len(interventions)),
		byTitle:       make(map[string]int, len(interventions)),
	}
	for _, in := range interventions {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		if _, dup := c.byTitle[in.Title]; dup {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidCatalog, ErrDuplicateTitle, in.Title)
		}
		c.byTitle[in.Title] = len(c.interventions)
		c.interventions = append(c.interventions, cloneIntervention(in))
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog, "yaml")
}

// Load reads a catalog file. Files ending in .json are decoded as JSON,
// everything else as YAML.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("catalog.Load: failed to read catalog", "path", path, "error", err)
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	slog.Debug("catalog.Load: loaded catalog", "path", path, "interventions", c.Len())
	return c, nil
}

// LoadOrDefault loads path when set and falls back to the embedded catalog otherwise.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		slog.Debug("catalog.LoadOrDefault: no catalog path set, using embedded default")
		return Default()
	}
	return Load(path)
}

// Parse decodes catalog data in the given format ("yaml" or "json").
func Parse(data []byte, format string) (*Catalog, error) {
	var f catalogFile
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &f)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidCatalog, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if len(f.Interventions) == 0 {
		return nil, fmt.Errorf("%w: no interventions listed", ErrInvalidCatalog)
	}
	return New(f.Interventions)
}

// All returns a copy of every intervention in catalog order.
func (c *Catalog) All() []models.Intervention {
	out := make([]models.Intervention, len(c.interventions))
	for i, in := range c.interventions {
		out[i] = cloneIntervention(in)
	}
	return out
}

// ForPhase returns the interventions tagged with p, in catalog order.
func (c *Catalog) ForPhase(p models.Phase) []models.Intervention {
	var out []models.Intervention
	for _, in := range c.interventions {
		if in.HasPhase(p) {
			out = append(out, cloneIntervention(in))
		}
	}
	return out
}

// Lookup finds an intervention by exact title.
func (c *Catalog) Lookup(title string) (models.Intervention, bool) {
	idx, ok := c.byTitle[title]
	if !ok {
		return models.Intervention{}, false
	}
	return cloneIntervention(c.interventions[idx]), true
}

// Titles returns every title in catalog order.
func (c *Catalog) Titles() []string {
	titles := make([]string, len(c.interventions))
	for i, in := range c.interventions {
		titles[i] = in.Title
	}
	return titles
}

// Len returns the number of interventions.
func (c *Catalog) Len() int {
	return len(c.interventions)
}

func cloneIntervention(in models.Intervention) models.Intervention {
	in.Instructions = append([]string(nil), in.Instructions...)
	in.PhaseTags = append([]models.Phase(nil), in.PhaseTags...)
	return in
}
