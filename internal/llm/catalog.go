package llm

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/set-night/mindcanvas/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Roles the app asks the catalog for besides user-selectable chat models.
const (
	TitleModel    = "title-model"
	ArtifactModel = "artifact-model"
	ImageModel    = "small-model"
)

type ModelKind string

const (
	KindChat  ModelKind = "chat"
	KindImage ModelKind = "image"
)

// ModelSpec is the static capability entry of one model id.
type ModelSpec struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Provider    string    `yaml:"provider" json:"-"`
	Kind        ModelKind `yaml:"kind" json:"kind"`
	Reasoning   bool      `yaml:"reasoning" json:"reasoning"`
	Tools       []string  `yaml:"tools" json:"tools"`
}

func (m ModelSpec) HasTool(name string) bool {
	return slices.Contains(m.Tools, name)
}

// Catalog maps model ids to provider models and their enabled tools.
type Catalog struct {
	Models []ModelSpec `yaml:"models"`

	byID map[string]ModelSpec
}

// LoadCatalog reads a catalog file, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	return ParseCatalog(data)
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in model catalog: %v", err))
	}
	return c
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}

	c.byID = make(map[string]ModelSpec, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" || m.Provider == "" {
			return nil, fmt.Errorf("parse model catalog: entry %d needs id and provider", i)
		}
		if m.Kind == "" {
			m.Kind = KindChat
			c.Models[i] = m
		}
		if m.Kind != KindChat && m.Kind != KindImage {
			return nil, fmt.Errorf("parse model catalog: %s has unknown kind %q", m.ID, m.Kind)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("parse model catalog: duplicate id %s", m.ID)
		}
		c.byID[m.ID] = m
	}
	return &c, nil
}

func (c *Catalog) Lookup(id string) (ModelSpec, error) {
	m, ok := c.byID[id]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %s", domain.ErrModelNotFound, id)
	}
	return m, nil
}

// ChatModels lists the models a user can pick: chat models that have a name.
func (c *Catalog) ChatModels() []ModelSpec {
	var out []ModelSpec
	for _, m := range c.Models {
		if m.Kind == KindChat && m.Name != "" {
			out = append(out, m)
		}
	}
	return out
}
