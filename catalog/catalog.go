// Package catalog loads the immutable set of purchasable services.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	mystic "github.com/phbpx/mystic-services"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type file struct {
	Services []mystic.Service `yaml:"services"`
}

// Catalog is an in-memory, read-only mystic.Catalog.
type Catalog struct {
	byID  map[string]mystic.Service
	order []mystic.Service
}

// New builds a catalog from services, rejecting duplicate ids and
// non-positive prices.
func New(services ...mystic.Service) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]mystic.Service, len(services))}
	for _, s := range services {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, fmt.Errorf("service %q has no id", s.Name)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate service id %q", s.ID)
		}
		if !s.Price.IsPositive() {
			return nil, fmt.Errorf("service %q: price must be positive", s.ID)
		}
		c.byID[s.ID] = s
		c.order = append(c.order, s)
	}
	return c, nil
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return New(f.Services...)
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic("embedded catalog: " + err.Error())
	}
	return c
}

func (c *Catalog) Service(id string) (mystic.Service, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Services returns every service in file order.
func (c *Catalog) Services() []mystic.Service {
	return append([]mystic.Service(nil), c.order...)
}
