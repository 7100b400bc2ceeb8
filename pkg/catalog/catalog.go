package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrDuplicateID     = errors.New("duplicate endpoint id")
	ErrEmpty           = errors.New("catalog is empty")
)

// Endpoint is a candidate VPN server with static metadata.
type Endpoint struct {
	ID        string  `json:"id" yaml:"id"`
	City      string  `json:"city" yaml:"city"`
	Region    string  `json:"region" yaml:"region"`
	Country   string  `json:"country" yaml:"country"`
	Flag      string  `json:"flag,omitempty" yaml:"flag,omitempty"`
	Lat       float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lng       float64 `json:"lng,omitempty" yaml:"lng,omitempty"`
	Load      int     `json:"load" yaml:"load"`
	LatencyMs uint    `json:"latency_ms" yaml:"latency_ms"`
}

// Location returns "City, Region".
func (e Endpoint) Location() string {
	if e.Region == "" {
		return e.City
	}
	return e.City + ", " + e.Region
}

func (e Endpoint) validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEndpoint)
	}
	if e.City == "" {
		return fmt.Errorf("%w: %s: empty city", ErrInvalidEndpoint, e.ID)
	}
	if e.Load < 0 || e.Load > 100 {
		return fmt.Errorf("%w: %s: load %d out of range 0-100", ErrInvalidEndpoint, e.ID, e.Load)
	}
	return nil
}

// Catalog is an immutable, ordered list of endpoints.
type Catalog struct {
	endpoints []Endpoint
	byID      map[string]int
}

func New(endpoints []Endpoint) (*Catalog, error) {
	if len(endpoints) == 0 {
		return nil, ErrEmpty
	}

	c := &Catalog{
		endpoints: make([]Endpoint, 0, len(endpoints)),
		byID:      make(map[string]int, len(endpoints)),
	}
	for _, ep := range endpoints {
		if err := ep.validate(); err != nil {
			return nil, err
		}
		if _, ok := c.byID[ep.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, ep.ID)
		}
		c.byID[ep.ID] = len(c.endpoints)
		c.endpoints = append(c.endpoints, ep)
	}
	return c, nil
}

type catalogFile struct {
	Servers []Endpoint `yaml:"servers"`
}

// LoadFile reads a YAML server list. Unknown fields are rejected.
func LoadFile(path string) (*Catalog, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer fd.Close()

	decoder := yaml.NewDecoder(fd)
	decoder.KnownFields(true)

	var file catalogFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	return New(file.Servers)
}

// List returns a copy of the endpoints in catalog order.
func (c *Catalog) List() []Endpoint {
	out := make([]Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

func (c *Catalog) Get(id string) (Endpoint, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Endpoint{}, false
	}
	return c.endpoints[idx], true
}

// First returns the first endpoint, the default selection.
func (c *Catalog) First() Endpoint {
	return c.endpoints[0]
}

func (c *Catalog) Len() int {
	return len(c.endpoints)
}
