// Package catalog maps algorithm names to scheduler descriptors so that
// configuration files and API requests can select a policy by name.
package catalog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/snehjoshi/epochsim/internal/scheduler"
	"github.com/snehjoshi/epochsim/internal/scheduler/roundrobin"
)

// ErrUnknownAlgorithm is returned by Lookup for an unregistered name.
var ErrUnknownAlgorithm = errors.New("catalog: unknown algorithm")

// Catalog is an immutable set of descriptors keyed by name.
type Catalog struct {
	byName map[string]scheduler.Descriptor
}

// New builds a catalog. A later descriptor with the same name replaces an
// earlier one.
func New(descs ...scheduler.Descriptor) *Catalog {
	c := &Catalog{byName: make(map[string]scheduler.Descriptor, len(descs))}
	for _, d := range descs {
		c.byName[d.Name()] = d
	}
	return c
}

// Default returns the catalog of built-in algorithms.
func Default() *Catalog {
	return New(roundrobin.Descriptor)
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (scheduler.Descriptor, error) {
	d, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return d, nil
}

// Names returns the registered algorithm names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// All returns the registered descriptors sorted by name.
func (c *Catalog) All() []scheduler.Descriptor {
	out := make([]scheduler.Descriptor, 0, len(c.byName))
	for _, n := range c.Names() {
		out = append(out, c.byName[n])
	}
	return out
}
