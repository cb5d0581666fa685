// Package catalog discovers email previews and exposes them as an ordered
// Catalog.
//
// A preview file lives under <emails>/previews and maps preview function
// names to a template plus sample data. The catalog is rebuilt from disk on
// every call, so it always reflects what is on disk at request time.
package catalog

import (
	"path/filepath"
	"strings"
)

// Entry is one template in the catalog together with its preview functions
// in declaration order.
type Entry struct {
	Name      string   `json:"name" yaml:"name"`
	Title     string   `json:"title" yaml:"title"`
	Functions []string `json:"functions" yaml:"functions"`
	// Error is set when the preview file could not be parsed. Such entries
	// are listed with no functions.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Catalog is the ordered list of discovered templates.
type Catalog []Entry

// Path identifies a single preview function.
type Path struct {
	Template string `json:"template"`
	Function string `json:"function"`
}

// Find returns the entry with the given name.
func (c Catalog) Find(name string) (Entry, bool) {
	for _, e := range c {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Has reports whether the template declares the function.
func (c Catalog) Has(template, function string) bool {
	e, ok := c.Find(template)
	if !ok {
		return false
	}
	for _, fn := range e.Functions {
		if fn == function {
			return true
		}
	}
	return false
}

// Paths enumerates every (template, function) pair in catalog order.
func (c Catalog) Paths() []Path {
	var paths []Path
	for _, e := range c {
		for _, fn := range e.Functions {
			paths = append(paths, Path{Template: e.Name, Function: fn})
		}
	}
	return paths
}

// First returns the first preview path, if any.
func (c Catalog) First() (Path, bool) {
	paths := c.Paths()
	if len(paths) == 0 {
		return Path{}, false
	}
	return paths[0], true
}

// DefaultExampleStems are the file stems of the two templates shipped with the
// scaffold.
var DefaultExampleStems = [2]string{"TextEmail", "Welcome"}

// IsDefaultExampleCatalog reports whether the guidance banner should be shown:
// the catalog is empty, or it holds only the two bundled examples and this is
// not a static build. The entries themselves are never filtered.
func IsDefaultExampleCatalog(c Catalog, static bool) bool {
	if len(c) == 0 {
		return true
	}
	if static || len(c) != 2 {
		return false
	}
	a, b := Stem(c[0].Name), Stem(c[1].Name)
	x, y := DefaultExampleStems[0], DefaultExampleStems[1]
	return (a == x && b == y) || (a == y && b == x)
}

// Stem strips the directory and extension from a template name.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
