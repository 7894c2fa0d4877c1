// Package fts builds SQLite FTS4 indexes over cached items and ranks
// search results with per-column weights.
package fts

import (
	"fmt"
	"strings"

	"github.com/starford/zotindex/internal/models"
)

// Path says where a column's text comes from in an item. It is one of
// Direct, Nested or NestedFallback.
type Path interface {
	fmt.Stringer
	resolve(it *models.Item) ([]string, bool)
}

// Direct reads a top-level field: key, library, type or notes.
type Direct struct {
	Field string
}

// Nested reads Subkey from the record(s) under Key. For data this is a
// single value; for creators, tags, collections and attachments every
// record carrying Subkey contributes one value.
type Nested struct {
	Key    string
	Subkey string
}

// NestedFallback tries each path in order; the first one that resolves wins.
type NestedFallback struct {
	Paths []Nested
}

func (d Direct) String() string { return d.Field }

func (n Nested) String() string { return n.Key + "." + n.Subkey }

func (f NestedFallback) String() string {
	parts := make([]string, len(f.Paths))
	for i, p := range f.Paths {
		parts[i] = p.String()
	}
	return strings.Join(parts, "|")
}

func (d Direct) resolve(it *models.Item) ([]string, bool) {
	if v, ok := it.Scalar(d.Field); ok {
		return []string{v}, true
	}
	if d.Field == "notes" {
		return it.Notes, true
	}
	return nil, false
}

func (n Nested) resolve(it *models.Item) ([]string, bool) {
	recs, ok := it.Records(n.Key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, r := range recs {
		if v, ok := r.Lookup(n.Subkey); ok {
			out = append(out, v)
		}
	}
	return out, len(out) > 0
}

func (f NestedFallback) resolve(it *models.Item) ([]string, bool) {
	for _, p := range f.Paths {
		if vals, ok := p.resolve(it); ok {
			return vals, true
		}
	}
	return nil, false
}

// Project returns the values p selects from it. Missing fields yield nil.
func Project(it *models.Item, p Path) []string {
	vals, _ := p.resolve(it)
	return vals
}

// Cell flattens the values p selects into one space-joined string.
func Cell(it *models.Item, p Path) string {
	return strings.Join(Project(it, p), " ")
}

// ParsePath parses "field" as Direct and "key.subkey" as Nested.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("fts: empty path")
	}
	key, sub, found := strings.Cut(s, ".")
	if !found {
		return Direct{Field: s}, nil
	}
	if key == "" || sub == "" {
		return nil, fmt.Errorf("fts: invalid path %q", s)
	}
	return Nested{Key: key, Subkey: sub}, nil
}

// ParseFallback parses a list of "key.subkey" candidates.
func ParseFallback(specs []string) (NestedFallback, error) {
	var f NestedFallback
	for _, s := range specs {
		p, err := ParsePath(s)
		if err != nil {
			return NestedFallback{}, err
		}
		n, ok := p.(Nested)
		if !ok {
			return NestedFallback{}, fmt.Errorf("fts: fallback path %q must be key.subkey", s)
		}
		f.Paths = append(f.Paths, n)
	}
	if len(f.Paths) == 0 {
		return NestedFallback{}, fmt.Errorf("fts: empty fallback")
	}
	return f, nil
}
