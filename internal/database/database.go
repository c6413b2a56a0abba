// SPDX-License-Identifier: MPL-2.0

// Package database presents a read-only union view over an ordered
// list of stacks. Earlier stacks shadow later ones for version, tag,
// and metadata lookups; nothing in this package ever writes to a
// stack.
package database

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/natelust/reups/internal/cache"
	"github.com/natelust/reups/internal/stack"
	"github.com/natelust/reups/pkg/product"
	"github.com/natelust/reups/pkg/table"
)

// Options configures how stacks are opened.
type Options struct {
	// CacheDir overrides the cache location; empty selects the user
	// cache directory.
	CacheDir string
	// NoCache disables the stack cache entirely.
	NoCache bool
	// UserTagDir is the directory holding per-stack user tag chains.
	// Empty disables user tags.
	UserTagDir string
}

// DB is the façade the resolver works against.
type DB struct {
	stacks   []*stack.Index
	userTags []product.Tag

	tables map[tableKey]*table.Table
}

type tableKey struct {
	product string
	version string
}

// Open enumerates the given stack roots in order. A root ending in
// .json is loaded as a JSON snapshot instead of being walked. Any
// unreadable root fails the whole open: a missing stack silently
// vanishing from the union view would change resolutions underfoot.
func Open(roots []string, opts Options) (*DB, error) {
	var store *cache.Store
	if !opts.NoCache {
		store = cache.NewStore(opts.CacheDir)
	}

	db := &DB{tables: make(map[tableKey]*table.Table)}
	for _, root := range roots {
		var (
			ix  *stack.Index
			err error
		)
		if strings.HasSuffix(root, ".json") {
			ix, err = stack.ReadSnapshot(root)
		} else {
			ix, err = cache.Open(root, store)
		}
		if err != nil {
			return nil, err
		}
		db.stacks = append(db.stacks, ix)
		if opts.UserTagDir != "" {
			db.userTags = append(db.userTags, stack.ReadUserTags(opts.UserTagDir, ix.Root)...)
		}
	}
	return db, nil
}

// Stacks returns the ordered stack roots in the view.
func (db *DB) Stacks() []string {
	roots := make([]string, len(db.stacks))
	for i, ix := range db.stacks {
		roots[i] = ix.Root
	}
	return roots
}

// ListProducts returns the sorted union of product names.
func (db *DB) ListProducts() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ix := range db.stacks {
		for _, name := range ix.Products() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// HasProduct reports whether any stack declares the product.
func (db *DB) HasProduct(name string) bool {
	for _, ix := range db.stacks {
		if ix.HasProduct(name) {
			return true
		}
	}
	return false
}

// LookupVersion finds (product, version), searching stacks in order.
// When several stacks declare the same pair the earliest wins and the
// shadowed declarations are reported once in the logs.
func (db *DB) LookupVersion(name, version string) (*product.Version, bool) {
	var found *product.Version
	for _, ix := range db.stacks {
		v, ok := ix.Lookup(name, version)
		if !ok {
			continue
		}
		if found == nil {
			found = v
			continue
		}
		slog.Warn("duplicate version declaration shadowed",
			"product", name, "version", version,
			"using", found.Stack, "ignoring", v.Stack)
	}
	return found, found != nil
}

// LookupTag resolves a tag for a product: user-scope bindings first,
// then each stack's global tags in stack order. The synthesized
// "newest" tag is handled by BestVersion, not here.
func (db *DB) LookupTag(name, tag string) (*product.Version, bool) {
	for _, ut := range db.userTags {
		if ut.Product != name || ut.Name != tag {
			continue
		}
		if v, ok := db.LookupVersion(name, ut.Version); ok {
			return v, true
		}
		slog.Warn("dropping dangling user tag",
			"product", name, "tag", tag, "version", ut.Version)
	}
	for _, ix := range db.stacks {
		if v, ok := ix.TagTarget(name, tag); ok {
			return v, true
		}
	}
	return nil, false
}

// ListVersions returns the union of a product's versions across all
// stacks, deduplicated by version string with the earliest stack
// winning metadata ties, ordered by version string.
func (db *DB) ListVersions(name string) []*product.Version {
	seen := make(map[string]bool)
	var out []*product.Version
	for _, ix := range db.stacks {
		for _, v := range ix.VersionsOf(name) {
			if seen[v.Version] {
				continue
			}
			seen[v.Version] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// ListTags returns the tag bindings visible for a product: user tags
// first, then global tags in stack order, deduplicated by tag name.
func (db *DB) ListTags(name string) []product.Tag {
	seen := make(map[string]bool)
	var out []product.Tag
	for _, ut := range db.userTags {
		if ut.Product == name && !seen[ut.Name] {
			seen[ut.Name] = true
			out = append(out, ut)
		}
	}
	for _, ix := range db.stacks {
		for _, tag := range ix.Tags {
			if tag.Product == name && !seen[tag.Name] {
				seen[tag.Name] = true
				out = append(out, tag)
			}
		}
	}
	return out
}

// BestVersion applies an ordered tag-preference list; the first tag
// with a binding wins. The well-known "newest" preference synthesizes
// the lexicographically latest installed version.
func (db *DB) BestVersion(name string, tagPref []string) (*product.Version, bool) {
	for _, tag := range tagPref {
		if tag == product.NewestTag {
			versions := db.ListVersions(name)
			names := make([]string, len(versions))
			for i, v := range versions {
				names[i] = v.Version
			}
			if newest, ok := product.NewestVersion(names); ok {
				return db.LookupVersion(name, newest)
			}
			continue
		}
		if v, ok := db.LookupTag(name, tag); ok {
			return v, true
		}
	}
	return nil, false
}

// Table loads and memoizes the parsed table of a version. Versions
// without a table file get an empty table; parse failures surface as
// table.ParseError carrying the failing path.
func (db *DB) Table(v *product.Version) (*table.Table, error) {
	key := tableKey{product: v.Product, version: v.Version}
	if t, ok := db.tables[key]; ok {
		return t, nil
	}
	var (
		t   *table.Table
		err error
	)
	if v.TablePath == "" {
		t = table.Empty(v.Product)
	} else {
		t, err = table.ParseFor(v.Product, v.TablePath)
		if err != nil {
			return nil, err
		}
		for _, warning := range t.Warnings {
			slog.Warn("table parse warning", "warning", warning)
		}
	}
	db.tables[key] = t
	return t, nil
}
