// SPDX-License-Identifier: MPL-2.0

// Package stack reads one on-disk EUPS stack: the ups_db tree of
// .version, .chain, and .table files describing installed products. The
// reader enumerates metadata only — table files are located, never
// parsed, so large stacks stream through without paying for content
// they may never need.
package stack

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/natelust/reups/pkg/product"
)

// DBDirName is the database directory every stack root must contain.
const DBDirName = "ups_db"

// IoError reports a stack root that is missing or unreadable.
type IoError struct {
	Root string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("stack %s: %v", e.Root, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// Index is the materialized enumeration of one stack. It is the unit
// the cache serializes, so it must be a plain finite value; lookup maps
// are rebuilt on demand rather than stored.
type Index struct {
	// Root is the stack root directory (the parent of ups_db).
	Root string
	// Versions in canonical order: by product name, then version.
	Versions []product.Version
	// Tags in canonical order: by product name, then tag name.
	Tags []product.Tag

	byVersion map[string]map[string]*product.Version
	byTag     map[string]map[string]string
}

// buildMaps populates the lookup maps from the canonical slices.
func (ix *Index) buildMaps() {
	ix.byVersion = make(map[string]map[string]*product.Version)
	for i := range ix.Versions {
		v := &ix.Versions[i]
		m := ix.byVersion[v.Product]
		if m == nil {
			m = make(map[string]*product.Version)
			ix.byVersion[v.Product] = m
		}
		m[v.Version] = v
	}
	ix.byTag = make(map[string]map[string]string)
	for _, tag := range ix.Tags {
		m := ix.byTag[tag.Product]
		if m == nil {
			m = make(map[string]string)
			ix.byTag[tag.Product] = m
		}
		m[tag.Name] = tag.Version
	}
}

// normalize sorts the canonical slices and rebuilds lookup maps. Every
// constructor ends with this so that equal stacks serialize identically.
func (ix *Index) normalize() {
	sort.Slice(ix.Versions, func(i, j int) bool {
		a, b := &ix.Versions[i], &ix.Versions[j]
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		return a.Version < b.Version
	})
	sort.Slice(ix.Tags, func(i, j int) bool {
		a, b := &ix.Tags[i], &ix.Tags[j]
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		return a.Name < b.Name
	})
	ix.buildMaps()
}

// Rebuild re-sorts the canonical slices and rebuilds the lookup maps.
// Callers that construct an Index directly (the cache decoder, tests)
// must call it before using lookups.
func (ix *Index) Rebuild() {
	ix.normalize()
}

// Products returns the sorted product names present in the stack.
func (ix *Index) Products() []string {
	names := make([]string, 0, len(ix.byVersion))
	for name := range ix.byVersion {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the version record for (productName, version).
func (ix *Index) Lookup(productName, version string) (*product.Version, bool) {
	v, ok := ix.byVersion[productName][version]
	return v, ok
}

// VersionsOf returns the version records of productName in canonical
// order.
func (ix *Index) VersionsOf(productName string) []*product.Version {
	m := ix.byVersion[productName]
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*product.Version, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

// TagTarget resolves a global tag of productName to its version record.
// A tag whose target version is not declared in this stack is dangling:
// it is dropped with a warning, never an error.
func (ix *Index) TagTarget(productName, tag string) (*product.Version, bool) {
	version, ok := ix.byTag[productName][tag]
	if !ok {
		return nil, false
	}
	v, ok := ix.Lookup(productName, version)
	if !ok {
		slog.Warn("dropping dangling tag",
			"stack", ix.Root, "product", productName, "tag", tag, "version", version)
		return nil, false
	}
	return v, true
}

// HasProduct reports whether the stack declares any version of
// productName.
func (ix *Index) HasProduct(productName string) bool {
	return len(ix.byVersion[productName]) > 0
}

// Read enumerates the stack rooted at root. The root must contain an
// ups_db directory; anything else is an IoError. Unreadable individual
// product entries are skipped with a warning so one broken declaration
// cannot hide a whole stack.
func Read(root string) (*Index, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &IoError{Root: root, Err: err}
	}
	dbDir := filepath.Join(absRoot, DBDirName)
	entries, err := os.ReadDir(dbDir)
	if err != nil {
		return nil, &IoError{Root: absRoot, Err: err}
	}

	ix := &Index{Root: absRoot}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !product.ValidName(name) {
			slog.Debug("skipping non-product entry in ups_db", "stack", absRoot, "entry", name)
			continue
		}
		if err := readProductDir(ix, dbDir, name); err != nil {
			slog.Warn("skipping unreadable product directory",
				"stack", absRoot, "product", name, "error", err)
		}
	}
	ix.normalize()
	return ix, nil
}

// readProductDir collects the version and tag declarations of a single
// product directory under ups_db.
func readProductDir(ix *Index, dbDir, productName string) error {
	dir := filepath.Join(dbDir, productName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	// Bare <version>.table files double as declarations when no
	// .version file accompanies them.
	tableOnly := make(map[string]string)

	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".version"):
			version := strings.TrimSuffix(name, ".version")
			rec, err := readVersionFile(ix.Root, dir, productName, version)
			if err != nil {
				slog.Warn("skipping unreadable version file",
					"stack", ix.Root, "product", productName, "version", version, "error", err)
				continue
			}
			ix.Versions = append(ix.Versions, rec)
			delete(tableOnly, version)
		case strings.HasSuffix(name, ".chain"):
			tag := strings.TrimSuffix(name, ".chain")
			entriesMap, err := parseKeyValueFile(filepath.Join(dir, name))
			if err != nil {
				slog.Warn("skipping unreadable chain file",
					"stack", ix.Root, "product", productName, "tag", tag, "error", err)
				continue
			}
			version := entriesMap[keyVersion]
			if version == "" {
				slog.Warn("chain file has no VERSION key",
					"stack", ix.Root, "product", productName, "tag", tag)
				continue
			}
			ix.Tags = append(ix.Tags, product.Tag{
				Product: productName,
				Name:    tag,
				Version: version,
				Scope:   product.ScopeGlobal,
			})
		case strings.HasSuffix(name, ".table"):
			version := strings.TrimSuffix(name, ".table")
			tableOnly[version] = filepath.Join(dir, name)
		}
	}

	// Versions declared only by a table file get a minimal record.
	for version, tablePath := range tableOnly {
		if _, ok := findVersion(ix.Versions, productName, version); ok {
			continue
		}
		ix.Versions = append(ix.Versions, product.Version{
			Product:   productName,
			Version:   version,
			TablePath: tablePath,
			Stack:     ix.Root,
		})
	}
	return nil
}

func findVersion(versions []product.Version, productName, version string) (int, bool) {
	for i := range versions {
		if versions[i].Product == productName && versions[i].Version == version {
			return i, true
		}
	}
	return 0, false
}

// readVersionFile builds the version record declared by
// ups_db/<product>/<version>.version.
func readVersionFile(root, dir, productName, version string) (product.Version, error) {
	entries, err := parseKeyValueFile(filepath.Join(dir, version+".version"))
	if err != nil {
		return product.Version{}, err
	}

	rec := product.Version{
		Product: productName,
		Version: version,
		Flavor:  entries[keyFlavor],
		Stack:   root,
	}

	prodDir := entries[keyProdDir]
	if prodDir != "" && !filepath.IsAbs(prodDir) {
		// Relative install directories resolve against the parent of
		// the stack root, matching how stacks are laid out with
		// products beside their database.
		prodDir = filepath.Join(filepath.Dir(root), prodDir)
	}
	rec.ProdDir = prodDir

	rec.TablePath = tablePath(root, dir, productName, version, prodDir, entries[keyUpsDir])

	for key, value := range entries {
		switch key {
		case keyProdDir, keyUpsDir, keyFlavor, keyVersion:
		default:
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]string)
			}
			rec.Metadata[key] = value
		}
	}
	return rec, nil
}

// tablePath locates the table file for a declared version. The in-db
// path ups_db/<product>/<version>.table wins when it exists; otherwise
// the declared <PROD_DIR>/<UPS_DIR>/<product>.table location is used
// when present. UPS_DIR "none" or empty means "ups". A missing table
// file on both paths leaves TablePath empty: the version simply has no
// dependencies or env effects.
func tablePath(root, dir, productName, version, prodDir, upsDir string) string {
	inDB := filepath.Join(dir, version+".table")
	if fileExists(inDB) {
		return inDB
	}
	if prodDir == "" {
		return ""
	}
	if upsDir == "" || upsDir == "none" {
		upsDir = "ups"
	}
	declared := filepath.Join(prodDir, upsDir, productName+".table")
	if fileExists(declared) {
		return declared
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// RootHash returns a short stable identifier for a stack root, used to
// key per-stack user tag directories and cache files.
func RootHash(root string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(filepath.Clean(root)))
}

// ReadUserTags loads the user-scope tag bindings for the stack rooted
// at root from userDir/<root-hash>/<product>/<tag>.chain. A missing
// directory is not an error — most users have no user tags.
func ReadUserTags(userDir, root string) []product.Tag {
	base := filepath.Join(userDir, RootHash(root))
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	var tags []product.Tag
	for _, entry := range entries {
		if !entry.IsDir() || !product.ValidName(entry.Name()) {
			continue
		}
		productName := entry.Name()
		chains, err := os.ReadDir(filepath.Join(base, productName))
		if err != nil {
			continue
		}
		for _, chain := range chains {
			name := chain.Name()
			if !strings.HasSuffix(name, ".chain") {
				continue
			}
			entriesMap, err := parseKeyValueFile(filepath.Join(base, productName, name))
			if err != nil || entriesMap[keyVersion] == "" {
				slog.Warn("skipping unreadable user chain file",
					"dir", base, "product", productName, "file", name, "error", err)
				continue
			}
			tags = append(tags, product.Tag{
				Product: productName,
				Name:    strings.TrimSuffix(name, ".chain"),
				Version: entriesMap[keyVersion],
				Scope:   product.ScopeUser,
			})
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Product != tags[j].Product {
			return tags[i].Product < tags[j].Product
		}
		return tags[i].Name < tags[j].Name
	})
	return tags
}
