// SPDX-License-Identifier: MPL-2.0

package stack

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/natelust/reups/pkg/product"
)

// The JSON snapshot is the interchange format produced by `reups
// export`, summarized by `reups import`, and consumed as a stack source
// wherever a stack root ending in .json is given: one object per stack
// with products, their versions, and tag bindings. Unknown
// fields are ignored on read so newer exporters stay loadable.

type snapshotFile struct {
	StackRoot string            `json:"stack_root"`
	Products  []snapshotProduct `json:"products"`
	Tags      []snapshotTag     `json:"tags"`
}

type snapshotProduct struct {
	Name     string            `json:"name"`
	Versions []snapshotVersion `json:"versions"`
}

type snapshotVersion struct {
	Version   string            `json:"version"`
	ProdDir   string            `json:"prod_dir,omitempty"`
	TablePath string            `json:"table_path,omitempty"`
	Flavor    string            `json:"flavor,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type snapshotTag struct {
	Product string `json:"product"`
	Tag     string `json:"tag"`
	Version string `json:"version"`
	Scope   string `json:"scope"`
}

// ReadSnapshot loads a JSON snapshot file as a stack Index.
func ReadSnapshot(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IoError{Root: path, Err: err}
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &IoError{Root: path, Err: fmt.Errorf("malformed snapshot: %w", err)}
	}

	ix := &Index{Root: snap.StackRoot}
	if ix.Root == "" {
		ix.Root = path
	}
	for _, p := range snap.Products {
		for _, v := range p.Versions {
			ix.Versions = append(ix.Versions, product.Version{
				Product:   p.Name,
				Version:   v.Version,
				ProdDir:   v.ProdDir,
				TablePath: v.TablePath,
				Flavor:    v.Flavor,
				Stack:     ix.Root,
				Metadata:  v.Metadata,
			})
		}
	}
	for _, t := range snap.Tags {
		ix.Tags = append(ix.Tags, product.Tag{
			Product: t.Product,
			Name:    t.Tag,
			Version: t.Version,
			Scope:   product.ParseScope(t.Scope),
		})
	}
	ix.normalize()
	return ix, nil
}

// WriteSnapshot serializes the index as a JSON snapshot at path.
func WriteSnapshot(path string, ix *Index) error {
	snap := snapshotFile{StackRoot: ix.Root}

	byProduct := make(map[string][]snapshotVersion)
	for _, v := range ix.Versions {
		byProduct[v.Product] = append(byProduct[v.Product], snapshotVersion{
			Version:   v.Version,
			ProdDir:   v.ProdDir,
			TablePath: v.TablePath,
			Flavor:    v.Flavor,
			Metadata:  v.Metadata,
		})
	}
	names := make([]string, 0, len(byProduct))
	for name := range byProduct {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Products = append(snap.Products, snapshotProduct{
			Name:     name,
			Versions: byProduct[name],
		})
	}
	for _, t := range ix.Tags {
		snap.Tags = append(snap.Tags, snapshotTag{
			Product: t.Product,
			Tag:     t.Name,
			Version: t.Version,
			Scope:   t.Scope.String(),
		})
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
