// SPDX-License-Identifier: MPL-2.0

// Package resolve turns a setup request into a consistent, topologically
// ordered selection of product versions. It walks declared dependency
// tables from the requested roots, choosing versions by explicit pin or
// tag preference, and refuses to produce a selection that violates any
// pin or contains a required-edge cycle.
package resolve

import (
	"fmt"
	"log/slog"

	"github.com/natelust/reups/internal/dag"
	"github.com/natelust/reups/internal/database"
	"github.com/natelust/reups/pkg/product"
	"github.com/natelust/reups/pkg/table"
)

// DefaultTagPreference applies when a request names no tags at all.
var DefaultTagPreference = []string{"current", product.NewestTag}

// Request describes what to resolve.
type Request struct {
	// Products are the root products, usually one. A group request
	// resolves them into a single shared selection.
	Products []string
	// Version pins the root explicitly; only valid with one root.
	Version string
	// TagPreference is the ordered tag list used for the roots and for
	// every unpinned edge. Empty selects DefaultTagPreference.
	TagPreference []string
	// Inexact ignores version pins on dependency edges and resolves
	// everything through the tag preference.
	Inexact bool
	// NoDependencies resolves only the roots themselves.
	NoDependencies bool
}

// Node is one selected (product, version) with its parsed table.
type Node struct {
	Version  *product.Version
	Table    *table.Table
	Optional bool
	// Root marks a product that was requested directly rather than
	// pulled in as a dependency.
	Root bool
}

// Resolution is the ordered outcome: dependencies always precede their
// dependents, and each product appears exactly once.
type Resolution struct {
	Nodes  []*Node
	byName map[string]*Node
}

// Get returns the node selected for a product name.
func (r *Resolution) Get(name string) (*Node, bool) {
	n, ok := r.byName[name]
	return n, ok
}

// Resolve builds the selection for a request. The result is
// deterministic in (database contents, request): repeated runs yield
// identical orderings.
func Resolve(db *database.DB, req Request) (*Resolution, error) {
	tagPref := req.TagPreference
	if len(tagPref) == 0 {
		tagPref = DefaultTagPreference
	}

	// pins accumulates hard version choices across attempts. A pinned
	// edge discovered after its product was already resolved loosely
	// restarts the walk with the pin recorded; each restart adds a
	// pin, so the loop terminates.
	pins := make(map[string]string)
	if req.Version != "" {
		if len(req.Products) != 1 {
			return nil, fmt.Errorf("explicit version %q requires exactly one root product", req.Version)
		}
		pins[req.Products[0]] = req.Version
	}

	for {
		res, restart, err := resolveOnce(db, req, tagPref, pins)
		if err != nil {
			return nil, err
		}
		if !restart {
			return res, nil
		}
	}
}

// selection tracks the in-progress choice for one product.
type selection struct {
	version  *product.Version
	tbl      *table.Table
	pinned   bool
	optional bool
}

func resolveOnce(db *database.DB, req Request, tagPref []string, pins map[string]string) (*Resolution, bool, error) {
	chosen := make(map[string]*selection)
	graph := dag.New()
	var queue []string

	pick := func(name string, pinVersion string, optional bool) (*selection, error) {
		if pinned, ok := pins[name]; ok {
			pinVersion = pinned
		}
		var (
			v  *product.Version
			ok bool
		)
		if pinVersion != "" {
			if !db.HasProduct(name) {
				return nil, &UnknownProductError{Product: name}
			}
			v, ok = db.LookupVersion(name, pinVersion)
			if !ok {
				return nil, &NoMatchingTagError{Product: name, Version: pinVersion}
			}
		} else {
			if !db.HasProduct(name) {
				return nil, &UnknownProductError{Product: name}
			}
			v, ok = db.BestVersion(name, tagPref)
			if !ok {
				return nil, &NoMatchingTagError{Product: name, Tags: tagPref}
			}
		}
		sel := &selection{version: v, pinned: pinVersion != "", optional: optional}
		chosen[name] = sel
		graph.AddNode(name)
		queue = append(queue, name)
		return sel, nil
	}

	for _, name := range req.Products {
		if _, err := pick(name, pins[name], false); err != nil {
			return nil, false, err
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sel := chosen[name]

		tbl, err := db.Table(sel.version)
		if err != nil {
			return nil, false, err
		}
		sel.tbl = tbl

		if req.NoDependencies {
			continue
		}

		for _, dep := range tbl.Dependencies {
			pinVersion := dep.Version
			if req.Inexact {
				pinVersion = ""
			}

			if existing, ok := chosen[dep.Product]; ok {
				if !dep.Optional {
					existing.optional = false
				}
				if pinVersion != "" && existing.version.Version != pinVersion {
					if existing.pinned {
						return nil, false, &VersionConflictError{
							Product:     dep.Product,
							Existing:    existing.version.Version,
							Requested:   pinVersion,
							RequestedBy: name,
						}
					}
					// The pin beats the earlier loose choice; restart
					// with the pin recorded.
					slog.Debug("pin overrides loose selection, restarting",
						"product", dep.Product,
						"loose", existing.version.Version, "pin", pinVersion)
					pins[dep.Product] = pinVersion
					return nil, true, nil
				}
				graph.AddEdge(dep.Product, name)
				continue
			}

			if _, err := pick(dep.Product, pinVersion, dep.Optional); err != nil {
				if dep.Optional && recoverable(err) {
					slog.Warn("skipping unresolvable optional dependency",
						"product", dep.Product, "requiredBy", name, "error", err)
					continue
				}
				return nil, false, err
			}
			graph.AddEdge(dep.Product, name)
		}
	}

	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, false, err
	}

	roots := make(map[string]bool, len(req.Products))
	for _, name := range req.Products {
		roots[name] = true
	}
	res := &Resolution{byName: make(map[string]*Node, len(order))}
	for _, name := range order {
		sel := chosen[name]
		node := &Node{
			Version:  sel.version,
			Table:    sel.tbl,
			Optional: sel.optional,
			Root:     roots[name],
		}
		res.Nodes = append(res.Nodes, node)
		res.byName[name] = node
	}
	return res, false, nil
}

// recoverable reports whether an optional edge may swallow the error:
// only missing products and unmatched versions demote to a warning;
// parse failures and I/O problems always surface.
func recoverable(err error) bool {
	switch err.(type) {
	case *UnknownProductError, *NoMatchingTagError:
		return true
	default:
		return false
	}
}
