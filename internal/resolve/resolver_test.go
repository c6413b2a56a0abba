// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"slices"
	"testing"

	"github.com/natelust/reups/internal/dag"
	"github.com/natelust/reups/internal/database"
	"github.com/natelust/reups/internal/testutil"
	"github.com/natelust/reups/pkg/table"
)

func openStack(t *testing.T, files map[string]string) *database.DB {
	t.Helper()
	root := t.TempDir()
	testutil.WriteStack(t, root, files)
	db, err := database.Open([]string{root}, database.Options{NoCache: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func names(res *Resolution) []string {
	out := make([]string, len(res.Nodes))
	for i, n := range res.Nodes {
		out[i] = n.Version.Product
	}
	return out
}

func TestResolveSimpleChain(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "setupRequired(bar)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
		"ups_db/bar/2.0.table":     "envSet(BAR_DIR, /opt/bar/2.0)\n",
		"ups_db/bar/current.chain": "VERSION=2.0\n",
	})
	res, err := Resolve(db, Request{Products: []string{"foo"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(names(res), []string{"bar", "foo"}) {
		t.Errorf("expected dependency first, got %v", names(res))
	}
	bar, ok := res.Get("bar")
	if !ok || bar.Version.Version != "2.0" {
		t.Errorf("bar selection broken: %+v", bar)
	}
}

func TestResolveUnknownProduct(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table": "",
	})
	_, err := Resolve(db, Request{Products: []string{"nope"}})
	var uerr *UnknownProductError
	if !errors.As(err, &uerr) || uerr.Product != "nope" {
		t.Fatalf("expected UnknownProductError for nope, got %v", err)
	}
}

func TestResolveNoMatchingTag(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table": "",
	})
	_, err := Resolve(db, Request{Products: []string{"foo"}, TagPreference: []string{"stable"}})
	var terr *NoMatchingTagError
	if !errors.As(err, &terr) {
		t.Fatalf("expected NoMatchingTagError, got %v", err)
	}
}

func TestResolveTagPreferenceOrder(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "",
		"ups_db/foo/2.0.table":     "",
		"ups_db/foo/stable.chain":  "VERSION=1.0\n",
		"ups_db/foo/current.chain": "VERSION=2.0\n",
	})
	res, err := Resolve(db, Request{
		Products:      []string{"foo"},
		TagPreference: []string{"current", "stable", "newest"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.Nodes[0].Version.Version; got != "2.0" {
		t.Errorf("expected current (2.0) to win, got %s", got)
	}
}

func TestResolveExplicitVersion(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "",
		"ups_db/foo/2.0.table":     "",
		"ups_db/foo/current.chain": "VERSION=2.0\n",
	})
	res, err := Resolve(db, Request{Products: []string{"foo"}, Version: "1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.Nodes[0].Version.Version; got != "1.0" {
		t.Errorf("explicit version ignored, got %s", got)
	}

	_, err = Resolve(db, Request{Products: []string{"foo"}, Version: "9.9"})
	var terr *NoMatchingTagError
	if !errors.As(err, &terr) || terr.Version != "9.9" {
		t.Fatalf("expected NoMatchingTagError naming 9.9, got %v", err)
	}
}

func TestResolveVersionConflict(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "setupRequired(bar 1.0)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
		"ups_db/baz/1.0.table":     "setupRequired(bar 2.0)\n",
		"ups_db/baz/current.chain": "VERSION=1.0\n",
		"ups_db/bar/1.0.table":     "",
		"ups_db/bar/2.0.table":     "",
	})
	_, err := Resolve(db, Request{Products: []string{"foo", "baz"}})
	var cerr *VersionConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected VersionConflictError, got %v", err)
	}
	if cerr.Product != "bar" || cerr.Existing != "1.0" || cerr.Requested != "2.0" {
		t.Errorf("conflict details wrong: %+v", cerr)
	}
}

func TestResolvePinBeatsLooseSelection(t *testing.T) {
	t.Parallel()
	// foo pulls bar loosely (current -> 2.0); qux pins bar@1.0. The
	// pin must win regardless of discovery order.
	db := openStack(t, map[string]string{
		"ups_db/top/1.0.table":     "setupRequired(foo)\nsetupRequired(qux)\n",
		"ups_db/top/current.chain": "VERSION=1.0\n",
		"ups_db/foo/1.0.table":     "setupRequired(bar)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
		"ups_db/qux/1.0.table":     "setupRequired(bar 1.0)\n",
		"ups_db/qux/current.chain": "VERSION=1.0\n",
		"ups_db/bar/1.0.table":     "",
		"ups_db/bar/2.0.table":     "",
		"ups_db/bar/current.chain": "VERSION=2.0\n",
	})
	res, err := Resolve(db, Request{Products: []string{"top"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bar, ok := res.Get("bar")
	if !ok || bar.Version.Version != "1.0" {
		t.Errorf("expected the pin to win, got %+v", bar)
	}
}

func TestResolveInexactIgnoresPins(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "setupRequired(bar 1.0)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
		"ups_db/bar/1.0.table":     "",
		"ups_db/bar/2.0.table":     "",
		"ups_db/bar/current.chain": "VERSION=2.0\n",
	})
	res, err := Resolve(db, Request{Products: []string{"foo"}, Inexact: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bar, _ := res.Get("bar")
	if bar.Version.Version != "2.0" {
		t.Errorf("inexact mode should follow tags, got %s", bar.Version.Version)
	}
}

func TestResolveCycle(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/a/1.0.table":     "setupRequired(b)\n",
		"ups_db/a/current.chain": "VERSION=1.0\n",
		"ups_db/b/1.0.table":     "setupRequired(a)\n",
		"ups_db/b/current.chain": "VERSION=1.0\n",
	})
	_, err := Resolve(db, Request{Products: []string{"a"}})
	var cerr *dag.CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(cerr.Path) != 3 || cerr.Path[0] != cerr.Path[2] {
		t.Errorf("expected a closed two-node cycle, got %v", cerr.Path)
	}
}

func TestResolveOptionalMissingIsSkipped(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "setupOptional(ghost)\nsetupRequired(bar)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
		"ups_db/bar/1.0.table":     "",
		"ups_db/bar/current.chain": "VERSION=1.0\n",
	})
	res, err := Resolve(db, Request{Products: []string{"foo"}})
	if err != nil {
		t.Fatalf("expected optional miss to be tolerated, got %v", err)
	}
	if _, ok := res.Get("ghost"); ok {
		t.Error("ghost should not be in the resolution")
	}
	if !slices.Equal(names(res), []string{"bar", "foo"}) {
		t.Errorf("unexpected resolution: %v", names(res))
	}
}

func TestResolveRequiredMissingFails(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "setupRequired(ghost)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
	})
	_, err := Resolve(db, Request{Products: []string{"foo"}})
	var uerr *UnknownProductError
	if !errors.As(err, &uerr) || uerr.Product != "ghost" {
		t.Fatalf("expected UnknownProductError for ghost, got %v", err)
	}
}

func TestResolveOptionalThenRequiredUpgrades(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/top/1.0.table":     "setupOptional(lib)\nsetupRequired(mid)\n",
		"ups_db/top/current.chain": "VERSION=1.0\n",
		"ups_db/mid/1.0.table":     "setupRequired(lib)\n",
		"ups_db/mid/current.chain": "VERSION=1.0\n",
		"ups_db/lib/1.0.table":     "",
		"ups_db/lib/current.chain": "VERSION=1.0\n",
	})
	res, err := Resolve(db, Request{Products: []string{"top"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lib, ok := res.Get("lib")
	if !ok || lib.Optional {
		t.Errorf("expected lib upgraded to required, got %+v", lib)
	}
}

func TestResolveNoDependencies(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "setupRequired(bar)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
		"ups_db/bar/1.0.table":     "",
		"ups_db/bar/current.chain": "VERSION=1.0\n",
	})
	res, err := Resolve(db, Request{Products: []string{"foo"}, NoDependencies: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(names(res), []string{"foo"}) {
		t.Errorf("expected only the root, got %v", names(res))
	}
}

func TestResolveDeterministicOrder(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"ups_db/root/1.0.table":      "setupRequired(zeta)\nsetupRequired(alpha)\n",
		"ups_db/root/current.chain":  "VERSION=1.0\n",
		"ups_db/zeta/1.0.table":      "",
		"ups_db/zeta/current.chain":  "VERSION=1.0\n",
		"ups_db/alpha/1.0.table":     "",
		"ups_db/alpha/current.chain": "VERSION=1.0\n",
	}
	db := openStack(t, files)
	first, err := Resolve(db, Request{Products: []string{"root"}})
	if err != nil {
		t.Fatal(err)
	}
	db2 := openStack(t, files)
	second, err := Resolve(db2, Request{Products: []string{"root"}})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names(first), names(second)) {
		t.Errorf("resolution not deterministic: %v vs %v", names(first), names(second))
	}
	// Independent siblings come out in lexical order.
	if !slices.Equal(names(first), []string{"alpha", "zeta", "root"}) {
		t.Errorf("unexpected order: %v", names(first))
	}
}

func TestResolveParseErrorSurfacesPath(t *testing.T) {
	t.Parallel()
	db := openStack(t, map[string]string{
		"ups_db/foo/1.0.table":     "envSet(BROKEN, \"unterminated\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
	})
	_, err := Resolve(db, Request{Products: []string{"foo"}})
	var perr *table.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Path == "" {
		t.Error("expected the failing table path in the error")
	}
}
