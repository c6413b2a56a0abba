// SPDX-License-Identifier: MPL-2.0

package stack

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/natelust/reups/internal/testutil"
	"github.com/natelust/reups/pkg/product"
)

func TestReadMissingRoot(t *testing.T) {
	t.Parallel()
	_, err := Read(filepath.Join(t.TempDir(), "nope"))
	var ioErr *IoError
	if err == nil {
		t.Fatal("expected an error for a missing stack root")
	}
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IoError, got %T: %v", err, err)
	}
}

func TestReadStack(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	testutil.WriteStack(t, root, map[string]string{
		"ups_db/foo/1.0.version": "PROD_DIR=" + filepath.Join(root, "foo", "1.0") + "\nUPS_DIR=none\nFLAVOR=Linux64\nDECLARER=tester\n",
		"ups_db/foo/1.0.table":   "envSet(FOO_DIR, ${PRODUCT_DIR})\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
		"ups_db/bar/2.0.table":     "",
	})

	ix, err := Read(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := ix.Products(); !slices.Equal(got, []string{"bar", "foo"}) {
		t.Errorf("unexpected products: %v", got)
	}

	foo, ok := ix.Lookup("foo", "1.0")
	if !ok {
		t.Fatal("expected foo@1.0")
	}
	if foo.Flavor != "Linux64" {
		t.Errorf("unexpected flavor %q", foo.Flavor)
	}
	if foo.TablePath != filepath.Join(root, "ups_db", "foo", "1.0.table") {
		t.Errorf("expected the in-db table path to win, got %q", foo.TablePath)
	}
	if foo.Metadata["DECLARER"] != "tester" {
		t.Errorf("expected unknown keys preserved, got %v", foo.Metadata)
	}

	// bar is declared only by its bare table file.
	bar, ok := ix.Lookup("bar", "2.0")
	if !ok {
		t.Fatal("expected bar@2.0 from its bare table file")
	}
	if bar.ProdDir != "" {
		t.Errorf("expected no prod dir, got %q", bar.ProdDir)
	}

	tagged, ok := ix.TagTarget("foo", "current")
	if !ok || tagged.Version != "1.0" {
		t.Errorf("expected current -> 1.0, got %+v ok=%v", tagged, ok)
	}
}

func TestDanglingTagDropped(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	testutil.WriteStack(t, root, map[string]string{
		"ups_db/foo/1.0.table":     "",
		"ups_db/foo/current.chain": "VERSION=9.9\n",
	})
	ix, err := Read(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ix.TagTarget("foo", "current"); ok {
		t.Error("expected a dangling tag to resolve to nothing")
	}
}

func TestRelativeProdDir(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	root := filepath.Join(base, "stack")
	testutil.WriteStack(t, root, map[string]string{
		"ups_db/foo/1.0.version": "PROD_DIR=foo/1.0\n",
		"ups_db/foo/1.0.table":   "",
	})
	ix, err := Read(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foo, _ := ix.Lookup("foo", "1.0")
	if foo.ProdDir != filepath.Join(base, "foo", "1.0") {
		t.Errorf("relative PROD_DIR resolved wrong: %q", foo.ProdDir)
	}
}

func TestUserTags(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	userDir := t.TempDir()
	testutil.WriteFile(t,
		filepath.Join(userDir, RootHash(root), "foo", "mine.chain"),
		"VERSION=1.0\n")

	tags := ReadUserTags(userDir, root)
	if len(tags) != 1 {
		t.Fatalf("expected one user tag, got %v", tags)
	}
	if tags[0].Scope != product.ScopeUser || tags[0].Name != "mine" || tags[0].Version != "1.0" {
		t.Errorf("unexpected tag %+v", tags[0])
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	testutil.WriteStack(t, root, map[string]string{
		"ups_db/foo/1.0.version":   "PROD_DIR=" + filepath.Join(root, "foo", "1.0") + "\nFLAVOR=generic\n",
		"ups_db/foo/1.0.table":     "envSet(A, 1)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
	})
	ix, err := Read(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snap.json")
	if err := WriteSnapshot(path, ix); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	back, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	if back.Root != ix.Root {
		t.Errorf("root mismatch: %q vs %q", back.Root, ix.Root)
	}
	if len(back.Versions) != len(ix.Versions) || len(back.Tags) != len(ix.Tags) {
		t.Fatalf("shape mismatch: %d/%d versions, %d/%d tags",
			len(back.Versions), len(ix.Versions), len(back.Tags), len(ix.Tags))
	}
	v, ok := back.Lookup("foo", "1.0")
	if !ok || v.Flavor != "generic" {
		t.Errorf("lookup after round trip broken: %+v ok=%v", v, ok)
	}
}
