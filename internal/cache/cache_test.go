// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/natelust/reups/internal/stack"
	"github.com/natelust/reups/internal/testutil"
)

func writeFixtureStack(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteStack(t, root, map[string]string{
		"ups_db/foo/1.0.version":   "PROD_DIR=" + filepath.Join(root, "foo", "1.0") + "\nFLAVOR=generic\nDECLARER=me\n",
		"ups_db/foo/1.0.table":     "setupRequired(bar)\n",
		"ups_db/foo/current.chain": "VERSION=1.0\n",
		"ups_db/bar/2.0.table":     "",
	})
	return root
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()
	root := writeFixtureStack(t)
	ix, err := stack.Read(root)
	if err != nil {
		t.Fatalf("read stack: %v", err)
	}

	data := Encode(ix, 42)
	back, fingerprint, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fingerprint != 42 {
		t.Errorf("fingerprint round trip broken: %d", fingerprint)
	}
	if back.Root != ix.Root {
		t.Errorf("root mismatch: %q vs %q", back.Root, ix.Root)
	}
	if len(back.Versions) != len(ix.Versions) || len(back.Tags) != len(ix.Tags) {
		t.Fatalf("shape mismatch after round trip")
	}
	v, ok := back.Lookup("foo", "1.0")
	if !ok {
		t.Fatal("lookup lost after round trip")
	}
	if v.Flavor != "generic" || v.Metadata["DECLARER"] != "me" {
		t.Errorf("fields lost after round trip: %+v", v)
	}
	if _, ok := back.TagTarget("foo", "current"); !ok {
		t.Error("tag lost after round trip")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()
	cases := [][]byte{
		nil,
		[]byte("short"),
		[]byte("NOTMAGIC????????????????????????"),
	}
	for _, data := range cases {
		if _, _, err := Decode(data); err == nil {
			t.Errorf("expected decode of %d garbage bytes to fail", len(data))
		}
	}
}

func TestDecodeRejectsFlippedByte(t *testing.T) {
	t.Parallel()
	root := writeFixtureStack(t)
	ix, err := stack.Read(root)
	if err != nil {
		t.Fatalf("read stack: %v", err)
	}
	data := Encode(ix, 7)
	// Flip one byte in the section region (past the header).
	data[len(data)-12] ^= 0xff
	if _, _, err := Decode(data); err == nil {
		t.Error("expected checksum to catch a flipped byte")
	}
}

func TestFingerprintChangesOnTouch(t *testing.T) {
	t.Parallel()
	root := writeFixtureStack(t)
	before, err := Fingerprint(root)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	// Touching a file under ups_db changes the fingerprint.
	victim := filepath.Join(root, "ups_db", "foo", "1.0.version")
	future := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(victim, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	after, err := Fingerprint(root)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if before == after {
		t.Error("expected fingerprint to change on touch")
	}

	// Files outside ups_db do not participate.
	testutil.WriteFile(t, filepath.Join(root, "unrelated.txt"), "x")
	again, err := Fingerprint(root)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if again != after {
		t.Error("expected files outside ups_db to be ignored")
	}
}

func TestFingerprintTracksSymlinkTarget(t *testing.T) {
	t.Parallel()
	root := writeFixtureStack(t)
	link := filepath.Join(root, "ups_db", "foo", "stable.chain")
	if err := os.Symlink("current.chain", link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	before, err := Fingerprint(root)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if err := os.Remove(link); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("1.0.version", link); err != nil {
		t.Fatal(err)
	}
	after, err := Fingerprint(root)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if before == after {
		t.Error("expected retargeting a symlink to change the fingerprint")
	}
}

func TestOpenWritesAndReusesCache(t *testing.T) {
	t.Parallel()
	root := writeFixtureStack(t)
	store := NewStore(t.TempDir())

	ix, err := Open(root, store)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if !ix.HasProduct("foo") {
		t.Fatal("first open lost products")
	}
	if _, err := os.Stat(store.Path(root)); err != nil {
		t.Fatalf("expected cache file after first open: %v", err)
	}

	fingerprint, err := Fingerprint(root)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if _, ok := store.Load(root, fingerprint); !ok {
		t.Fatal("expected a cache hit on unchanged stack")
	}

	// Touch a product file: the cache must miss, Open must rebuild.
	victim := filepath.Join(root, "ups_db", "bar", "2.0.table")
	future := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(victim, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	newFingerprint, err := Fingerprint(root)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if _, ok := store.Load(root, newFingerprint); ok {
		t.Fatal("expected a cache miss after touch")
	}
	if _, err := Open(root, store); err != nil {
		t.Fatalf("rebuild open: %v", err)
	}
	if _, ok := store.Load(root, newFingerprint); !ok {
		t.Fatal("expected the rebuilt cache to hit")
	}
}

func TestCorruptCacheDegrades(t *testing.T) {
	t.Parallel()
	root := writeFixtureStack(t)
	store := NewStore(t.TempDir())
	if _, err := Open(root, store); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := os.WriteFile(store.Path(root), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	ix, err := Open(root, store)
	if err != nil {
		t.Fatalf("open over corrupt cache: %v", err)
	}
	if !ix.HasProduct("foo") {
		t.Error("corrupt cache should fall back to enumeration")
	}
}

func TestOpenWithoutStore(t *testing.T) {
	t.Parallel()
	root := writeFixtureStack(t)
	ix, err := Open(root, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !ix.HasProduct("bar") {
		t.Error("expected direct enumeration without a store")
	}
}
