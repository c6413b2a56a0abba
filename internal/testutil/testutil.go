// SPDX-License-Identifier: MPL-2.0

// Package testutil holds small fixture helpers shared by the package
// tests: writing throwaway stack trees without repeating os.MkdirAll
// boilerplate in every test.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteStack lays out a stack tree under root. Keys are paths relative
// to the stack root (e.g. "ups_db/foo/1.0.version"), values are file
// contents.
func WriteStack(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		WriteFile(t, filepath.Join(root, rel), content)
	}
}
