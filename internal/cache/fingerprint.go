// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/natelust/reups/internal/stack"
)

// Fingerprint hashes the metadata of every file under the stack's
// ups_db tree: relative path, size, mtime in nanoseconds, and the
// symlink target (empty for regular files). Symlinks contribute their
// own metadata plus the target path, never the target's metadata, so
// retargeting a link invalidates but touching its target does not.
// Rows are sorted before hashing so directory enumeration order never
// leaks into the result.
func Fingerprint(root string) (uint64, error) {
	dbDir := filepath.Join(root, stack.DBDirName)

	var rows []string
	err := filepath.WalkDir(dbDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dbDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		target := ""
		if d.Type()&fs.ModeSymlink != 0 {
			if target, err = os.Readlink(path); err != nil {
				return err
			}
		}
		rows = append(rows, fmt.Sprintf("%s\x00%d\x00%d\x00%s",
			filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano(), target))
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Strings(rows)
	h := xxhash.New()
	for _, row := range rows {
		// Writes to xxhash.Digest never fail.
		_, _ = h.WriteString(row)
		_, _ = h.WriteString("\n")
	}
	return h.Sum64(), nil
}
