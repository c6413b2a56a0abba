// SPDX-License-Identifier: MPL-2.0

package stack

import (
	"os"
	"strings"
)

// Recognized .version keys. PROD_DIR, UPS_DIR, FLAVOR, and VERSION map
// onto Version fields; every other key, DECLARER and DECLARED included,
// is preserved verbatim in Version.Metadata.
const (
	keyProdDir  = "PROD_DIR"
	keyUpsDir   = "UPS_DIR"
	keyFlavor   = "FLAVOR"
	keyVersion  = "VERSION"
	keyDeclarer = "DECLARER"
	keyDeclared = "DECLARED"
)

// parseKeyValueFile reads a .version or .chain file: KEY=VALUE lines,
// split on the first '=', both sides trimmed. Lines without an '=' and
// '#' comment lines are ignored.
func parseKeyValueFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i < 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if key != "" {
			entries[key] = value
		}
	}
	return entries, nil
}
