// SPDX-License-Identifier: MPL-2.0

package setup

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// A setup record is the exact inverse of one product's application: for
// every variable the product mutated, the value it had beforehand (or
// the fact that it was unset). Records travel inside the reserved
// REUPS_SETUP_<PRODUCT> variable so a later invocation can undo the
// setup with nothing but the caller's environment.
//
// Wire format, then base64url (no padding) over the whole payload:
//
//	v1\n
//	<name>\x1F<state>\x1F<base64url(value)>\n   state: s = had value, u = was unset
//
// The value field is base64-encoded on its own so values containing
// newlines or separator bytes cannot corrupt the framing. Entries are
// sorted by name so identical deltas serialize identically.

const recordVersion = "v1"

const (
	stateSet   = "s"
	stateUnset = "u"
)

type recordEntry struct {
	Name     string
	HadValue bool
	Value    string
}

func encodeRecord(entries []recordEntry) string {
	sorted := append([]recordEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	b.WriteString(recordVersion)
	b.WriteByte('\n')
	for _, e := range sorted {
		state := stateUnset
		value := ""
		if e.HadValue {
			state = stateSet
			value = base64.RawURLEncoding.EncodeToString([]byte(e.Value))
		}
		b.WriteString(e.Name)
		b.WriteByte(0x1f)
		b.WriteString(state)
		b.WriteByte(0x1f)
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}

func decodeRecord(encoded string) ([]recordEntry, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed setup record: %w", err)
	}
	lines := strings.Split(string(raw), "\n")
	if len(lines) == 0 || lines[0] != recordVersion {
		return nil, fmt.Errorf("malformed setup record: unknown version")
	}
	var entries []recordEntry
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\x1f", 3)
		if len(parts) != 3 || parts[0] == "" {
			return nil, fmt.Errorf("malformed setup record entry %q", line)
		}
		value := ""
		if parts[1] == stateSet {
			decoded, err := base64.RawURLEncoding.DecodeString(parts[2])
			if err != nil {
				return nil, fmt.Errorf("malformed setup record value for %s: %w", parts[0], err)
			}
			value = string(decoded)
		}
		entries = append(entries, recordEntry{
			Name:     parts[0],
			HadValue: parts[1] == stateSet,
			Value:    value,
		})
	}
	return entries, nil
}
