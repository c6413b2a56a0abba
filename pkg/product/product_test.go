// SPDX-License-Identifier: MPL-2.0

package product

import "testing"

func TestValidName(t *testing.T) {
	t.Parallel()
	valid := []string{"foo", "foo_bar", "foo-bar2", "a", "0ad"}
	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	invalid := []string{"", "Foo", "foo bar", "foo/bar", "foö"}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}

func TestNewestVersion(t *testing.T) {
	t.Parallel()
	if _, ok := NewestVersion(nil); ok {
		t.Error("expected no newest version for empty input")
	}
	got, ok := NewestVersion([]string{"1.0", "2.0", "10.0"})
	if !ok {
		t.Fatal("expected a newest version")
	}
	// Lexicographic, not numeric: "2.0" sorts after "10.0".
	if got != "2.0" {
		t.Errorf("expected 2.0, got %s", got)
	}
}

func TestEnvVarNames(t *testing.T) {
	t.Parallel()
	if got := SetupVarName("science pipelines"); got != "SETUP_SCIENCE_PIPELINES" {
		t.Errorf("unexpected setup var: %s", got)
	}
	if got := DirVarName("foo-bar"); got != "FOO_BAR_DIR" {
		t.Errorf("unexpected dir var: %s", got)
	}
	if got := RecordVarName("foo"); got != "REUPS_SETUP_FOO" {
		t.Errorf("unexpected record var: %s", got)
	}
}
