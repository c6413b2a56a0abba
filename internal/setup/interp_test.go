// SPDX-License-Identifier: MPL-2.0

package setup

import "testing"

func TestInterpolate(t *testing.T) {
	t.Parallel()
	env := map[string]string{"HOME": "/home/u", "EMPTY": ""}

	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${HOME}/bin", "/home/u/bin"},
		{"${PRODUCT_DIR}/lib", "/opt/p/lib"},
		{"a${MISSING}b", "ab"},
		{"${EMPTY}x", "x"},
		{"price $5", "price $5"},
		{"${UNCLOSED", "${UNCLOSED"},
		{"${HOME}${HOME}", "/home/u/home/u"},
	}
	for _, c := range cases {
		got, err := interpolate(c.in, "/opt/p", "p", env)
		if err != nil {
			t.Errorf("interpolate(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("interpolate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestInterpolateRequired(t *testing.T) {
	t.Parallel()
	env := map[string]string{"SET": "v"}

	if got, err := interpolate("${!SET}", "", "p", env); err != nil || got != "v" {
		t.Errorf("required present broken: %q %v", got, err)
	}
	if _, err := interpolate("${!GONE}", "", "p", env); err == nil {
		t.Error("expected an error for a required missing variable")
	}
}
