package sigil_test

import (
	"testing"

	"github.com/sagarc03/sigil"
)

func TestEscapeLikePattern(t *testing.T) {
	tt := []struct {
		Name    string
		Pattern string
		Want    string
	}{
		{Name: "plain prefix untouched", Pattern: "AKID", Want: "AKID"},
		{Name: "percent escaped", Pattern: "AK%ID", Want: `AK\%ID`},
		{Name: "underscore escaped", Pattern: "AK_ID", Want: `AK\_ID`},
		{Name: "backslash escaped first", Pattern: `AK\%`, Want: `AK\\\%`},
		{Name: "empty pattern", Pattern: "", Want: ""},
		{Name: "all metacharacters", Pattern: `%_\`, Want: `\%\_\\`},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			if got := sigil.EscapeLikePattern(tc.Pattern); got != tc.Want {
				t.Errorf("EscapeLikePattern(%q) = %q, want %q", tc.Pattern, got, tc.Want)
			}
		})
	}
}
