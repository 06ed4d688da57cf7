// Package license decides whether a dataset's declared license permits
// redistribution of its files.
package license

import (
	"strings"

	"github.com/sells-group/qda-harvester/internal/markup"
)

// openPrefixes are matched against the canonical form of the license text
// (lower-case, spaces and underscores turned into hyphens).
var openPrefixes = []string{
	"cc-by",
	"cc-by-sa",
	"cc-by-nc",
	"cc-by-nc-sa",
	"cc-by-nd",
	"cc-by-nc-nd",
	"cc0",
	"cc0-1.0",
	"public-domain",
	"odc-by",
	"odc-odbl",
	"odc-pddl",
	"mit",
	"apache-2.0",
	// QDR grants access to registered users under its standard terms.
	"standard-access",
	// French open-government license.
	"etalab",
}

// openPhrases are searched for in long terms-of-use texts that carry no
// recognizable identifier.
var openPhrases = []string{
	"creative commons",
	"cc by",
	"cc0",
	"statistics canada open licence",
	"licence ouverte",
	"public domain",
	"not aware of any copyright",
	"no known restrictions",
	"no known copyright restrictions",
	"non-restricted",
	"fully open content",
	"united states government work",
	"(a) openly available",
	"(a) vapaasti",
}

// IsOpen reports whether text names or describes an open license. Empty text
// is never open.
func IsOpen(text string) bool {
	cleaned := markup.Clean(text)
	if cleaned == "" {
		return false
	}

	canonical := Canonical(cleaned)
	for _, p := range openPrefixes {
		if strings.HasPrefix(canonical, p) {
			return true
		}
	}

	lower := strings.ToLower(cleaned)
	for _, phrase := range openPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Canonical lower-cases s and replaces spaces and underscores with hyphens.
func Canonical(s string) string {
	return strings.NewReplacer(" ", "-", "_", "-").Replace(strings.ToLower(s))
}
