// Package markup turns HTML fragments returned by repository APIs into plain
// single-line text.
package markup

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// Clean strips every tag, unescapes entities and collapses whitespace runs
// into single spaces.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	stripped := html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(stripped), " ")
}
