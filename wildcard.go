// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"strings"

	"github.com/gobwas/glob"
)

// matchWildcard reports whether host matches the wildcard pattern.
//
// The pattern language is exactly `*` (zero or more arbitrary characters)
// and `?` (exactly one character); every other character, including glob
// metacharacters such as brackets and braces, matches literally. Matching
// is case-sensitive and anchored at both ends.
func matchWildcard(pattern, host string) bool {
	g, err := glob.Compile(quoteNonWildcards(pattern))
	if err != nil {
		return false
	}
	return g.Match(host)
}

// quoteNonWildcards escapes glob metacharacters other than `*` and `?` so
// that only the two supported wildcards keep their special meaning.
func quoteNonWildcards(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for _, r := range pattern {
		switch r {
		case '\\', '[', ']', '{', '}', ',':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
