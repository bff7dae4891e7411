package utils

import (
	"regexp"
	"strings"
)

// CombineRegexp joins regexps into one alternation, wrapping each in a
// non-capturing group so that their own alternations stay local.
func CombineRegexp(regexps ...*regexp.Regexp) *regexp.Regexp {
	patterns := make([]string, len(regexps))
	for i, r := range regexps {
		patterns[i] = "(?:" + r.String() + ")"
	}
	return regexp.MustCompile(strings.Join(patterns, "|"))
}
