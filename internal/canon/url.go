// Package canon derives the identity key used to deduplicate postings.
package canon

import "strings"

// URL removes the query string and fragment from raw and strips the trailing
// slash. Two postings are the same posting iff their canonical URLs match.
//
// Trailing slashes and any whitespace mixed in with them are all removed so
// URL(URL(u)) == URL(u) holds for every input. Empty input is returned unchanged.
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimRight(raw, "/ \t\n\r")
}

// Set canonicalizes every entry of urls into a lookup set, skipping empties.
func Set(urls []string) map[string]struct{} {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if c := URL(u); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}
