package vfs

import (
	"sort"
	"strings"
)

// IsDirectChild reports whether key sits exactly one path segment below
// prefix: after stripping the prefix the remainder is non-empty and either
// contains no slash (a file) or a single slash at the final character (a
// direct child folder marker). This is what collapses a flat key space
// into one directory level.
func IsDirectChild(prefix, key string) bool {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok || rest == "" {
		return false
	}
	i := strings.Index(rest, "/")
	return i < 0 || i == len(rest)-1
}

// DirectChildren filters keys down to the direct children of prefix and
// returns them in ascending key order, folders and files interleaved by
// name. Re-applying with the same inputs is idempotent.
func DirectChildren(prefix string, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if IsDirectChild(prefix, k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
