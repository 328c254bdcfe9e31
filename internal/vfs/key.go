// Package vfs holds the pure core of the virtual filesystem: key
// normalization, directory-level filtering of a flat key space, and the
// paginated prefix walk used by bulk delete and copy. Nothing in this
// package touches the network.
package vfs

import (
	"path"
	"strings"
)

// Normalize canonicalizes a user-supplied key. Backslashes become forward
// slashes, "." and ".." segments are resolved with POSIX semantics, leading
// slashes and any ".." that would climb above the root are stripped. Empty
// or all-traversal input normalizes to "", which callers must treat as a
// missing key. This is the sole traversal defense: every externally
// supplied path goes through here before any store or catalog call.
func Normalize(raw string) string {
	key := strings.ReplaceAll(raw, "\\", "/")

	// A trailing slash is the folder marker and must survive Clean.
	trailing := strings.HasSuffix(key, "/") && strings.TrimRight(key, "/") != ""

	// Anchoring at "/" before Clean pins ".." segments to the root so
	// they can never escape it.
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "." || cleaned == "" {
		return ""
	}
	if trailing {
		cleaned += "/"
	}
	return cleaned
}

// IsFolderKey reports whether key denotes a folder marker. The trailing
// slash is the sole folder/file discriminator; no extension heuristics.
func IsFolderKey(key string) bool {
	return key != "" && strings.HasSuffix(key, "/")
}

// EnsureFolderKey coerces key into folder-marker form.
func EnsureFolderKey(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

// FileNameOf returns the last path segment of key. Folder markers yield
// the folder's own name ("a/b/" -> "b").
func FileNameOf(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Rebase substitutes srcPrefix with dstPrefix in key. It is the
// destination-key computation for copy-tree: "reports/q1.pdf" rebased
// from "reports/" onto "archive/2024/" is "archive/2024/q1.pdf".
// The second return is false when key is not under srcPrefix.
func Rebase(key, srcPrefix, dstPrefix string) (string, bool) {
	rest, ok := strings.CutPrefix(key, srcPrefix)
	if !ok {
		return "", false
	}
	return dstPrefix + rest, true
}
