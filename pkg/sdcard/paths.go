package sdcard

import "strings"

// Path helpers
// ============
// Every path handed to the engine goes through NormalizePath first, so the
// engine only ever sees canonical absolute paths: a single leading slash, no
// trailing slash except for the root itself, no duplicated separators.
//
// These are pure string transforms. They never consult the medium and have
// no failure modes; NormalizePath is idempotent.

// NormalizePath returns the canonical absolute form of path.
//
// The empty string and "." both mean the root. A missing leading slash is
// added, a trailing slash is stripped unless the result is the root, and
// runs of consecutive slashes collapse to one.
func NormalizePath(path string) string {
	if path == "" || path == "." {
		return "/"
	}

	normalized := path
	if normalized[0] != '/' {
		normalized = "/" + normalized
	}

	for strings.Contains(normalized, "//") {
		normalized = strings.ReplaceAll(normalized, "//", "/")
	}

	if len(normalized) > 1 && normalized[len(normalized)-1] == '/' {
		normalized = normalized[:len(normalized)-1]
	}

	return normalized
}

// JoinPath joins a directory path and a leaf name into a normalized path.
// An empty dir or leaf degrades to normalizing the other part.
func JoinPath(dir, leaf string) string {
	if dir == "" {
		return NormalizePath(leaf)
	}
	if leaf == "" {
		return NormalizePath(dir)
	}

	if dir[len(dir)-1] != '/' {
		dir += "/"
	}

	return NormalizePath(dir + leaf)
}

// SplitPath splits a path into its parent directory and leaf name, after
// normalization. For entries directly under the root the parent is "/".
func SplitPath(path string) (parent, leaf string) {
	normalized := NormalizePath(path)

	idx := strings.LastIndexByte(normalized, '/')
	if idx <= 0 {
		return "/", normalized[1:]
	}

	return normalized[:idx], normalized[idx+1:]
}
