// Package namekey derives the normalized filename keys used to join images
// to their caption text files.
//
// Derive is the join key: base name without its last extension, lowercased.
// DuplicateKey is a looser heuristic used only for name-based duplicate
// detection; it also strips copy markers such as " (1)" and "_copy". Both are
// filename heuristics: unrelated files that share a base name share a key.
package namekey

import (
	"path"
	"regexp"
	"strings"
)

// copySuffix matches duplicate-indicator suffixes left by browsers, file
// managers and OS copy operations: "(1)", " (12)", "_copy", " copy", "-copy".
// Anchored at the end and applied repeatedly, so "a (1) copy" reduces to "a".
var copySuffix = regexp.MustCompile(`(?i)(\s*\(\d+\)|_copy|[\s_-]*copy)$`)

// Derive returns the matching key for filename: directory components are
// dropped, the last dot-extension is removed and the remainder is lowercased.
// A leading dot (".hidden") is not treated as an extension separator.
func Derive(filename string) string {
	return strings.ToLower(Stem(filename))
}

// Stem returns the base name of filename without its last extension,
// preserving case.
func Stem(filename string) string {
	base := baseName(filename)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// Ext returns the last dot-extension of filename including the dot, or ""
// when there is none. Case is preserved.
func Ext(filename string) string {
	base := baseName(filename)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[i:]
	}
	return ""
}

// DuplicateKey returns Derive(filename) with copy-suffix markers stripped.
// Whitespace left at the end after stripping is trimmed.
func DuplicateKey(filename string) string {
	key := Derive(filename)
	for {
		stripped := strings.TrimRight(copySuffix.ReplaceAllString(key, ""), " ")
		if stripped == key || stripped == "" {
			break
		}
		key = stripped
	}
	return key
}

// baseName strips both slash and backslash directory components, since
// browser uploads from Windows may carry either.
func baseName(filename string) string {
	filename = strings.ReplaceAll(filename, `\`, "/")
	if filename == "" {
		return ""
	}
	b := path.Base(filename)
	if b == "." || b == "/" {
		return ""
	}
	return b
}
