// Package parsers reads pattern lists from text files for bulk import.
package parsers

import (
	"strings"
	"unicode"
)

// stripLineBOM removes a UTF-8 byte-order mark from the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether a raw line is blank or a whole-line comment.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// isValidPattern rejects tokens that cannot be a useful substring pattern:
// anything containing whitespace or control characters.
func isValidPattern(p string) bool {
	if p == "" {
		return false
	}
	for _, r := range p {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// isHostname is a loose check for hosts-file names: at least two non-empty
// labels and no wildcard.
func isHostname(name string) bool {
	if len(name) > 253 || strings.ContainsRune(name, '*') {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" || len(l) > 63 {
			return false
		}
	}
	return true
}
