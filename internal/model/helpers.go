package model

import "unicode/utf8"

// IntPtr returns a pointer to i
func IntPtr(i int) *int {
	return &i
}

// IntVal returns *p, or 0 when p is nil
func IntVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Truncate cuts s to at most max bytes for the varchar(255) columns used for
// error messages. The cut never splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:runeBoundary(s, max)]
	}
	return s[:runeBoundary(s, max-3)] + "..."
}

// runeBoundary backs n up to the start of the rune containing s[n]
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
