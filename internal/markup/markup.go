// Package markup handles the legacy "&"-prefixed color/format codes authors use in
// observation text and chat output.
package markup

import (
	"strings"
	"unicode/utf8"
)

// Section is the resolved code prefix understood by game clients.
const Section = '§'

// Alt is the author-facing code prefix.
const Alt = '&'

func isCode(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		return true
	case r >= 'k' && r <= 'o', r >= 'K' && r <= 'O':
		return true
	case r == 'r' || r == 'R':
		return true
	}
	return false
}

func lower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// Translate resolves every "&x" with a known code x into "§x".
// Unknown sequences (e.g. "&z", "& ") are left as typed.
func Translate(s string) string {
	if !strings.ContainsRune(s, Alt) {
		return s
	}
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); i++ {
		if rs[i] == Alt && i+1 < len(rs) && isCode(rs[i+1]) {
			b.WriteRune(Section)
			b.WriteRune(lower(rs[i+1]))
			i++
			continue
		}
		b.WriteRune(rs[i])
	}
	return b.String()
}

// Strip removes resolved codes, leaving only visible text.
func Strip(s string) string {
	if !strings.ContainsRune(s, Section) {
		return s
	}
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); i++ {
		if rs[i] == Section && i+1 < len(rs) && isCode(rs[i+1]) {
			i++
			continue
		}
		b.WriteRune(rs[i])
	}
	return b.String()
}

// Visible returns the number of visible runes in a resolved string.
func Visible(s string) int {
	return utf8.RuneCountInString(Strip(s))
}

// Substring keeps the first n visible runes of a resolved string, carrying along every
// code that precedes them.
func Substring(s string, n int) string {
	if n <= 0 {
		return ""
	}
	rs := []rune(s)
	var b strings.Builder
	seen := 0
	for i := 0; i < len(rs) && seen < n; i++ {
		if rs[i] == Section && i+1 < len(rs) && isCode(rs[i+1]) {
			b.WriteRune(rs[i])
			b.WriteRune(rs[i+1])
			i++
			continue
		}
		b.WriteRune(rs[i])
		seen++
	}
	return b.String()
}

// Color is shorthand for Translate over several joined parts.
func Color(parts ...string) string {
	return Translate(strings.Join(parts, ""))
}
