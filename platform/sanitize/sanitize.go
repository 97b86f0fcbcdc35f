// Package sanitize cleans free text received from upstream systems before it
// is stored on a deal.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNoteLength caps a stored note, in runes.
const MaxNoteLength = 1000

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes markup from s. Tags hidden behind entities are removed
// after decoding as well.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = html.UnescapeString(result)
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Note strips markup, collapses runs of whitespace and truncates the result
// to MaxNoteLength runes.
func Note(s string) string {
	result := strings.Join(strings.Fields(StripHTML(s)), " ")
	if utf8.RuneCountInString(result) <= MaxNoteLength {
		return result
	}
	runes := []rune(result)
	return strings.TrimSpace(string(runes[:MaxNoteLength]))
}

// NotePtr returns nil when s is empty after cleaning.
func NotePtr(s string) *string {
	result := Note(s)
	if result == "" {
		return nil
	}
	return &result
}
