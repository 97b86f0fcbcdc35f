package sanitize

import (
	"strings"
	"testing"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "too expensive", "too expensive"},
		{"tags", "<b>too</b> expensive", "too expensive"},
		{"encoded tag", "&lt;script&gt;alert(1)&lt;/script&gt;price", "alert(1)price"},
		{"entities", "R&amp;D budget", "R&D budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Fatalf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNoteCollapsesWhitespaceAndTruncates(t *testing.T) {
	if got := Note("  went\n\twith   a competitor "); got != "went with a competitor" {
		t.Fatalf("unexpected note %q", got)
	}
	long := strings.Repeat("é", MaxNoteLength+20)
	if got := Note(long); len([]rune(got)) != MaxNoteLength {
		t.Fatalf("expected %d runes, got %d", MaxNoteLength, len([]rune(got)))
	}
}

func TestNotePtr(t *testing.T) {
	if NotePtr(" <br> ") != nil {
		t.Fatal("expected nil for markup-only note")
	}
	if p := NotePtr("budget"); p == nil || *p != "budget" {
		t.Fatalf("unexpected note %v", p)
	}
}
