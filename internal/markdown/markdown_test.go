package markdown

import (
	"strings"
	"testing"
)

func TestToHTML(t *testing.T) {
	got := string(ToHTML([]byte("# Chapter 1\n\n**Mira** walked in.\n\nShe said \"hello\" -- twice.\n")))

	for _, want := range []string{"<h1", "Chapter 1", "<p><strong>Mira</strong> walked in.</p>"} {
		if !strings.Contains(got, want) {
			t.Errorf("ToHTML() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "&ldquo;") || strings.Contains(got, "&ndash;") {
		t.Errorf("ToHTML() rewrote punctuation: %q", got)
	}
}

func TestToHTML_SkipsRawHTML(t *testing.T) {
	got := string(ToHTML([]byte("Before.\n\n<script>alert(1)</script>\n\nAfter.\n")))
	if strings.Contains(got, "<script>") {
		t.Errorf("ToHTML() kept raw HTML: %q", got)
	}
}
