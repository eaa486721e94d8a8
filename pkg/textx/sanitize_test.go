// Package textx contains tests for the text utilities.
package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	if got != "hello\nworld\t!" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestNormalizeParagraphs(t *testing.T) {
	in := "a  b\r\n\r\n\r\n c\td \n\n"
	got := NormalizeParagraphs(in)
	if got != "a b\n\nc d" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestNormalizeParagraphsEmpty(t *testing.T) {
	if got := NormalizeParagraphs("\n\n \n"); got != "" {
		t.Fatalf("unexpected: %q", got)
	}
}
