package reconcile

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "Hello, world!", "hello world"},
		{"collapses whitespace", "a   b\t c", "a b c"},
		{"trims", "  hi  ", "hi"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeText(tt.in); got != tt.want {
				t.Errorf("normalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextSimilarity(t *testing.T) {
	if sim := textSimilarity("Hello, World!", "hello world"); sim != 1.0 {
		t.Errorf("punctuation and case should not matter, got %v", sim)
	}
	if sim := textSimilarity("abc", "abc"); sim != 1.0 {
		t.Errorf("identical = %v, want 1.0", sim)
	}
	if sim := textSimilarity("completely different", "nothing alike here"); sim > 0.6 {
		t.Errorf("unrelated strings scored %v", sim)
	}
	if sim := textSimilarity("", "anything"); sim != 0.0 {
		t.Errorf("empty side = %v, want 0.0", sim)
	}
}
