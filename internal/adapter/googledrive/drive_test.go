package googledrive

import "testing"

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain string unchanged", "report", "report"},
		{"escapes apostrophe", "year's budget", `year\'s budget`},
		{"escapes backslash", `a\b`, `a\\b`},
		{"backslash before apostrophe", `a\'b`, `a\\\'b`},
		{"handles empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escapeQuery(tt.in)
			if got != tt.want {
				t.Errorf("escapeQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
