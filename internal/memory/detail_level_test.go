package memory

import (
	"strings"
	"testing"
)

func TestParseDetailLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"summary", DetailSummary},
		{"standard", DetailStandard},
		{"full", DetailFull},
		{"", DetailStandard},
		{"invalid", DetailStandard},
		{"SUMMARY", DetailStandard}, // case-sensitive
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseDetailLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseDetailLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDetailLevelValues(t *testing.T) {
	vals := DetailLevelValues()
	if len(vals) != 3 {
		t.Fatalf("expected 3 values, got %d", len(vals))
	}
	for _, v := range vals {
		if ParseDetailLevel(v) != v {
			t.Errorf("value %q does not parse to itself", v)
		}
	}
}

func TestSnippetFor(t *testing.T) {
	long := strings.Repeat("x", 500)

	if got := SnippetFor(DetailSummary, long); got != "" {
		t.Errorf("summary snippet = %q, want empty", got)
	}
	if got := SnippetFor(DetailFull, long); got != long {
		t.Errorf("full snippet was cut to %d chars", len(got))
	}
	if got := SnippetFor(DetailStandard, long); len(got) >= len(long) {
		t.Errorf("standard snippet not truncated: %d chars", len(got))
	}
	if got := SnippetFor(DetailStandard, "short"); got != "short" {
		t.Errorf("standard snippet of short text = %q", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"ab", 1},
		{"abcd", 1},
		{strings.Repeat("a", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(len %d) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestTokenFooter(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "~0 tokens"},
		{999, "~999 tokens"},
		{1000, "~1,000 tokens"},
		{1234567, "~1,234,567 tokens"},
	}
	for _, tt := range tests {
		got := TokenFooter(tt.n)
		if !strings.HasSuffix(got, tt.want) {
			t.Errorf("TokenFooter(%d) = %q, want suffix %q", tt.n, got, tt.want)
		}
	}
}
