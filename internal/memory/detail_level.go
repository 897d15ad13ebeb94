// detail_level.go holds the verbosity levels shared by read-heavy tools and
// the token estimate used to keep their responses bounded.
package memory

import "fmt"

// Detail levels for search and listing responses.
const (
	DetailSummary  = "summary"  // ids, titles, scores
	DetailStandard = "standard" // truncated snippets
	DetailFull     = "full"     // complete indexed text
)

// DetailLevelValues returns the enum values for tool definitions.
func DetailLevelValues() []string {
	return []string{DetailSummary, DetailStandard, DetailFull}
}

// ParseDetailLevel normalizes a detail level, defaulting to standard.
func ParseDetailLevel(s string) string {
	switch s {
	case DetailSummary, DetailFull:
		return s
	default:
		return DetailStandard
	}
}

// SnippetFor cuts text according to the detail level.
func SnippetFor(level, text string) string {
	switch level {
	case DetailSummary:
		return ""
	case DetailFull:
		return text
	default:
		return Truncate(text, 240)
	}
}

// ─── Token Estimation ───────────────────────────────────────────────────────

// EstimateTokens approximates the token count of text with the chars/4
// heuristic. It returns 0 for empty text and at least 1 otherwise.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	if n < 4 {
		return 1
	}
	return n / 4
}

// TokenFooter is appended to read-heavy responses.
func TokenFooter(estimatedTokens int) string {
	return fmt.Sprintf("\n📏 ~%s tokens", formatNumber(estimatedTokens))
}

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}
