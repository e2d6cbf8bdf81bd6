package chunker

// charsPerToken is the estimation ratio used for all budgets. A real
// tokenizer is deliberately not used: the estimate is deterministic,
// dependency-free and close enough for chunk sizing.
const charsPerToken = 4

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}
