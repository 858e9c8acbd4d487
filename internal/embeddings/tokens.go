package embeddings

import "strings"

// tokensPerWord is the rough estimate of 1.3 tokens per English word.
const tokensPerWord = 1.3

// estimateTokens provides a rough token-count estimate for a text,
// using the 1 word ≈ 1.3 tokens approximation.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(float64(len(strings.Fields(text))) * tokensPerWord)
}

// truncateToTokens deterministically truncates text to approximately
// maxTokens tokens by keeping the first floor(maxTokens/1.3) words.
// Returns the (possibly unchanged) text and whether truncation
// happened.
func truncateToTokens(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || estimateTokens(text) <= maxTokens {
		return text, false
	}

	keep := int(float64(maxTokens) / tokensPerWord)
	if keep < 1 {
		keep = 1
	}

	words := strings.Fields(text)
	if keep >= len(words) {
		return text, false
	}
	return strings.Join(words[:keep], " "), true
}
