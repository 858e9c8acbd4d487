package embeddings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("hello"))
	// 10 words ≈ 13 tokens
	assert.Equal(t, 13, estimateTokens(strings.TrimSpace(strings.Repeat("word ", 10))))
}

func TestTruncateToTokens(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		got, truncated := truncateToTokens("a short sentence", 100)
		assert.False(t, truncated)
		assert.Equal(t, "a short sentence", got)
	})

	t.Run("long text truncated deterministically", func(t *testing.T) {
		long := strings.Repeat("token ", 1000)
		first, _ := truncateToTokens(long, 130)
		second, truncated := truncateToTokens(long, 130)
		assert.True(t, truncated)
		assert.Equal(t, first, second)
		assert.Len(t, strings.Fields(first), 100)
	})

	t.Run("zero budget disables truncation", func(t *testing.T) {
		long := strings.Repeat("token ", 1000)
		got, truncated := truncateToTokens(long, 0)
		assert.False(t, truncated)
		assert.Equal(t, long, got)
	})
}
