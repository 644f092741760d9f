package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exact", Truncate("exact", 5))
	assert.Equal(t, "abc"+TruncationMarker, Truncate("abcdef", 3))
	assert.Equal(t, "unbounded", Truncate("unbounded", 0))
}

func TestTruncate_CountsRunes(t *testing.T) {
	got := Truncate("ééééé", 2)
	assert.Equal(t, "éé"+TruncationMarker, got)
}

func TestTruncate_Deterministic(t *testing.T) {
	in := strings.Repeat("line\n", 1000)
	assert.Equal(t, Truncate(in, 100), Truncate(in, 100))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "abc", Prefix("  abcdef", 3))
	assert.Equal(t, "abc", Prefix("abc  ", 10))
	assert.Equal(t, "ab", Prefix("ab cd", 3))
}

func TestChunk(t *testing.T) {
	chunks := Chunk("abcdefghij", 4, 1)
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, chunks)
}

func TestChunk_DropsBlankAndClampsOverlap(t *testing.T) {
	assert.Empty(t, Chunk("     ", 2, 0))
	assert.Nil(t, Chunk("abc", 0, 0))

	// overlap >= size must still make progress
	chunks := Chunk("abcd", 2, 5)
	assert.Equal(t, []string{"ab", "bc", "cd"}, chunks)
}
