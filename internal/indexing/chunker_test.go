package indexing

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestChunker_ShortTextIsOneChunk(t *testing.T) {
	c := NewChunker(100, 10)
	assert.Equal(t, []string{"hello world"}, c.Split("  hello world \n"))
	assert.Empty(t, c.Split("   "))
}

func TestChunker_BreaksOnWhitespaceWithOverlap(t *testing.T) {
	c := NewChunker(12, 4)
	chunks := c.Split("alpha beta gamma delta epsilon")

	assert.Equal(t, []string{"alpha beta", "eta gamma", "mma delta", "lta epsilon"}, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 12)
	}
}

func TestChunker_HardSplitWithoutWhitespace(t *testing.T) {
	c := NewChunker(4, 0)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, c.Split("abcdefghij"))
}

func TestChunker_CountsRunes(t *testing.T) {
	c := NewChunker(3, 0)
	chunks := c.Split(strings.Repeat("é", 7))
	assert.Equal(t, []string{"ééé", "ééé", "é"}, chunks)
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, 5000)
	assert.Equal(t, 1000, c.Size)
	assert.Equal(t, 0, c.Overlap)
}
