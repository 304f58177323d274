package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconstruct(chunks []string, overlap int) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i == 0 {
			sb.WriteString(c)
			continue
		}
		sb.WriteString(string([]rune(c)[overlap:]))
	}
	return sb.String()
}

func TestSplitText_OffsetsAndReconstruction(t *testing.T) {
	text := strings.Repeat("abcdefghij", 137) // 1370 runes
	chunks, err := SplitText(text, 500, 100)
	require.NoError(t, err)

	// starts at 0, 400, 800, 1200
	require.Len(t, chunks, 4)
	runes := []rune(text)
	for i, c := range chunks {
		start := i * 400
		assert.True(t, strings.HasPrefix(string(runes[start:]), c), "chunk %d", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 500)
	}
	assert.Equal(t, 170, utf8.RuneCountInString(chunks[3]))
	assert.Equal(t, text, reconstruct(chunks, 100))
}

func TestSplitText_MultibyteRunes(t *testing.T) {
	text := strings.Repeat("简历", 300) // 600 runes
	chunks, err := SplitText(text, 500, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 200, utf8.RuneCountInString(chunks[1]))
	assert.Equal(t, text, reconstruct(chunks, 100))
}

func TestSplitText_ShortAndEmpty(t *testing.T) {
	chunks, err := SplitText("short text", 500, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"short text"}, chunks)

	chunks, err = SplitText("", 500, 100)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitText_ExactSize(t *testing.T) {
	text := strings.Repeat("x", 500)
	chunks, err := SplitText(text, 500, 100)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestSplitText_InvalidConfig(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{100, 100}, {100, 150}, {0, 0}, {100, -1}} {
		_, err := SplitText("abc", tc.size, tc.overlap)
		assert.ErrorIs(t, err, ErrInvalidChunkConfig)
	}
}
