package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Splitters under test use the rune fallback so chunk boundaries are exact.
func runeSplitter(size, overlap int) *Splitter {
	return &Splitter{Size: size, Overlap: overlap}
}

func TestSplitEmpty(t *testing.T) {
	s := runeSplitter(8, 2)
	require.Nil(t, s.Split(""))
}

func TestSplitSingleChunk(t *testing.T) {
	s := runeSplitter(16, 4)
	got := s.Split("hello")
	require.Len(t, got, 1)
	require.Equal(t, "hello", got[0].Text)
	require.Equal(t, 5, got[0].Tokens)
}

func TestSplitOverlap(t *testing.T) {
	s := runeSplitter(4, 2)
	got := s.Split("abcdefgh")
	require.Equal(t, []string{"abcd", "cdef", "efgh"}, texts(got))
	for i, c := range got {
		require.Equal(t, i, c.Index)
	}
}

func TestSplitDeterministic(t *testing.T) {
	s := runeSplitter(5, 1)
	in := strings.Repeat("screener ", 20)
	require.Equal(t, s.Split(in), s.Split(in))
}

func TestSplitLosslessModuloOverlap(t *testing.T) {
	s := runeSplitter(6, 0)
	in := "the quick brown fox jumps"
	var b strings.Builder
	for _, c := range s.Split(in) {
		b.WriteString(c.Text)
	}
	require.Equal(t, in, b.String())
}

func TestSplitRejectsBadOverlap(t *testing.T) {
	// overlap >= size degrades to no overlap instead of looping forever
	s := runeSplitter(3, 5)
	got := s.Split("abcdef")
	require.Equal(t, []string{"abc", "def"}, texts(got))
}

func TestCountRuneFallback(t *testing.T) {
	s := runeSplitter(8, 0)
	require.Equal(t, 4, s.Count("héllo"[0:5])) // 4 runes in "héll"
	require.Equal(t, 0, s.Count(""))
}

func TestTruncate(t *testing.T) {
	s := runeSplitter(8, 0)
	require.Equal(t, "abcde", s.Truncate("abcde", 8))
	require.Equal(t, "abc", s.Truncate("abcdefgh", 3))
	require.Equal(t, "", s.Truncate("abc", 0))
	require.Equal(t, "", s.Truncate("", 5))
}

func texts(cs []Chunk) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Text)
	}
	return out
}
