// Package chunk splits document text into overlapping token windows for
// embedding and context assembly.
package chunk

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is one window of the source text with its token span.
type Chunk struct {
	Index int
	Text  string
	// Tokens is the token count of Text under the active encoding.
	Tokens int
}

// Splitter produces deterministic overlapping chunks measured in tokens.
// Size and Overlap are token counts; Overlap must be smaller than Size.
// When no encoding is available, runes stand in for tokens.
type Splitter struct {
	Size    int
	Overlap int

	enc *tiktoken.Tiktoken
}

// NewSplitter builds a Splitter backed by the cl100k_base encoding. When the
// encoding cannot be loaded the splitter falls back to rune counting.
func NewSplitter(size, overlap int) *Splitter {
	s := &Splitter{Size: size, Overlap: overlap}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("token encoding unavailable; falling back to rune counting", slog.Any("error", err))
		return s
	}
	s.enc = enc
	return s
}

// Count returns the token count of text under the active encoding.
func (s *Splitter) Count(text string) int {
	if s.enc != nil {
		return len(s.enc.Encode(text, nil, nil))
	}
	return len([]rune(text))
}

// Truncate returns the longest prefix of text that fits within budget
// tokens. The full text comes back unchanged when it already fits.
func (s *Splitter) Truncate(text string, budget int) string {
	if text == "" || budget <= 0 {
		return ""
	}
	if s.enc != nil {
		tokens := s.enc.Encode(text, nil, nil)
		if len(tokens) <= budget {
			return text
		}
		return s.enc.Decode(tokens[:budget])
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget])
}

// Split cuts text into windows of at most Size tokens, each consecutive pair
// sharing Overlap tokens. The same input always yields the same chunks.
func (s *Splitter) Split(text string) []Chunk {
	if text == "" {
		return nil
	}
	size := s.Size
	if size <= 0 {
		size = 512
	}
	overlap := s.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	if s.enc != nil {
		return s.splitTokens(text, size, overlap)
	}
	return s.splitRunes(text, size, overlap)
}

func (s *Splitter) splitTokens(text string, size, overlap int) []Chunk {
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}
	step := size - overlap
	var out []Chunk
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		out = append(out, Chunk{
			Index:  len(out),
			Text:   s.enc.Decode(window),
			Tokens: len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return out
}

func (s *Splitter) splitRunes(text string, size, overlap int) []Chunk {
	runes := []rune(text)
	step := size - overlap
	var out []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		window := runes[start:end]
		out = append(out, Chunk{
			Index:  len(out),
			Text:   string(window),
			Tokens: len(window),
		})
		if end == len(runes) {
			break
		}
	}
	return out
}
