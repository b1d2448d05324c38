package chunker

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"ragchat/internal/domain"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveChunker splits text on the coarsest separator present, merges the
// pieces greedily up to size runes and recurses into pieces that are still
// too large. Consecutive chunks share up to overlap runes of boundary text.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: DefaultSeparators}, nil
}

func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	texts := c.split(document.Content, c.separators)

	// offset and counted are byte positions; runes is the rune count of
	// Content[:counted], so start_index is reported in characters.
	chunks := make([]domain.Chunk, 0, len(texts))
	offset, counted, runes := 0, 0, 0
	for _, text := range texts {
		start := strings.Index(document.Content[offset:], text)
		if start >= 0 {
			start += offset
			runes += utf8.RuneCountInString(document.Content[counted:start])
			counted = start
			_, width := utf8.DecodeRuneInString(document.Content[start:])
			offset = start + width
			start = runes
		}
		chunks = append(chunks, newChunk(document, len(chunks), text, start))
	}
	return chunks, nil
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			sep = ""
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitOn(text, sep) {
		if runeLen(piece) <= c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(good, sep)...)
	}
	return out
}

// merge joins pieces with sep into chunks of at most size runes, keeping a
// tail of at most overlap runes as the head of the next chunk.
func (c *RecursiveChunker) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	joinedLen := func(cur []string, total, next int) int {
		if len(cur) > 0 {
			return total + next + sepLen
		}
		return total + next
	}

	var out, cur []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if joinedLen(cur, total, n) > c.size && len(cur) > 0 {
			if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
				out = append(out, doc)
			}
			for total > c.overlap || (joinedLen(cur, total, n) > c.size && total > 0) {
				total -= runeLen(cur[0])
				if len(cur) > 1 {
					total -= sepLen
				}
				cur = cur[1:]
			}
		}
		total = joinedLen(cur, total, n)
		cur = append(cur, p)
	}
	if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func splitOn(text, sep string) []string {
	var parts []string
	if sep == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, sep)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func newChunk(document domain.Document, idx int, text string, start int) domain.Chunk {
	meta := make(map[string]any, len(document.Metadata)+1)
	for k, v := range document.Metadata {
		meta[k] = v
	}
	if start >= 0 {
		meta["start_index"] = start
	}
	return domain.Chunk{
		DocumentID: document.ID,
		ChunkID:    document.ID + ":" + strconv.Itoa(idx),
		Source:     document.Path,
		Text:       text,
		Index:      idx,
		Metadata:   meta,
	}
}
