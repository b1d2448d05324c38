package chunker

import (
	"regexp"
	"strings"

	"ragchat/internal/domain"
)

// SentenceChunker groups sentencesPerChunk sentences per chunk, repeating the
// last overlapSentences of a chunk at the start of the next one.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	raw := c.splitter.FindAllString(document.Content, -1)
	if tail := trailingText(document.Content, raw); tail != "" {
		raw = append(raw, tail)
	}
	sentences := raw[:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	offset := 0
	for i := 0; i < len(sentences); {
		end := min(i+c.sentencesPerChunk, len(sentences))
		text := strings.Join(sentences[i:end], " ")
		start := strings.Index(document.Content[offset:], sentences[i])
		if start >= 0 {
			start += offset
			offset = start
		}
		chunks = append(chunks, newChunk(document, len(chunks), text, start))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}

// trailingText returns what follows the last terminated sentence, so text
// without a final period is not lost.
func trailingText(content string, sentences []string) string {
	if len(sentences) == 0 {
		return strings.TrimSpace(content)
	}
	last := sentences[len(sentences)-1]
	idx := strings.LastIndex(content, last)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(content[idx+len(last):])
}
