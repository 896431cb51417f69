package ingest

import (
	"regexp"
	"strings"
)

// Chunk is one passage-sized slice of a document.
type Chunk struct {
	// Index is the chunk's position within the document.
	Index int

	// Text is the chunk content.
	Text string
}

// SentenceChunker splits text into sentence-based chunks with overlap.
// Overlapping a sentence between neighboring chunks keeps a fact that
// straddles a chunk boundary retrievable from either side.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

// NewSentenceChunker creates a chunker. The overlap is clamped below
// the chunk size so the loop always advances.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Chunk splits content into chunks. Content without sentence
// terminators becomes a single chunk; empty content produces none.
func (c *SentenceChunker) Chunk(content string) []Chunk {
	sentences := c.splitter.FindAllString(content, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}

	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}

	var chunks []Chunk
	i := 0
	idx := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}

		chunks = append(chunks, Chunk{
			Index: idx,
			Text:  strings.Join(sentences[i:end], " "),
		})

		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
		idx++
	}

	return chunks
}
