package chunking

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// chunkMarkdown delegates to langchaingo's heading-aware markdown splitter.
// The splitter may rewrite heading prefixes, so offsets are recovered by
// scanning the input for each piece; a piece that cannot be located keeps
// offsets of -1. Callers needing exact reconstruction should use one of the
// span-based strategies instead.
func (s *Splitter) chunkMarkdown(text string) ([]Chunk, error) {
	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(s.targetChars),
		textsplitter.WithChunkOverlap(s.overlapChars),
		textsplitter.WithHeadingHierarchy(true),
	)

	pieces, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("chunking: markdown split: %w", err)
	}

	var chunks []Chunk
	cursor := 0
	for _, piece := range pieces {
		trimmed := strings.TrimSpace(piece)
		if trimmed == "" {
			continue
		}
		start, end := -1, -1
		// back up by the overlap so repeated boundary context still matches
		from := cursor - s.overlapChars
		if from < 0 {
			from = 0
		}
		if idx := strings.Index(text[from:], trimmed); idx >= 0 {
			start = from + idx
			end = start + len(trimmed)
			if end > cursor {
				cursor = end
			}
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			StartChar:  start,
			EndChar:    end,
			TokenCount: s.estimateTokens(trimmed),
			Text:       trimmed,
		})
	}
	return chunks, nil
}
