package chunking

import (
	"errors"
	"fmt"
)

// Strategy selects the boundary rule used to split text. Dispatch is an
// exhaustive switch in Splitter.Chunk; unknown values are rejected.
type Strategy string

const (
	// StrategyRecursive splits at paragraph boundaries, recursing into
	// sentence and then word boundaries for any unit still over target size.
	StrategyRecursive Strategy = "recursive"
	// StrategyParagraphs splits only at paragraph boundaries. An oversized
	// paragraph is kept as one oversized chunk, never truncated.
	StrategyParagraphs Strategy = "paragraphs"
	// StrategySentences packs consecutive sentences greedily until the next
	// sentence would exceed the target size.
	StrategySentences Strategy = "sentences"
	// StrategyMarkdown splits on markdown structure via langchaingo's
	// heading-aware splitter. Offsets are recovered best-effort.
	StrategyMarkdown Strategy = "markdown"
)

// Chunk is one produced span. StartChar/EndChar are half-open byte offsets
// into the original input text; for every strategy except markdown, Text is
// exactly input[StartChar:EndChar].
type Chunk struct {
	Index      int    `json:"chunk_index"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	TokenCount int    `json:"token_count"`
	Text       string `json:"text"`
}

// Client is the chunking entry point consumed by the ingestion pipeline.
type Client interface {
	Chunk(text string, strategy Strategy) ([]Chunk, error)
}

// Config sizes chunks in tokens. Token counts are estimated from character
// counts with a fixed ratio, not a real tokenizer; the same estimate is used
// for sizing and for the reported TokenCount.
type Config struct {
	TargetTokens  int
	OverlapTokens int
	// CharsPerToken is the estimation ratio. Zero means DefaultCharsPerToken.
	CharsPerToken float64
}

const (
	DefaultTargetTokens  = 512
	DefaultOverlapTokens = 100
	DefaultCharsPerToken = 4.0
)

// ErrOverlapTooLarge rejects configurations where the overlap would swallow
// a whole chunk.
var ErrOverlapTooLarge = errors.New("chunking: overlap must be smaller than target size")

func (c Config) validate() error {
	if c.TargetTokens <= 0 {
		return fmt.Errorf("chunking: target size must be positive, got %d", c.TargetTokens)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("chunking: overlap must not be negative, got %d", c.OverlapTokens)
	}
	if c.OverlapTokens >= c.TargetTokens {
		return ErrOverlapTooLarge
	}
	return nil
}
