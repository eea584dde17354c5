package chunking

import (
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"
)

// Splitter implements Client. Sizing is done in characters derived from the
// configured token target; all offsets are byte offsets into the input.
type Splitter struct {
	targetChars   int
	overlapChars  int
	charsPerToken float64
}

func NewSplitter(cfg Config) (*Splitter, error) {
	if cfg.CharsPerToken == 0 {
		cfg.CharsPerToken = DefaultCharsPerToken
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Splitter{
		targetChars:   int(float64(cfg.TargetTokens) * cfg.CharsPerToken),
		overlapChars:  int(float64(cfg.OverlapTokens) * cfg.CharsPerToken),
		charsPerToken: cfg.CharsPerToken,
	}, nil
}

// Chunk splits text with the given strategy. Empty or whitespace-only text
// yields zero chunks. Chunk indexes are dense from 0 in generation order.
func (s *Splitter) Chunk(text string, strategy Strategy) ([]Chunk, error) {
	if text == "" {
		return nil, nil
	}
	whole := span{0, len(text)}.trim(text)
	if whole.empty() {
		return nil, nil
	}

	switch strategy {
	case StrategyRecursive:
		return s.pack(text, s.cascade(text, whole, levelParagraph)), nil
	case StrategyParagraphs:
		return s.pack(text, splitLevel(text, whole, levelParagraph, s.targetChars)), nil
	case StrategySentences:
		return s.pack(text, splitLevel(text, whole, levelSentence, s.targetChars)), nil
	case StrategyMarkdown:
		return s.chunkMarkdown(text)
	default:
		return nil, fmt.Errorf("chunking: unknown strategy %q", strategy)
	}
}

func (s *Splitter) estimateTokens(text string) int {
	return int(float64(len(text)) / s.charsPerToken)
}

// span is a half-open [start,end) byte range into the input text.
type span struct {
	start, end int
}

func (sp span) len() int    { return sp.end - sp.start }
func (sp span) empty() bool { return sp.end <= sp.start }

// trim shrinks the span past leading and trailing whitespace.
func (sp span) trim(text string) span {
	for sp.start < sp.end {
		r, size := utf8.DecodeRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.start += size
	}
	for sp.end > sp.start {
		r, size := utf8.DecodeLastRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.end -= size
	}
	return sp
}

const (
	levelParagraph = iota
	levelSentence
	levelWord
	levelChar
)

var (
	paragraphSep = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd  = regexp.MustCompile(`[.!?]+`)
	wordRun      = regexp.MustCompile(`\S+`)
)

// cascade splits sp into units no larger than targetChars, descending the
// fixed boundary hierarchy paragraph -> sentence -> word -> char. A level
// that finds no boundary returns the span whole, so the next level is always
// attempted.
func (s *Splitter) cascade(text string, sp span, level int) []span {
	pieces := splitLevel(text, sp, level, s.targetChars)
	var units []span
	for _, p := range pieces {
		if p.len() <= s.targetChars || level == levelChar {
			units = append(units, p)
		} else {
			units = append(units, s.cascade(text, p, level+1)...)
		}
	}
	return units
}

// splitLevel cuts sp at one boundary kind and returns the trimmed non-empty
// sub-spans in order. The char level force-splits on rune boundaries so every
// returned piece fits targetChars.
func splitLevel(text string, sp span, level int, targetChars int) []span {
	sub := text[sp.start:sp.end]
	var pieces []span
	add := func(a, b int) {
		p := span{sp.start + a, sp.start + b}.trim(text)
		if !p.empty() {
			pieces = append(pieces, p)
		}
	}

	switch level {
	case levelParagraph:
		prev := 0
		for _, loc := range paragraphSep.FindAllStringIndex(sub, -1) {
			add(prev, loc[0])
			prev = loc[1]
		}
		add(prev, len(sub))
	case levelSentence:
		prev := 0
		for _, loc := range sentenceEnd.FindAllStringIndex(sub, -1) {
			add(prev, loc[1])
			prev = loc[1]
		}
		add(prev, len(sub))
	case levelWord:
		for _, loc := range wordRun.FindAllStringIndex(sub, -1) {
			add(loc[0], loc[1])
		}
	case levelChar:
		for a := 0; a < len(sub); {
			b := a + targetChars
			if b >= len(sub) {
				b = len(sub)
			} else {
				for b > a && !utf8.RuneStart(sub[b]) {
					b--
				}
			}
			add(a, b)
			a = b
		}
	}
	return pieces
}

// pack greedily groups consecutive units into chunks of at most targetChars,
// then restarts each subsequent chunk overlapChars before the previous
// chunk's end so boundary context is repeated. The first chunk starts at
// offset 0 so every character up to the last unit is covered.
func (s *Splitter) pack(text string, units []span) []Chunk {
	if len(units) == 0 {
		return nil
	}
	var chunks []Chunk
	start := 0
	end := units[0].end
	for _, u := range units[1:] {
		if u.end-start > s.targetChars && end > start {
			chunks = append(chunks, s.newChunk(text, len(chunks), start, end))
			next := end - s.overlapChars
			if next <= start {
				next = start + 1
			}
			for next < end && !utf8.RuneStart(text[next]) {
				next++
			}
			start = next
		}
		end = u.end
	}
	return append(chunks, s.newChunk(text, len(chunks), start, end))
}

func (s *Splitter) newChunk(text string, index, start, end int) Chunk {
	return Chunk{
		Index:      index,
		StartChar:  start,
		EndChar:    end,
		TokenCount: s.estimateTokens(text[start:end]),
		Text:       text[start:end],
	}
}
