// Package chunker splits entity text into overlapping fixed-size spans
// for embedding.
package chunker

import (
	"errors"
	"fmt"
)

// DefaultTargetSize is the default number of runes per chunk.
const DefaultTargetSize = 800

// DefaultOverlap is the default number of runes shared between
// consecutive chunks.
const DefaultOverlap = 150

// DefaultMinThreshold is the text length below which no chunking is
// performed and the whole text becomes a single chunk.
const DefaultMinThreshold = 100

// ErrInvalidChunkConfig indicates an overlap/size combination that can
// never terminate.
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// Chunk is a contiguous span of an entity's text. Offsets are rune
// offsets into the original text, so re-chunking identical text always
// yields identical spans.
type Chunk struct {
	// Index is the zero-based sequence index of the chunk.
	Index int

	// Start is the rune offset of the first rune of the span.
	Start int

	// End is the rune offset one past the last rune of the span.
	End int

	// Text is the span content.
	Text string
}

// Chunker produces deterministic overlapping chunks.
type Chunker struct {
	targetSize   int
	overlap      int
	minThreshold int
}

// Config holds chunker parameters.
type Config struct {
	// TargetSize is the chunk length in runes.
	TargetSize int `koanf:"target_size"`

	// Overlap is the number of runes shared between consecutive chunks.
	// Must be strictly less than TargetSize.
	Overlap int `koanf:"overlap"`

	// MinThreshold is the text length below which the whole text is
	// returned as a single chunk.
	MinThreshold int `koanf:"min_threshold"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TargetSize == 0 {
		c.TargetSize = DefaultTargetSize
	}
	if c.Overlap == 0 {
		c.Overlap = DefaultOverlap
	}
	if c.MinThreshold == 0 {
		c.MinThreshold = DefaultMinThreshold
	}
}

// Validate validates the configuration. Overlap >= TargetSize would
// make the window never advance, so it is rejected up front.
func (c Config) Validate() error {
	if c.TargetSize <= 0 {
		return fmt.Errorf("%w: target size must be positive, got %d", ErrInvalidChunkConfig, c.TargetSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidChunkConfig, c.Overlap)
	}
	if c.Overlap >= c.TargetSize {
		return fmt.Errorf("%w: overlap (%d) must be less than target size (%d)", ErrInvalidChunkConfig, c.Overlap, c.TargetSize)
	}
	return nil
}

// New creates a Chunker from config.
func New(cfg Config) (*Chunker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		targetSize:   cfg.TargetSize,
		overlap:      cfg.Overlap,
		minThreshold: cfg.MinThreshold,
	}, nil
}

// Chunk splits text into overlapping spans. It is a pure function of
// its inputs: no side effects, same text always yields the same spans.
//
// Empty text yields no chunks. Text shorter than the minimum threshold
// yields a single chunk spanning the whole text. Otherwise spans of
// TargetSize runes are produced, each sharing Overlap runes with its
// predecessor; the last span may be shorter.
func (c *Chunker) Chunk(text string) []Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)

	if total < c.minThreshold || total <= c.targetSize {
		return []Chunk{{Index: 0, Start: 0, End: total, Text: text}}
	}

	step := c.targetSize - c.overlap
	estimated := total/step + 1
	chunks := make([]Chunk, 0, estimated)

	for start := 0; start < total; start += step {
		end := start + c.targetSize
		if end > total {
			end = total
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})

		if end == total {
			break
		}
	}

	return chunks
}
