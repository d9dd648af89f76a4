// Package chunker splits raw document text into overlapping fixed-size
// windows ready for embedding. Sizes are measured in characters (runes), so
// multi-byte text is never cut in the middle of a code point.
package chunker

import (
	"fmt"
	"strings"

	"github.com/54b3r/studyrag-go/internal/rag"
)

const (
	// DefaultSize is the default number of characters per chunk.
	DefaultSize = 1000
	// DefaultOverlap is the default number of characters shared by
	// consecutive chunks.
	DefaultOverlap = 200
)

// Config holds the window parameters for Split.
type Config struct {
	// Size is the maximum number of characters per chunk.
	Size int
	// Overlap is the number of characters repeated at the start of the next chunk.
	Overlap int
}

// DefaultConfig returns the 1000/200 operating point.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate rejects parameters that would make the window advance by zero or
// fewer characters.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunker: size must be positive, got %d: %w", c.Size, rag.ErrConfiguration)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunker: overlap must not be negative, got %d: %w", c.Overlap, rag.ErrConfiguration)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("chunker: overlap %d must be smaller than size %d: %w", c.Overlap, c.Size, rag.ErrConfiguration)
	}
	return nil
}

// Split cuts text into windows of size characters that advance by
// size-overlap. The last window may be shorter. Every chunk is trimmed of
// surrounding whitespace and windows that are blank after trimming are
// dropped. Empty text yields nil.
func Split(text string, size, overlap int) ([]string, error) {
	if err := (Config{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Split applies c to text. See the package-level Split.
func (c Config) Split(text string) ([]string, error) {
	return Split(text, c.Size, c.Overlap)
}
