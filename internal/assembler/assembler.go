// Package assembler turns ranked chunks into the bounded context block that
// is embedded in the completion prompt.
package assembler

import (
	"strings"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// DefaultMaxChars bounds the assembled context text.
const DefaultMaxChars = 6000

// Separator is placed between consecutive chunk texts.
const Separator = "\n\n"

// Assemble concatenates the text of scored in order, separated by a blank
// line, and truncates the result to at most maxChars characters (runes).
// A non-positive maxChars means DefaultMaxChars. Sources lists the source
// label of every ranked chunk, including chunks cut off by truncation.
func Assemble(scored []rag.ScoredChunk, maxChars int) rag.Context {
	texts := make([]string, len(scored))
	sources := make([]string, len(scored))
	for i, sc := range scored {
		texts[i] = sc.Chunk.Text
		sources[i] = sc.Chunk.SourceLabel
	}

	return rag.Context{
		Text:    truncate(strings.Join(texts, Separator), maxChars),
		Sources: sources,
	}
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if len(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
