package chunker

import (
	"strings"

	"github.com/dshills/memograph/pkg/types"
)

// Chunk splits long-form text into spans suitable for embedding. Headers
// start new chunks, list bullets each form their own chunk, and prose is
// merged up to the character budget. Oversized spans are split with a fixed
// overlap to preserve boundary context.
func Chunk(text string) []types.Chunk {
	if strings.TrimSpace(text) == "" {
		return []types.Chunk{}
	}

	spans := splitSpans(text)

	chunks := make([]types.Chunk, 0, len(spans))
	for _, span := range spans {
		for _, piece := range splitOversized(span) {
			chunk := types.Chunk{Index: len(chunks), Content: piece}
			chunk.ComputeContentHash()
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// splitSpans walks the text line by line, emitting one span per bullet and
// merging prose runs up to the budget. A header always closes the current
// span.
func splitSpans(text string) []string {
	var spans []string
	var prose strings.Builder

	flush := func() {
		if s := strings.TrimSpace(prose.String()); s != "" {
			spans = append(spans, s)
		}
		prose.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case isHeader(trimmed):
			flush()
			prose.WriteString(trimmed)
			prose.WriteString("\n")
		case isBullet(trimmed):
			// Bullets stay atomic for fact-level retrieval
			flush()
			spans = append(spans, trimmed)
		case trimmed == "":
			prose.WriteString("\n")
		default:
			if prose.Len()+len(line)+1 > types.MaxChunkChars {
				flush()
			}
			prose.WriteString(line)
			prose.WriteString("\n")
		}
	}
	flush()

	return spans
}

// splitOversized breaks a span that exceeds the budget into pieces with a
// fixed character overlap. Break points prefer whitespace near the boundary.
func splitOversized(span string) []string {
	if len(span) <= types.MaxChunkChars {
		return []string{span}
	}

	var pieces []string
	start := 0
	for start < len(span) {
		end := start + types.MaxChunkChars
		if end >= len(span) {
			pieces = append(pieces, strings.TrimSpace(span[start:]))
			break
		}

		// Back up to the nearest whitespace so words stay whole
		cut := end
		for cut > start && !isSpace(span[cut]) {
			cut--
		}
		if cut == start {
			cut = end
		}

		pieces = append(pieces, strings.TrimSpace(span[start:cut]))

		next := cut - types.ChunkOverlapChars
		if next <= start {
			next = cut
		}
		start = next
	}

	out := pieces[:0]
	for _, p := range pieces {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isHeader(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	rest := strings.TrimLeft(line, "#")
	return strings.HasPrefix(rest, " ")
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ")
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n'
}
