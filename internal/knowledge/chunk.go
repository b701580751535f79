// Package knowledge ingests a parent's marketing material and retrieves the
// snippets most similar to a lead.
package knowledge

import "strings"

// Chunking defaults.
const (
	DefaultChunkSize = 1300
	DefaultOverlap   = 220
)

// Chunk collapses whitespace in text and splits it into windows of size
// runes, each starting overlap runes before the previous one ended.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	normalized := []rune(strings.Join(strings.Fields(text), " "))
	if len(normalized) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(normalized); {
		end := min(start+size, len(normalized))
		if c := strings.TrimSpace(string(normalized[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end >= len(normalized) {
			break
		}
		start = end - overlap
	}
	return chunks
}
