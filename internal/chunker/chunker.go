// Package chunker splits extracted document text into overlapping
// fixed-size character windows suitable for embedding.
package chunker

import "strings"

// Options controls chunking behaviour.
type Options struct {
	// Size is the maximum length, in characters, of a single chunk.
	Size int
	// Overlap is how many characters of the previous window are repeated
	// at the start of the next one. Must satisfy 0 <= Overlap < Size.
	Overlap int
}

// ChunkText splits text into overlapping windows of at most opts.Size
// characters, advancing by step = max(1, Size-Overlap) each iteration.
// Each window is trimmed of leading/trailing whitespace; empty trimmed
// windows are dropped. Whitespace-only or empty input yields nil.
//
// This is a pure, deterministic function: the same input always
// produces the same chunk boundaries, which is what lets the indexer
// derive a stable chunk_id from (file_path, chunk_index) alone.
func ChunkText(text string, opts Options) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	size := opts.Size
	if size <= 0 {
		size = 1
	}
	step := size - opts.Overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			chunks = append(chunks, window)
		}
		if end >= len(runes) {
			break
		}
	}
	return chunks
}
