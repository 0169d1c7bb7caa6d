// Package chunker splits extracted document text into overlapping
// fixed-size chunks with sentence-boundary snapping.
package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"docrag/pkg/models"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1500
	// DefaultOverlap is how many trailing characters each chunk shares with
	// the next one.
	DefaultOverlap = 200

	// minDocLen is the shortest document worth indexing at all.
	minDocLen = 100
	// minChunkLen is the viability floor: trimmed chunks at or below this
	// length are dropped.
	minChunkLen = 50
	// boundaryScan is how far back from the hard cutoff we look for a
	// sentence-terminal character.
	boundaryScan = 200
)

// Splitter chunks text with the configured size and overlap.
type Splitter struct {
	Size    int
	Overlap int
}

// New returns a Splitter, substituting defaults for non-positive values.
func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
	}
	return &Splitter{Size: size, Overlap: overlap}
}

// ChunkID derives the stable content-addressed identifier for a chunk. The
// scheme (MD5 of "sourceFile_chunkIndex") must stay fixed so re-indexing the
// same file and position is idempotent.
func ChunkID(sourceFile string, chunkIndex int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", sourceFile, chunkIndex)))
	return hex.EncodeToString(sum[:])
}

// Split cuts text into overlapping chunks. Text shorter than 100 characters
// yields no chunks. Each candidate cut at cursor+Size is snapped back (up to
// 200 characters) to the nearest sentence-terminal character so chunks read
// as standalone context; the cursor then advances by Size-Overlap so
// consecutive chunks share Overlap characters. Offsets are bytes, but cuts
// never land inside a multi-byte rune.
func (s *Splitter) Split(text, sourceFile, category string) []models.Chunk {
	if len(text) < minDocLen {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	index := 0

	for start < len(text) {
		end := start + s.Size

		// Snap to a sentence boundary unless the chunk already reaches the
		// end of the text.
		if end < len(text) {
			limit := boundaryScan
			if end-start < limit {
				limit = end - start
			}
			for i := 0; i < limit; i++ {
				if isSentenceEnd(text[end-i-1]) {
					end -= i
					break
				}
			}
			// Never cut inside a multi-byte rune.
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				_, n := utf8.DecodeRuneInString(text[start:])
				end = start + n
			}
		}

		sliceEnd := end
		if sliceEnd > len(text) {
			sliceEnd = len(text)
		}
		piece := strings.TrimSpace(text[start:sliceEnd])

		if len(piece) > minChunkLen {
			chunks = append(chunks, models.Chunk{
				ID:         ChunkID(sourceFile, index),
				Text:       piece,
				SourceFile: sourceFile,
				Category:   category,
				ChunkIndex: index,
			})
			index++
		}

		next := end - s.Overlap
		for next > start && next < len(text) && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			// Degenerate size/overlap settings must still terminate.
			next = end
		}
		start = next
	}

	return chunks
}

func isSentenceEnd(b byte) bool {
	switch b {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
