package chunker

import (
	"strings"
)

const (
	DefaultMaxSize = 1000
	DefaultOverlap = 100
)

// Chunk splits text into overlapping, boundary-aware segments of at most
// maxSize characters (plus one when a sentence terminator is kept at the cut).
// Cut points prefer the last sentence terminator in the candidate window,
// then the last space, each accepted only past the half-window mark so a
// boundary cut never produces a degenerate tiny chunk. When neither
// qualifies the text breaks hard at maxSize. Consecutive chunks share up
// to overlap characters.
func Chunk(text string, maxSize, overlap int) []string {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start := 0
	for start < n {
		end := start + maxSize
		if end >= n {
			end = n
		} else {
			end = cutPoint(runes, start, end, maxSize)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}

		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			// Pathological overlap/size ratio; stop rather than loop forever.
			break
		}
		start = next
	}
	return chunks
}

// cutPoint picks the end of the chunk starting at offset. The candidate cut
// index itself is included in the backward search, so a sentence ending
// exactly at offset+maxSize is kept whole.
func cutPoint(runes []rune, offset, candidate, maxSize int) int {
	half := offset + maxSize/2

	if i := lastIndexFunc(runes, offset+1, candidate, isSentenceEnd); i > half {
		return i + 1 // keep the terminator
	}
	if i := lastIndexFunc(runes, offset+1, candidate, isSpace); i > half {
		return i
	}
	return candidate
}

// lastIndexFunc scans runes[lo..hi] (hi inclusive) backward for the last rune
// matching f, returning -1 when none matches.
func lastIndexFunc(runes []rune, lo, hi int, f func(rune) bool) int {
	if hi > len(runes)-1 {
		hi = len(runes) - 1
	}
	for i := hi; i >= lo; i-- {
		if f(runes[i]) {
			return i
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' '
}
