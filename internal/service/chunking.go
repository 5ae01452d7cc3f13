package service

import (
	"strings"
	"unicode"

	"github.com/cloo-solutions/groundwork/internal/domain"
)

// ChunkText splits text into overlapping windows of at most maxSize runes.
//
// Window ends prefer a paragraph break, then a sentence end, then any
// whitespace, searched in the back half of the window; a hard cut is used
// when none exists. Each window after the first starts exactly overlap runes
// before the previous one ended. Blank input yields no chunks. Interior
// windows that are only whitespace are still returned so every chunk shares
// its overlap with the one before it.
func ChunkText(text string, maxSize, overlap int) ([]string, error) {
	if overlap <= 0 || maxSize <= 0 || overlap >= maxSize {
		return nil, domain.ErrInvalidChunkParams
	}

	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil, nil
	}
	runes := []rune(clean)
	if len(runes) <= maxSize {
		return []string{clean}, nil
	}

	chunks := make([]string, 0, len(runes)/(maxSize-overlap)+1)
	start := 0
	for {
		end := start + maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			// The cut must leave room for the overlap, or the next window
			// would not advance.
			minCut := start + maxSize/2
			if minCut <= start+overlap {
				minCut = start + overlap + 1
			}
			end = findCut(runes, minCut, end)
		}

		chunks = append(chunks, string(runes[start:end]))

		if end >= len(runes) {
			break
		}
		start = end - overlap
	}

	return chunks, nil
}

// findCut returns the best window end in (minCut, end], falling back to end.
func findCut(runes []rune, minCut, end int) int {
	for i := end; i > minCut; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > minCut; i-- {
		if isSentenceEnd(runes[i-1]) && i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	for i := end; i > minCut; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。':
		return true
	}
	return false
}
