package chunk

import (
	"strings"
	"unicode/utf8"
)

// SplitParagraphIntoChunks splits a paragraph into chunks of at most
// maxChunkSize runes, ensuring that words are not split. Sizes are
// measured in runes rather than bytes so that Korean text, at three
// bytes per syllable in UTF-8, packs to the same lengths as ASCII.
func SplitParagraphIntoChunks(paragraph string, maxChunkSize int) []string {
	if paragraph == "" {
		return []string{}
	}
	if utf8.RuneCountInString(paragraph) <= maxChunkSize {
		return []string{paragraph}
	}

	var chunks []string
	var currentChunk strings.Builder
	currentLen := 0

	for _, word := range strings.Fields(paragraph) {
		wordLen := utf8.RuneCountInString(word)

		// If adding the next word would exceed maxChunkSize (counting
		// the joining space), flush the current chunk and start fresh.
		if currentLen > 0 && currentLen+wordLen+1 > maxChunkSize {
			chunks = append(chunks, currentChunk.String())
			currentChunk.Reset()
			currentLen = 0
		} else if currentLen == 0 && wordLen > maxChunkSize {
			// Word itself exceeds maxChunkSize, keep it whole.
			chunks = append(chunks, word)
			continue
		}

		if currentLen > 0 {
			currentChunk.WriteString(" ")
			currentLen++
		}
		currentChunk.WriteString(word)
		currentLen += wordLen
	}

	if currentLen > 0 {
		chunks = append(chunks, currentChunk.String())
	}

	return chunks
}
