package ingest

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk size caps are character based; token counts are recorded per chunk so
// downstream consumers can budget context windows.
const (
	maxChunkChars = 1000
	minProseChunk = 50
	minTableChunk = 20

	// Used when the encoding is unavailable.
	approxCharsPerToken = 4
)

var (
	tk     *tiktoken.Tiktoken
	tkOnce sync.Once
)

// getTokenizer loads the encoding once. The encoding data is fetched on first
// use, so on hosts without access tk stays nil and counting falls back to an
// approximation.
func getTokenizer() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return
		}
		tk = enc
	})
	return tk
}

func tokenCount(text string) int {
	if text == "" {
		return 0
	}
	if enc := getTokenizer(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return approxTokenCount(text)
}

func approxTokenCount(text string) int {
	return (len(text) + approxCharsPerToken - 1) / approxCharsPerToken
}

// chunkBySentence greedily packs whole sentences into chunks of up to
// maxChunkChars. A sentence is never split, so a single run-on sentence can
// exceed the cap; that is acceptable for embedding.
func chunkBySentence(text string) []string {
	return packGreedy(splitSentences(text), " ")
}

// chunkByParagraph packs whole paragraphs, preserving the blank-line
// separators inside a chunk.
func chunkByParagraph(text string) []string {
	return packGreedy(splitParagraphs(text), "\n\n")
}

func packGreedy(parts []string, sep string) []string {
	var chunks []string
	var current strings.Builder

	for _, part := range parts {
		if current.Len() > 0 && current.Len()+len(part) > maxChunkChars {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// splitSentences cuts text after terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
