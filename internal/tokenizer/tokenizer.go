// Package tokenizer splits passages into lowercased ASCII alphanumeric
// tokens, dropping non-ASCII words and a configurable stop-word set.
package tokenizer

import (
	"strings"
	"unicode"
)

// DefaultStopWords is the default English stop-word list.
var DefaultStopWords = NewStopWords(
	"the", "is", "at", "which", "on", "and", "a", "an", "of", "or", "in",
	"to", "with", "was", "as", "by", "for", "from", "that", "this", "it",
	"its", "be", "are", "but", "not", "have", "has", "had", "were", "been",
	"their", "they", "them",
)

// StopWords is a set of lowercase words to exclude from tokenization output.
type StopWords map[string]struct{}

// NewStopWords builds a StopWords set from the given words.
func NewStopWords(words ...string) StopWords {
	s := make(StopWords, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Tokenizer produces lowercased tokens from passages, filtering non-ASCII
// words and its configured stop-word set.
type Tokenizer struct {
	stopWords StopWords
}

// New creates a Tokenizer with the given stop-word set. A nil set disables
// stop-word filtering entirely.
func New(stopWords StopWords) *Tokenizer {
	return &Tokenizer{stopWords: stopWords}
}

// Tokenize splits text into words on non-letter/non-digit rune boundaries,
// lowercases each word, and emits it only if every rune in the word is
// ASCII (<=127) and the lowercased word is not a stop word.
func (t *Tokenizer) Tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/5)
	var b strings.Builder
	ascii := true

	flush := func() {
		if b.Len() == 0 {
			return
		}
		word := b.String()
		b.Reset()
		if ascii && !t.isStopWord(word) {
			tokens = append(tokens, word)
		}
		ascii = true
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if r > 127 {
				ascii = false
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func (t *Tokenizer) isStopWord(word string) bool {
	if t.stopWords == nil {
		return false
	}
	_, ok := t.stopWords[word]
	return ok
}

// Tokenize tokenizes text using the default stop-word set. It is a
// convenience wrapper for callers that do not need a custom stop-word list.
func Tokenize(text string) []string {
	return defaultTokenizer.Tokenize(text)
}

var defaultTokenizer = New(DefaultStopWords)
