// Package chunker splits text into model-safe units for synthesis.
//
// Neural TTS models degrade on long inputs, so text is cut into chunks
// bounded by both a character and a word cap, preferring sentence
// boundaries so each chunk carries complete prosody.
package chunker

import (
	"regexp"
	"strings"
)

// Options bounds the size of emitted chunks.
type Options struct {
	MaxChars int
	MaxWords int
	// MinChars is the threshold below which a trailing chunk is merged
	// into its predecessor to avoid a tiny final audio fragment.
	MinChars int
	// PreserveSentences splits on sentence boundaries first; when false
	// the whole input is treated as one unit.
	PreserveSentences bool
}

// DefaultOptions matches the limits XTTS-class models are safe with.
func DefaultOptions() Options {
	return Options{
		MaxChars:          200,
		MaxWords:          60,
		MinChars:          40,
		PreserveSentences: true,
	}
}

var sentenceBoundary = regexp.MustCompile(`([.!?])\s+`)

// SplitSentences splits text into sentence-like units on ./!/? followed
// by whitespace. The terminator stays attached to its sentence.
func SplitSentences(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	marked := sentenceBoundary.ReplaceAllString(trimmed, "$1\x00")
	parts := strings.Split(marked, "\x00")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Chunk splits text into ordered, non-empty chunks within opts limits.
// A single sentence over the word cap is split at word boundaries with
// the same greedy rule. Empty or whitespace-only input yields nil.
func Chunk(text string, opts Options) []string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil
	}

	var sentences []string
	if opts.PreserveSentences {
		sentences = SplitSentences(cleaned)
	} else {
		sentences = []string{cleaned}
	}

	var (
		chunks       []string
		current      []string
		currentChars int
		currentWords int
	)

	flush := func() {
		if len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, " ")); chunk != "" {
				chunks = append(chunks, chunk)
			}
		}
		current = current[:0]
		currentChars = 0
		currentWords = 0
	}

	for _, sentence := range sentences {
		words := strings.Fields(sentence)
		sentenceChars := len(sentence)
		sentenceWords := len(words)

		// An oversized sentence is accumulated word by word instead.
		if sentenceWords > opts.MaxWords {
			for _, word := range words {
				if currentWords+1 > opts.MaxWords || currentChars+len(word)+1 > opts.MaxChars {
					flush()
				}
				current = append(current, word)
				currentWords++
				currentChars += len(word) + 1
			}
			continue
		}

		if currentWords+sentenceWords > opts.MaxWords || currentChars+sentenceChars+1 > opts.MaxChars {
			flush()
		}
		current = append(current, sentence)
		currentWords += sentenceWords
		currentChars += sentenceChars + 1
	}
	flush()

	// Merge a tiny trailing chunk into the penultimate one.
	if len(chunks) >= 2 && len(chunks[len(chunks)-1]) < opts.MinChars {
		chunks[len(chunks)-2] = strings.TrimSpace(chunks[len(chunks)-2] + " " + chunks[len(chunks)-1])
		chunks = chunks[:len(chunks)-1]
	}

	return chunks
}
