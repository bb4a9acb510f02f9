// Package engine abstracts the external neural inference backends. The
// service never runs inference itself: synthesis and transcription are
// delegated to a collaborator behind these interfaces.
package engine

import (
	"context"
	"sort"
)

// SynthesisRequest carries one chunk of text to the backend. When
// ReferencePath is set the backend clones the voice from that staged
// clip instead of using a named voice.
type SynthesisRequest struct {
	Text          string
	Voice         string
	Language      string
	ReferencePath string
}

// Synthesizer produces raw 16-bit little-endian PCM for a text chunk.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
	Voices(ctx context.Context) ([]string, error)
	SampleRate() int
	Channels() int
}

// Word is a single aligned word in a transcript segment.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"`
}

// Segment is a timed span of transcribed speech.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words,omitempty"`
}

// Transcript is the full output of a transcription call.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Transcriber converts an audio file into text with timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (Transcript, error)
}

// NormalizeVoices is the single adapter between whatever shape the
// backend reports voices in and the rest of the service: output is
// sorted, deduplicated, and free of blanks.
func NormalizeVoices(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
