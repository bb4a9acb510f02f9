package protocol

import "time"

// SynthesisCompleted announces a finished synthesis request on the bus.
type SynthesisCompleted struct {
	RequestID   string    `json:"request_id"`
	Voice       string    `json:"voice"`
	Language    string    `json:"language"`
	ChunkCount  int       `json:"chunk_count"`
	DurationSec float64   `json:"duration_sec"`
	SampleRate  int       `json:"sample_rate"`
	Cloned      bool      `json:"cloned"`
	Timestamp   time.Time `json:"timestamp"`
}

// TranscriptFinal broadcasts a completed transcription.
type TranscriptFinal struct {
	RequestID string    `json:"request_id"`
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

// VoicesRefreshed announces that the voice record was rebuilt.
type VoicesRefreshed struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSynthesisCompleted = "speech.synthesis.completed"
	SubjectTranscriptFinal    = "speech.transcript.final"
	SubjectVoicesRefreshed    = "speech.voices.refreshed"
)
