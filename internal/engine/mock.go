package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

var mockVoiceList = []string{"amber", "basil", "clara", "dorian", "elise"}

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth returns a deterministic in-process synthesizer used in
// development and tests. Output length scales with text length (50 ms
// per character) so pipeline math stays observable.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Text == "" {
		return nil, fmt.Errorf("mock synth: empty text")
	}

	frames := m.sampleRate * len(req.Text) / 20 // 50 ms per character
	if frames == 0 {
		frames = m.sampleRate / 20
	}
	pcm := make([]byte, 0, frames*m.channels*2)
	for i := 0; i < frames; i++ {
		// 440 Hz tone at a modest level.
		s := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(m.sampleRate)))
		for c := 0; c < m.channels; c++ {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
		}
	}
	return pcm, nil
}

func (m *mockSynth) Voices(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NormalizeVoices(mockVoiceList), nil
}

func (m *mockSynth) SampleRate() int { return m.sampleRate }
func (m *mockSynth) Channels() int   { return m.channels }

type mockTranscriber struct{}

// NewMockTranscriber returns a transcriber with canned output.
func NewMockTranscriber() Transcriber {
	return mockTranscriber{}
}

func (mockTranscriber) Transcribe(ctx context.Context, audioPath, language string) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	if language == "" {
		language = "en"
	}
	return Transcript{
		Text:     "mock transcript",
		Language: language,
		Segments: []Segment{
			{
				Text:  "mock transcript",
				Start: 0,
				End:   1.2,
				Words: []Word{
					{Word: "mock", Start: 0, End: 0.5, Score: 0.99},
					{Word: "transcript", Start: 0.5, End: 1.2, Score: 0.98},
				},
			},
		},
	}, nil
}
