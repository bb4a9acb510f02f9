package audio

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

func TestWrapWAVRoundTrip(t *testing.T) {
	pcm := constPCM16(1234, 22050) // one second mono at 22050 Hz
	wavBytes, err := WrapWAV(pcm, 22050, 2, 1)
	if err != nil {
		t.Fatalf("wrap wav: %v", err)
	}
	if len(wavBytes) != 44+len(pcm) {
		t.Fatalf("expected 44-byte header + payload, got %d bytes", len(wavBytes))
	}
	if !bytes.Equal(wavBytes[44:], pcm) {
		t.Fatal("pcm payload must be carried verbatim")
	}

	info, err := ReadInfo(wavBytes)
	if err != nil {
		t.Fatalf("read info: %v", err)
	}
	if info.SampleRate != 22050 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected info: %+v", info)
	}
	want := EstimateDuration(pcm, 22050, 2, 1)
	if math.Abs(info.Duration-want) > 0.01 {
		t.Fatalf("duration mismatch: decoded %.3f, estimated %.3f", info.Duration, want)
	}
}

func TestWrapWAVRejectsBadParams(t *testing.T) {
	if _, err := WrapWAV([]byte{0, 0}, 0, 2, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := WrapWAV([]byte{0, 0}, 22050, 0, 1); err == nil {
		t.Fatal("expected error for zero sample width")
	}
}

func TestEstimateDuration(t *testing.T) {
	pcm := make([]byte, 44100) // one second of 16-bit mono at 22050 Hz
	if got := EstimateDuration(pcm, 22050, 2, 1); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("expected 1s, got %f", got)
	}
	if got := EstimateDuration(nil, 22050, 2, 1); got != 0 {
		t.Fatalf("empty buffer should yield 0, got %f", got)
	}
	if got := EstimateDuration(pcm, 0, 2, 1); got != 0 {
		t.Fatalf("zero rate should yield 0, got %f", got)
	}
	if got := EstimateDuration(pcm, 22050, 2, 0); got != 0 {
		t.Fatalf("zero channels should yield 0, got %f", got)
	}
}

// TestWrapWAVMatchesReferenceEncoder checks our header against an
// independently encoded file carrying the same samples.
func TestWrapWAVMatchesReferenceEncoder(t *testing.T) {
	const sampleRate = 16000
	samples := make([]int, sampleRate/2)
	for i := range samples {
		samples[i] = int(int16(3000 * math.Sin(float64(i)/30)))
	}

	path := filepath.Join(t.TempDir(), "ref.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := gowav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           samples,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	encoded, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read encoded file: %v", err)
	}

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[2*i] = byte(uint16(int16(s)))
		pcm[2*i+1] = byte(uint16(int16(s)) >> 8)
	}
	wrapped, err := WrapWAV(pcm, sampleRate, 2, 1)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	refInfo, err := ReadInfo(encoded)
	if err != nil {
		t.Fatalf("read reference info: %v", err)
	}
	gotInfo, err := ReadInfo(wrapped)
	if err != nil {
		t.Fatalf("read wrapped info: %v", err)
	}
	if refInfo != gotInfo {
		t.Fatalf("container metadata diverged: reference %+v, wrapped %+v", refInfo, gotInfo)
	}
}

func TestReadInfoRejectsGarbage(t *testing.T) {
	if _, err := ReadInfo([]byte("definitely not audio")); err == nil {
		t.Fatal("expected error for malformed container")
	}
	if _, err := ReadInfo(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
