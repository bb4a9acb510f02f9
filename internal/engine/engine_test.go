package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestNormalizeVoices(t *testing.T) {
	got := NormalizeVoices([]string{"clara", "", "amber", "clara", "basil"})
	want := []string{"amber", "basil", "clara"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMockSynthOutputScalesWithText(t *testing.T) {
	m := NewMockSynth(22050, 1)
	short, err := m.Synthesize(context.Background(), SynthesisRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	long, err := m.Synthesize(context.Background(), SynthesisRequest{Text: "a much longer sentence"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(long) <= len(short) {
		t.Fatalf("longer text should yield more audio: %d vs %d", len(long), len(short))
	}
	if len(short)%2 != 0 {
		t.Fatal("pcm must be whole 16-bit samples")
	}
}

func TestMockSynthRejectsEmptyText(t *testing.T) {
	m := NewMockSynth(22050, 1)
	if _, err := m.Synthesize(context.Background(), SynthesisRequest{}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestMockTranscriberDefaultsLanguage(t *testing.T) {
	tr, err := NewMockTranscriber().Transcribe(context.Background(), "ignored.wav", "")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if tr.Language != "en" || tr.Text == "" {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
}

func TestNewExecSynthRejectsBadCommands(t *testing.T) {
	if _, err := NewExecSynth("", 22050, 1); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := NewExecSynth(`tool "unterminated`, 22050, 1); err == nil {
		t.Fatal("expected error for unparseable command")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecSynthRoundTrip(t *testing.T) {
	// "AAAA" decodes to three zero bytes; the script ignores stdin.
	script := writeScript(t, `
if [ "$1" = "--list-voices" ]; then
  echo '{"voices":["beta","alpha","beta"]}'
else
  cat > /dev/null
  echo '{"pcm_base64":"AAAA"}'
fi
`)
	synth, err := NewExecSynth(script, 22050, 1)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}

	pcm, err := synth.Synthesize(context.Background(), SynthesisRequest{Text: "hello", Language: "en"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(pcm) != 3 {
		t.Fatalf("expected 3 decoded bytes, got %d", len(pcm))
	}

	voices, err := synth.Voices(context.Background())
	if err != nil {
		t.Fatalf("voices: %v", err)
	}
	if len(voices) != 2 || voices[0] != "alpha" {
		t.Fatalf("voices should be normalized, got %v", voices)
	}
}

func TestExecSynthSurfacesStderr(t *testing.T) {
	script := writeScript(t, `
echo "model exploded" >&2
exit 3
`)
	synth, err := NewExecSynth(script, 22050, 1)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	_, err = synth.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := err.Error(); !strings.Contains(got, "model exploded") {
		t.Fatalf("stderr should be carried in the error: %s", got)
	}
}

func TestExecTranscriberRoundTrip(t *testing.T) {
	script := writeScript(t, `
echo '{"text":"scripted words","language":"en","segments":[{"text":"scripted words","start":0,"end":1}]}'
`)
	tr, err := NewExecTranscriber(script, "")
	if err != nil {
		t.Fatalf("new exec transcriber: %v", err)
	}
	out, err := tr.Transcribe(context.Background(), "input.wav", "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if out.Text != "scripted words" || len(out.Segments) != 1 {
		t.Fatalf("unexpected transcript: %+v", out)
	}
}
