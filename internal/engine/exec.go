package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth shells out to an inference command. The command receives one
// JSON request on stdin and answers with one JSON object on stdout; the
// model process stays opaque to the service.
type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execSynthRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice,omitempty"`
	Language       string `json:"language"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
	ReferenceAudio string `json:"reference_audio,omitempty"`
}

type execSynthResponse struct {
	PCMBase64 string `json:"pcm_base64"`
}

type execVoicesResponse struct {
	Voices []string `json:"voices"`
}

func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execSynthRequest{
		Text:           req.Text,
		Voice:          req.Voice,
		Language:       req.Language,
		SampleRate:     e.sampleRate,
		Channels:       e.channels,
		ReferenceAudio: req.ReferencePath,
	})
	if err != nil {
		return nil, err
	}

	stdout, err := e.run(ctx, payload, nil)
	if err != nil {
		return nil, err
	}

	var resp execSynthResponse
	if err := json.Unmarshal(stdout, &resp); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return nil, fmt.Errorf("decode engine pcm: %w", err)
	}
	return pcm, nil
}

func (e *execSynth) Voices(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stdout, err := e.run(ctx, nil, []string{"--list-voices"})
	if err != nil {
		return nil, err
	}
	var resp execVoicesResponse
	if err := json.Unmarshal(stdout, &resp); err != nil {
		return nil, fmt.Errorf("decode voice list: %w", err)
	}
	return NormalizeVoices(resp.Voices), nil
}

func (e *execSynth) SampleRate() int { return e.sampleRate }
func (e *execSynth) Channels() int   { return e.channels }

func (e *execSynth) run(ctx context.Context, stdin []byte, extraArgs []string) ([]byte, error) {
	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, extraArgs...)

	command := exec.CommandContext(ctx, base, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if stdin != nil {
		command.Stdin = bytes.NewReader(stdin)
	}

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("engine command failed: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// execTranscriber shells out to a speech-to-text command which reads the
// staged audio file and prints one JSON transcript on stdout.
type execTranscriber struct {
	cmd       []string
	modelPath string
	mu        sync.Mutex
}

func NewExecTranscriber(command, modelPath string) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse transcriber command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcriber command is empty")
	}
	return &execTranscriber{cmd: args, modelPath: modelPath}, nil
}

func (t *execTranscriber) Transcribe(ctx context.Context, audioPath, language string) (Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	base := t.cmd[0]
	args := append([]string{}, t.cmd[1:]...)
	args = append(args, "--audio", audioPath)
	if t.modelPath != "" {
		args = append(args, "--model", t.modelPath)
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	command := exec.CommandContext(ctx, base, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Transcript{}, fmt.Errorf("transcriber command failed: %w: %s", err, stderr.String())
	}

	var resp Transcript
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	return resp, nil
}
