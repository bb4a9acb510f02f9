// Package pipeline assembles a synthesis request end to end: input
// validation, text chunking, per-chunk inference, stitching,
// normalization, and WAV framing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parlancelabs/parlance/internal/audio"
	"github.com/parlancelabs/parlance/internal/chunker"
	"github.com/parlancelabs/parlance/internal/config"
	"github.com/parlancelabs/parlance/internal/engine"
	"github.com/parlancelabs/parlance/internal/fault"
)

// voiceHintLimit caps how many valid voices a rejection lists.
const voiceHintLimit = 10

// Request is one synthesis job. References carries raw reference clips
// for voice cloning; when present Voice is ignored by the engine.
type Request struct {
	RequestID  string
	Text       string
	Voice      string
	Language   string
	References [][]byte
	RefNames   []string
}

// Result is the assembled output of a synthesis job.
type Result struct {
	WAV         []byte
	SampleRate  int
	DurationSec float64
	ChunkCount  int
	Warnings    []string
	Cloned      bool
}

// Pipeline runs synthesis jobs against one engine.
type Pipeline struct {
	synth  engine.Synthesizer
	syn    config.SynthesisConfig
	limits audio.ValidationLimits
	log    *slog.Logger

	meter         metric.Meter
	requestCount  metric.Int64Counter
	chunkCount    metric.Int64Counter
	synthDuration metric.Float64Histogram
}

func New(synth engine.Synthesizer, syn config.SynthesisConfig, clone config.CloneConfig, log *slog.Logger) *Pipeline {
	p := &Pipeline{
		synth: synth,
		syn:   syn,
		limits: audio.ValidationLimits{
			MaxSizeMB:           clone.MaxSizeMB,
			MinDurationSec:      clone.MinDurationSec,
			MaxDurationSec:      clone.MaxDurationSec,
			OptimalMinSec:       clone.OptimalMinSec,
			OptimalMaxSec:       clone.OptimalMaxSec,
			MinSampleRate:       clone.MinSampleRate,
			PreferredSampleRate: clone.PreferredSampleRate,
		},
		log:   log.With(slog.String("component", "pipeline")),
		meter: otel.Meter("github.com/parlancelabs/parlance/pipeline"),
	}
	if err := p.initMetrics(); err != nil {
		p.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return p
}

func (p *Pipeline) initMetrics() error {
	var err error
	p.requestCount, err = p.meter.Int64Counter("parlance.synthesis.requests",
		metric.WithDescription("Completed synthesis requests"))
	if err != nil {
		return err
	}
	p.chunkCount, err = p.meter.Int64Counter("parlance.synthesis.chunks",
		metric.WithDescription("Text chunks synthesized"))
	if err != nil {
		return err
	}
	p.synthDuration, err = p.meter.Float64Histogram("parlance.synthesis.duration_seconds",
		metric.WithDescription("Wall time per synthesis request"))
	return err
}

// Synthesize validates req, synthesizes each text chunk in order, and
// returns the stitched, normalized WAV.
func (p *Pipeline) Synthesize(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Result{}, fault.Input("empty_text", "Text must not be empty")
	}
	if len(req.Text) > p.syn.MaxTextLen {
		return Result{}, fault.Input("text_too_long",
			fmt.Sprintf("Text too long (%d characters). Maximum: %d", len(req.Text), p.syn.MaxTextLen))
	}
	language, err := p.resolveLanguage(req.Language)
	if err != nil {
		return Result{}, err
	}

	cloned := len(req.References) > 0
	var warnings []string
	var refPath string
	if cloned {
		results, failed, verr := audio.ValidateReferenceSet(req.References, p.limits)
		if verr != nil {
			return Result{}, fault.Input("invalid_reference", p.referenceError(results, failed, req.RefNames))
		}
		for i, r := range results {
			if r.WarningMessage != "" {
				warnings = append(warnings, fmt.Sprintf("%s: %s", p.refName(req.RefNames, i), r.WarningMessage))
			}
		}

		dir, cleanup, serr := p.stageReferences(req.References)
		if serr != nil {
			return Result{}, fault.Infra("reference_staging_failed", "could not stage reference audio", serr)
		}
		defer cleanup()
		refPath = filepath.Join(dir, referenceFileName(0))
	} else if req.Voice != "" {
		if err := p.checkVoice(ctx, req.Voice); err != nil {
			return Result{}, err
		}
	}

	chunks := chunker.Chunk(text, chunker.Options{
		MaxChars:          p.syn.MaxChars,
		MaxWords:          p.syn.MaxWords,
		MinChars:          p.syn.MinChars,
		PreserveSentences: true,
	})
	if len(chunks) == 0 {
		return Result{}, fault.Input("empty_text", "Text must not be empty")
	}

	pcmChunks := make([][]byte, 0, len(chunks))
	for i, chunk := range chunks {
		pcm, serr := p.synth.Synthesize(ctx, engine.SynthesisRequest{
			Text:          chunk,
			Voice:         req.Voice,
			Language:      language,
			ReferencePath: refPath,
		})
		if serr != nil {
			return Result{}, fault.Collaborator("engine_failed",
				fmt.Sprintf("synthesis failed on chunk %d of %d", i+1, len(chunks)), serr)
		}
		pcmChunks = append(pcmChunks, pcm)
	}

	opts := audio.StitchOptions{
		SampleRate:  p.synth.SampleRate(),
		SampleWidth: 2,
		Channels:    p.synth.Channels(),
		CrossfadeMS: p.syn.CrossfadeMS,
		SilenceMS:   p.syn.SilenceMS,
	}
	pcm := audio.Stitch(pcmChunks, opts)
	pcm = audio.Normalize(pcm, opts.SampleWidth, p.syn.TargetPeak)

	wavData, err := audio.WrapWAV(pcm, opts.SampleRate, opts.SampleWidth, opts.Channels)
	if err != nil {
		return Result{}, fault.Infra("wav_encode_failed", "could not encode output audio", err)
	}

	res := Result{
		WAV:         wavData,
		SampleRate:  opts.SampleRate,
		DurationSec: audio.EstimateDuration(pcm, opts.SampleRate, opts.SampleWidth, opts.Channels),
		ChunkCount:  len(chunks),
		Warnings:    warnings,
		Cloned:      cloned,
	}

	p.record(ctx, res, time.Since(start))
	p.log.Info("synthesis completed",
		slog.String("request_id", req.RequestID),
		slog.Int("chunks", res.ChunkCount),
		slog.Float64("duration_sec", res.DurationSec),
		slog.Bool("cloned", cloned))
	return res, nil
}

func (p *Pipeline) record(ctx context.Context, res Result, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("cloned", res.Cloned))
	if p.requestCount != nil {
		p.requestCount.Add(ctx, 1, attrs)
	}
	if p.chunkCount != nil {
		p.chunkCount.Add(ctx, int64(res.ChunkCount), attrs)
	}
	if p.synthDuration != nil {
		p.synthDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (p *Pipeline) resolveLanguage(language string) (string, error) {
	if language == "" {
		return p.syn.Languages[0], nil
	}
	lang := strings.ToLower(strings.TrimSpace(language))
	for _, allowed := range p.syn.Languages {
		if lang == allowed {
			return lang, nil
		}
	}
	return "", fault.InputWithOptions("invalid_language",
		fmt.Sprintf("Language %q is not supported", language), p.syn.Languages)
}

// checkVoice asks the engine, not any cached record, whether the voice
// exists. An engine that cannot enumerate voices does not block the
// request; the voice name passes through unverified.
func (p *Pipeline) checkVoice(ctx context.Context, voice string) error {
	voices, err := p.synth.Voices(ctx)
	if err != nil {
		p.log.Warn("voice listing failed, skipping voice validation", slog.String("error", err.Error()))
		return nil
	}
	if len(voices) == 0 {
		return nil
	}
	for _, v := range voices {
		if v == voice {
			return nil
		}
	}
	hints := voices
	if len(hints) > voiceHintLimit {
		hints = hints[:voiceHintLimit]
	}
	return fault.InputWithOptions("invalid_voice",
		fmt.Sprintf("Voice %q not found", voice), hints)
}

func (p *Pipeline) referenceError(results []audio.ValidationResult, failed int, names []string) string {
	if failed < 0 || failed >= len(results) {
		return "Reference audio rejected"
	}
	return fmt.Sprintf("%s: %s", p.refName(names, failed), results[failed].ErrorMessage)
}

func (p *Pipeline) refName(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return fmt.Sprintf("reference %d", i+1)
}

func referenceFileName(i int) string {
	return fmt.Sprintf("ref_%02d.wav", i)
}

// stageReferences writes validated clips to a private temp directory so
// the engine process can read them by path. The returned cleanup always
// removes the directory, including on error paths.
func (p *Pipeline) stageReferences(clips [][]byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "parlance-ref-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.log.Warn("failed to remove staged references", slog.String("error", rmErr.Error()))
		}
	}
	for i, clip := range clips {
		path := filepath.Join(dir, referenceFileName(i))
		if err := os.WriteFile(path, clip, 0o600); err != nil {
			cleanup()
			return "", func() {}, err
		}
	}
	return dir, cleanup, nil
}
