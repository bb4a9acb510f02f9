// Package server exposes the synthesis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parlancelabs/parlance/internal/config"
	"github.com/parlancelabs/parlance/internal/engine"
	"github.com/parlancelabs/parlance/internal/fault"
	"github.com/parlancelabs/parlance/internal/pipeline"
	"github.com/parlancelabs/parlance/internal/protocol"
	"github.com/parlancelabs/parlance/internal/store"
	"github.com/parlancelabs/parlance/internal/voicecache"
)

// maxReferenceClips bounds how many clips one clone request may carry.
const maxReferenceClips = 5

// RequestLog records completed requests for later inspection.
type RequestLog interface {
	AppendRequest(ctx context.Context, evt store.RequestEvent) error
}

// Publisher emits advisory events on the bus.
type Publisher interface {
	PublishJSON(subject string, payload any) error
}

// Submitter schedules best-effort background work.
type Submitter interface {
	Submit(name string, fn func(context.Context) error) bool
}

// Server wires the HTTP surface to the pipeline, voice cache, and
// optional collaborators. Nil bus, log, tasks, or transcriber disable
// the corresponding behavior.
type Server struct {
	cfg         config.Config
	log         *slog.Logger
	pipe        *pipeline.Pipeline
	cache       *voicecache.Cache
	transcriber engine.Transcriber
	requests    RequestLog
	bus         Publisher
	tasks       Submitter
	clock       func() time.Time
}

func New(cfg config.Config, pipe *pipeline.Pipeline, cache *voicecache.Cache, transcriber engine.Transcriber,
	requests RequestLog, pub Publisher, tasks Submitter, log *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		log:         log.With(slog.String("component", "http")),
		pipe:        pipe,
		cache:       cache,
		transcriber: transcriber,
		requests:    requests,
		bus:         pub,
		tasks:       tasks,
		clock:       time.Now,
	}
}

// Register attaches all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/speech", s.handleSpeech)
	mux.HandleFunc("/v1/clone", s.handleClone)
	mux.HandleFunc("/v1/voices", s.handleVoices)
	mux.HandleFunc("/v1/transcribe", s.handleTranscribe)
	mux.HandleFunc("/v1/languages", s.handleLanguages)
}

type speechRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	if r.Method != http.MethodPost {
		s.writeError(w, requestID, fault.Input("method_not_allowed", "POST required"), http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFault(w, requestID, s.decodeFault(err))
		return
	}

	res, err := s.pipe.Synthesize(r.Context(), pipeline.Request{
		RequestID: requestID,
		Text:      req.Text,
		Voice:     req.Voice,
		Language:  req.Language,
	})
	if err != nil {
		s.writeFault(w, requestID, err)
		return
	}

	s.finishSynthesis(w, requestID, "speech", req.Voice, req.Language, res)
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	if r.Method != http.MethodPost {
		s.writeError(w, requestID, fault.Input("method_not_allowed", "POST required"), http.StatusMethodNotAllowed)
		return
	}

	maxClip := int64(s.cfg.Clone.MaxSizeMB * 1024 * 1024)
	r.Body = http.MaxBytesReader(w, r.Body, maxClip*maxReferenceClips+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		s.writeFault(w, requestID, s.decodeFault(err))
		return
	}

	text := r.FormValue("text")
	language := r.FormValue("language")

	files := r.MultipartForm.File["reference"]
	if len(files) == 0 {
		s.writeFault(w, requestID, fault.Input("missing_reference", "At least one reference clip is required"))
		return
	}
	if len(files) > maxReferenceClips {
		s.writeFault(w, requestID, fault.Input("too_many_references",
			fmt.Sprintf("At most %d reference clips are accepted", maxReferenceClips)))
		return
	}

	clips := make([][]byte, 0, len(files))
	names := make([]string, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			s.writeFault(w, requestID, fault.Infra("reference_read_failed", "could not read uploaded clip", err))
			return
		}
		clips = append(clips, data)
		names = append(names, fh.Filename)
	}

	res, err := s.pipe.Synthesize(r.Context(), pipeline.Request{
		RequestID:  requestID,
		Text:       text,
		Language:   language,
		References: clips,
		RefNames:   names,
	})
	if err != nil {
		s.writeFault(w, requestID, err)
		return
	}

	w.Header().Set("X-Reference-Files", fmt.Sprintf("%d", len(clips)))
	if len(res.Warnings) > 0 {
		w.Header().Set("X-Validation-Warnings", strings.Join(res.Warnings, "; "))
	}
	s.finishSynthesis(w, requestID, "clone", "", language, res)
}

// finishSynthesis writes the WAV response and schedules the advisory
// side effects. Side effects never delay or fail the response.
func (s *Server) finishSynthesis(w http.ResponseWriter, requestID, kind, voice, language string, res pipeline.Result) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Sample-Rate", fmt.Sprintf("%d", res.SampleRate))
	w.Header().Set("X-Duration-Sec", fmt.Sprintf("%.2f", res.DurationSec))
	w.Header().Set("X-Chunks", fmt.Sprintf("%d", res.ChunkCount))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.WAV); err != nil {
		s.log.Warn("response write failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
	}

	evt := store.RequestEvent{
		RequestID:   requestID,
		Kind:        kind,
		Voice:       voice,
		Language:    language,
		ChunkCount:  res.ChunkCount,
		DurationSec: res.DurationSec,
	}
	s.submit("request-log", func(ctx context.Context) error {
		if s.requests == nil {
			return nil
		}
		return s.requests.AppendRequest(ctx, evt)
	})
	s.publish(protocol.SubjectSynthesisCompleted, protocol.SynthesisCompleted{
		RequestID:   requestID,
		Voice:       voice,
		Language:    language,
		ChunkCount:  res.ChunkCount,
		DurationSec: res.DurationSec,
		SampleRate:  res.SampleRate,
		Cloned:      res.Cloned,
		Timestamp:   s.clock().UTC(),
	})
}

type voicesResponse struct {
	Voices      []string  `json:"voices"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
	AgeSeconds  float64   `json:"age_seconds"`
	Stale       bool      `json:"stale"`
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	if r.Method != http.MethodGet {
		s.writeError(w, requestID, fault.Input("method_not_allowed", "GET required"), http.StatusMethodNotAllowed)
		return
	}

	force := false
	switch strings.ToLower(r.URL.Query().Get("refresh")) {
	case "", "false", "0":
	case "true", "1", "sync", "force":
		force = true
	default:
		s.writeFault(w, requestID, fault.Input("invalid_refresh", "refresh must be true or false"))
		return
	}

	snap, err := s.cache.Get(r.Context(), force)
	if err != nil {
		s.writeFault(w, requestID, fault.Collaborator("voice_discovery_failed", "could not list voices", err))
		return
	}
	if force && snap.Count > 0 {
		s.publish(protocol.SubjectVoicesRefreshed, protocol.VoicesRefreshed{
			Count:     snap.Count,
			Timestamp: s.clock().UTC(),
		})
	}

	names := snap.Names
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, voicesResponse{
		Voices:      names,
		Count:       snap.Count,
		LastUpdated: snap.LastUpdated,
		AgeSeconds:  snap.Age.Seconds(),
		Stale:       snap.Stale,
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	if r.Method != http.MethodPost {
		s.writeError(w, requestID, fault.Input("method_not_allowed", "POST required"), http.StatusMethodNotAllowed)
		return
	}
	if s.transcriber == nil {
		s.writeError(w, requestID, fault.Input("transcription_disabled", "Transcription is not enabled"), http.StatusServiceUnavailable)
		return
	}

	maxClip := int64(s.cfg.Clone.MaxSizeMB * 1024 * 1024)
	r.Body = http.MaxBytesReader(w, r.Body, maxClip+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		s.writeFault(w, requestID, s.decodeFault(err))
		return
	}

	files := r.MultipartForm.File["audio"]
	if len(files) == 0 {
		s.writeFault(w, requestID, fault.Input("missing_audio", "An audio file is required"))
		return
	}
	data, err := readPart(files[0])
	if err != nil {
		s.writeFault(w, requestID, fault.Infra("audio_read_failed", "could not read uploaded audio", err))
		return
	}

	path, cleanup, err := s.stageAudio(data)
	if err != nil {
		s.writeFault(w, requestID, fault.Infra("audio_staging_failed", "could not stage uploaded audio", err))
		return
	}
	defer cleanup()

	language := r.FormValue("language")
	transcript, err := s.transcriber.Transcribe(r.Context(), path, language)
	if err != nil {
		s.writeFault(w, requestID, fault.Collaborator("transcriber_failed", "transcription failed", err))
		return
	}

	s.publish(protocol.SubjectTranscriptFinal, protocol.TranscriptFinal{
		RequestID: requestID,
		Text:      transcript.Text,
		Language:  transcript.Language,
		Timestamp: s.clock().UTC(),
	})
	evt := store.RequestEvent{RequestID: requestID, Kind: "transcribe", Language: transcript.Language}
	s.submit("request-log", func(ctx context.Context) error {
		if s.requests == nil {
			return nil
		}
		return s.requests.AppendRequest(ctx, evt)
	})

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, transcript)
}

type languagesResponse struct {
	Languages []string `json:"languages"`
	Default   string   `json:"default"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	if r.Method != http.MethodGet {
		s.writeError(w, requestID, fault.Input("method_not_allowed", "GET required"), http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, languagesResponse{
		Languages: s.cfg.Synthesis.Languages,
		Default:   s.cfg.Synthesis.Languages[0],
	})
}

func (s *Server) stageAudio(data []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "parlance-stt-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.log.Warn("failed to remove staged audio", slog.String("error", rmErr.Error()))
		}
	}
	path := filepath.Join(dir, "input.wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return path, cleanup, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) submit(name string, fn func(context.Context) error) {
	if s.tasks == nil {
		if err := fn(context.Background()); err != nil {
			s.log.Warn("side effect failed", slog.String("task", name), slog.String("error", err.Error()))
		}
		return
	}
	s.tasks.Submit(name, fn)
}

func (s *Server) publish(subject string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(subject, payload); err != nil {
		s.log.Warn("event publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

// decodeFault classifies body parsing failures, separating oversized
// payloads from malformed ones.
func (s *Server) decodeFault(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fault.TooLarge("payload_too_large",
			fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit))
	}
	return fault.Input("malformed_request", "Could not parse request body")
}

type errorBody struct {
	Code         string   `json:"code"`
	Message      string   `json:"message"`
	ValidOptions []string `json:"valid_options,omitempty"`
	RequestID    string   `json:"request_id"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func (s *Server) writeFault(w http.ResponseWriter, requestID string, err error) {
	f, ok := fault.As(err)
	if !ok {
		f = fault.Infra("internal_error", "Internal server error", err)
	}
	status := http.StatusInternalServerError
	switch f.Kind {
	case fault.KindInput:
		status = http.StatusBadRequest
	case fault.KindTooLarge:
		status = http.StatusRequestEntityTooLarge
	case fault.KindCollaborator:
		status = http.StatusBadGateway
	}
	if f.Kind != fault.KindInput {
		s.log.Error("request failed",
			slog.String("request_id", requestID),
			slog.String("code", f.Code),
			slog.String("error", f.Error()))
	}
	s.writeError(w, requestID, f, status)
}

func (s *Server) writeError(w http.ResponseWriter, requestID string, f *fault.Fault, status int) {
	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:         f.Code,
		Message:      f.Message,
		ValidOptions: f.ValidOptions,
		RequestID:    requestID,
	}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("json encode failed", slog.String("error", err.Error()))
	}
}
