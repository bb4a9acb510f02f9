package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parlancelabs/parlance/internal/audio"
	"github.com/parlancelabs/parlance/internal/config"
	"github.com/parlancelabs/parlance/internal/engine"
	"github.com/parlancelabs/parlance/internal/pipeline"
	"github.com/parlancelabs/parlance/internal/store"
	"github.com/parlancelabs/parlance/internal/voicecache"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memRecordStore struct {
	mu  sync.Mutex
	rec store.VoiceRecord
	ok  bool
}

func (m *memRecordStore) ReadVoiceRecord(ctx context.Context) (store.VoiceRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, m.ok, nil
}

func (m *memRecordStore) WriteVoiceRecord(ctx context.Context, rec store.VoiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = rec
	m.ok = true
	return nil
}

type memRequestLog struct {
	mu     sync.Mutex
	events []store.RequestEvent
}

func (m *memRequestLog) AppendRequest(ctx context.Context, evt store.RequestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *memRequestLog) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

type memPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (m *memPublisher) PublishJSON(subject string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *memPublisher) seen(subject string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

type fixture struct {
	srv *httptest.Server
	log *memRequestLog
	pub *memPublisher
}

func newFixture(t *testing.T, transcriber engine.Transcriber) *fixture {
	t.Helper()
	cfg := config.Default()
	synth := engine.NewMockSynth(cfg.Engine.SampleRate, cfg.Engine.Channels)
	pipe := pipeline.New(synth, cfg.Synthesis, cfg.Clone, newLogger())
	cache := voicecache.New(synth.Voices, &memRecordStore{}, nil,
		time.Duration(cfg.VoiceCache.TTLDays)*24*time.Hour, newLogger())

	reqLog := &memRequestLog{}
	pub := &memPublisher{}
	s := New(cfg, pipe, cache, transcriber, reqLog, pub, nil, newLogger())

	mux := http.NewServeMux()
	s.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, log: reqLog, pub: pub}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) (code, requestID string, options []string) {
	t.Helper()
	var env struct {
		Error struct {
			Code         string   `json:"code"`
			Message      string   `json:"message"`
			ValidOptions []string `json:"valid_options"`
			RequestID    string   `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.Code, env.Error.RequestID, env.Error.ValidOptions
}

func refClip(t *testing.T, seconds float64, sampleRate, channels int) []byte {
	t.Helper()
	frames := int(seconds * float64(sampleRate))
	pcm := make([]byte, frames*2*channels)
	for i := 0; i < len(pcm); i += 2 {
		v := int16(i % 9000)
		pcm[i] = byte(v)
		pcm[i+1] = byte(v >> 8)
	}
	data, err := audio.WrapWAV(pcm, sampleRate, 2, channels)
	if err != nil {
		t.Fatalf("build clip: %v", err)
	}
	return data
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(fileField, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSpeechHappyPath(t *testing.T) {
	fx := newFixture(t, nil)
	resp := postJSON(t, fx.srv.URL+"/v1/speech", map[string]string{
		"text":  "Hello world. This is a test.",
		"voice": "amber",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type %q", ct)
	}
	if resp.Header.Get("X-Sample-Rate") != "22050" {
		t.Fatalf("sample rate header %q", resp.Header.Get("X-Sample-Rate"))
	}
	chunks, err := strconv.Atoi(resp.Header.Get("X-Chunks"))
	if err != nil || chunks < 1 {
		t.Fatalf("chunks header %q", resp.Header.Get("X-Chunks"))
	}
	dur := resp.Header.Get("X-Duration-Sec")
	if _, err := strconv.ParseFloat(dur, 64); err != nil || !strings.Contains(dur, ".") {
		t.Fatalf("duration header %q", dur)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.HasPrefix(body, []byte("RIFF")) {
		t.Fatal("body should be a RIFF container")
	}

	if kinds := fx.log.kinds(); len(kinds) != 1 || kinds[0] != "speech" {
		t.Fatalf("expected one speech log entry, got %v", kinds)
	}
	if !fx.pub.seen("speech.synthesis.completed") {
		t.Fatal("completion event not published")
	}
}

func TestSpeechEmptyTextRejected(t *testing.T) {
	fx := newFixture(t, nil)
	resp := postJSON(t, fx.srv.URL+"/v1/speech", map[string]string{"text": "  "})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	code, requestID, _ := decodeError(t, resp)
	if code != "empty_text" || requestID == "" {
		t.Fatalf("unexpected envelope: code=%q request_id=%q", code, requestID)
	}
}

func TestSpeechUnknownLanguageListsOptions(t *testing.T) {
	fx := newFixture(t, nil)
	resp := postJSON(t, fx.srv.URL+"/v1/speech", map[string]string{"text": "Hi.", "language": "xx"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	code, _, options := decodeError(t, resp)
	if code != "invalid_language" {
		t.Fatalf("code %q", code)
	}
	if len(options) == 0 || options[0] != "en" {
		t.Fatalf("valid options %v", options)
	}
}

func TestSpeechRequiresPost(t *testing.T) {
	fx := newFixture(t, nil)
	resp, err := http.Get(fx.srv.URL + "/v1/speech")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCloneHappyPath(t *testing.T) {
	fx := newFixture(t, nil)
	body, ct := multipartBody(t,
		map[string]string{"text": "Clone this sentence please."},
		"reference",
		map[string][]byte{"sample.wav": refClip(t, 8, 22050, 1)})

	resp, err := http.Post(fx.srv.URL+"/v1/clone", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
	if resp.Header.Get("X-Reference-Files") != "1" {
		t.Fatalf("reference files header %q", resp.Header.Get("X-Reference-Files"))
	}
	if resp.Header.Get("X-Validation-Warnings") != "" {
		t.Fatalf("optimal clip should not warn: %q", resp.Header.Get("X-Validation-Warnings"))
	}
	if kinds := fx.log.kinds(); len(kinds) != 1 || kinds[0] != "clone" {
		t.Fatalf("expected one clone log entry, got %v", kinds)
	}
}

func TestCloneSurfacesWarnings(t *testing.T) {
	fx := newFixture(t, nil)
	body, ct := multipartBody(t,
		map[string]string{"text": "Clone this sentence please."},
		"reference",
		map[string][]byte{"noisy.wav": refClip(t, 8, 16000, 2)})

	resp, err := http.Post(fx.srv.URL+"/v1/clone", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
	if resp.Header.Get("X-Validation-Warnings") == "" {
		t.Fatal("expected validation warnings header")
	}
}

func TestCloneMissingReferenceRejected(t *testing.T) {
	fx := newFixture(t, nil)
	body, ct := multipartBody(t, map[string]string{"text": "Hello."}, "reference", nil)

	resp, err := http.Post(fx.srv.URL+"/v1/clone", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	code, _, _ := decodeError(t, resp)
	if code != "missing_reference" {
		t.Fatalf("code %q", code)
	}
}

func TestCloneShortReferenceRejected(t *testing.T) {
	fx := newFixture(t, nil)
	body, ct := multipartBody(t,
		map[string]string{"text": "Hello."},
		"reference",
		map[string][]byte{"short.wav": refClip(t, 1, 22050, 1)})

	resp, err := http.Post(fx.srv.URL+"/v1/clone", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	code, _, _ := decodeError(t, resp)
	if code != "invalid_reference" {
		t.Fatalf("code %q", code)
	}
}

func TestVoicesListing(t *testing.T) {
	fx := newFixture(t, nil)
	resp, err := http.Get(fx.srv.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var vr struct {
		Voices []string `json:"voices"`
		Count  int      `json:"count"`
		Stale  bool     `json:"stale"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if vr.Count != 5 || len(vr.Voices) != 5 {
		t.Fatalf("unexpected voices: %+v", vr)
	}
	if vr.Stale {
		t.Fatal("freshly built record must not be stale")
	}
}

func TestVoicesForceRefreshPublishes(t *testing.T) {
	fx := newFixture(t, nil)
	resp, err := http.Get(fx.srv.URL + "/v1/voices?refresh=true")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !fx.pub.seen("speech.voices.refreshed") {
		t.Fatal("refresh event not published")
	}
}

func TestVoicesInvalidRefreshParam(t *testing.T) {
	fx := newFixture(t, nil)
	resp, err := http.Get(fx.srv.URL + "/v1/voices?refresh=maybe")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestTranscribeHappyPath(t *testing.T) {
	fx := newFixture(t, engine.NewMockTranscriber())
	body, ct := multipartBody(t,
		map[string]string{"language": "en"},
		"audio",
		map[string][]byte{"speech.wav": refClip(t, 4, 16000, 1)})

	resp, err := http.Post(fx.srv.URL+"/v1/transcribe", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
	var tr engine.Transcript
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Text != "mock transcript" || len(tr.Segments) == 0 {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
	if !fx.pub.seen("speech.transcript.final") {
		t.Fatal("transcript event not published")
	}
}

func TestTranscribeDisabled(t *testing.T) {
	fx := newFixture(t, nil)
	body, ct := multipartBody(t, nil, "audio", map[string][]byte{"a.wav": refClip(t, 4, 16000, 1)})

	resp, err := http.Post(fx.srv.URL+"/v1/transcribe", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestLanguages(t *testing.T) {
	fx := newFixture(t, nil)
	resp, err := http.Get(fx.srv.URL + "/v1/languages")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var lr struct {
		Languages []string `json:"languages"`
		Default   string   `json:"default"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lr.Default != "en" || len(lr.Languages) < 10 {
		t.Fatalf("unexpected languages: %+v", lr)
	}
}
