// Package store persists service state in SQLite: the voice metadata
// cache record and a retained log of synthesis requests.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parlancelabs/parlance/internal/config"
	_ "modernc.org/sqlite"
)

// VoiceRecord is the single persisted voice-name record. It is replaced
// wholesale on every refresh; Count always equals len(Names).
type VoiceRecord struct {
	Names       []string
	Count       int
	LastUpdated time.Time
}

// RequestEvent is one recorded synthesis or transcription request.
type RequestEvent struct {
	ID          int64
	RequestID   string
	Kind        string // speech, clone, transcribe
	Voice       string
	Language    string
	ChunkCount  int
	DurationSec float64
	CreatedAt   time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store, creating the schema if needed.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS voice_cache (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    names TEXT NOT NULL,
    count INTEGER NOT NULL,
    last_updated TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT,
    kind TEXT NOT NULL,
    voice TEXT,
    language TEXT,
    chunk_count INTEGER,
    duration_sec REAL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ReadVoiceRecord loads the persisted voice record. The second return is
// false when no record exists. A structurally invalid record (bad JSON,
// count mismatch) is reported as absent so callers rebuild rather than
// fail.
func (s *Store) ReadVoiceRecord(ctx context.Context) (VoiceRecord, bool, error) {
	var (
		namesJSON string
		count     int
		updated   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT names, count, last_updated FROM voice_cache WHERE id = 1`).
		Scan(&namesJSON, &count, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return VoiceRecord{}, false, nil
	}
	if err != nil {
		return VoiceRecord{}, false, err
	}

	var names []string
	if err := json.Unmarshal([]byte(namesJSON), &names); err != nil {
		s.log.Warn("voice record corrupt, treating as absent", slog.String("error", err.Error()))
		return VoiceRecord{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		s.log.Warn("voice record timestamp invalid, treating as absent", slog.String("error", err.Error()))
		return VoiceRecord{}, false, nil
	}
	if count != len(names) {
		s.log.Warn("voice record count mismatch, treating as absent",
			slog.Int("count", count), slog.Int("names", len(names)))
		return VoiceRecord{}, false, nil
	}

	return VoiceRecord{Names: names, Count: count, LastUpdated: ts}, true, nil
}

// WriteVoiceRecord replaces the persisted voice record wholesale.
func (s *Store) WriteVoiceRecord(ctx context.Context, rec VoiceRecord) error {
	namesJSON, err := json.Marshal(rec.Names)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO voice_cache(id, names, count, last_updated)
		 VALUES(1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET names=excluded.names, count=excluded.count, last_updated=excluded.last_updated`,
		string(namesJSON), rec.Count, rec.LastUpdated.UTC().Format(time.RFC3339Nano))
	return err
}

// AppendRequest records a completed request.
func (s *Store) AppendRequest(ctx context.Context, evt RequestEvent) error {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests(request_id, kind, voice, language, chunk_count, duration_sec, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		evt.RequestID, evt.Kind, evt.Voice, evt.Language, evt.ChunkCount, evt.DurationSec,
		evt.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// ListRequests returns up to limit most recent request events.
func (s *Store) ListRequests(ctx context.Context, limit int) ([]RequestEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, kind, voice, language, chunk_count, duration_sec, created_at
		 FROM requests ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RequestEvent
	for rows.Next() {
		var e RequestEvent
		var created string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Kind, &e.Voice, &e.Language,
			&e.ChunkCount, &e.DurationSec, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention to the request log.
func (s *Store) Prune(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE created_at < ?`,
			cutoff.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if s.cfg.MaxRequests > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE id IN (
			SELECT id FROM requests ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRequests)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
