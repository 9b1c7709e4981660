package irtsim

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection holding the session archive and the
// experiment run index. The JSON run directories stay the canonical record;
// the store exists so sessions and runs are queryable without walking the
// filesystem.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database and runs migrations.
func NewStore(path string) (*Store, error) {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("irtsim: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("irtsim: open db: %w", err)
	}

	// Single connection avoids write contention for our scale
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("irtsim: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	// Version tracking
	s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)

	var version int
	s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)

	if version < 1 {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS sessions (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id   TEXT    NOT NULL UNIQUE,
				user_id      TEXT    NOT NULL,
				language     TEXT    NOT NULL DEFAULT 'en',
				completed    INTEGER NOT NULL DEFAULT 0,
				turns        INTEGER NOT NULL DEFAULT 0,
				final_stage  TEXT    NOT NULL DEFAULT '',
				total_tokens INTEGER NOT NULL DEFAULT 0,
				transcript   TEXT    NOT NULL,
				created_at   TEXT    NOT NULL DEFAULT (datetime('now'))
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_user    ON sessions(user_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

			CREATE TABLE IF NOT EXISTS runs (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				dir           TEXT    NOT NULL UNIQUE,
				model         TEXT    NOT NULL,
				vignette      TEXT    NOT NULL,
				mode          TEXT    NOT NULL,
				trials        INTEGER NOT NULL,
				temperature   REAL    NOT NULL,
				validity_rate REAL    NOT NULL,
				jaccard_valid REAL    NOT NULL,
				created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
			);
			CREATE INDEX IF NOT EXISTS idx_runs_model    ON runs(model);
			CREATE INDEX IF NOT EXISTS idx_runs_vignette ON runs(vignette);
		`); err != nil {
			return err
		}
		s.db.Exec(`INSERT INTO schema_version (version) VALUES (1)`)
	}

	return nil
}

// --- Session archive ---

// SessionRecord is one archived session row.
type SessionRecord struct {
	ID          int64
	SessionID   string
	UserID      string
	Language    string
	Completed   bool
	Turns       int
	FinalStage  Stage
	TotalTokens int
	CreatedAt   time.Time
}

// SaveSession archives a finished generation result. The full conversation
// is stored as JSON in the transcript column.
func (s *Store) SaveSession(ctx context.Context, r *GenerationResult) error {
	transcript, err := json.Marshal(r.Conversation)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, language, completed, turns, final_stage, total_tokens, transcript)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			completed    = excluded.completed,
			turns        = excluded.turns,
			final_stage  = excluded.final_stage,
			total_tokens = excluded.total_tokens,
			transcript   = excluded.transcript`,
		r.Conversation.SessionID, r.Conversation.UserID, r.Conversation.Language,
		boolToInt(r.Completed), r.Turns, string(r.FinalStage), r.TotalUsage.TotalTokens,
		string(transcript),
	)
	return err
}

// LoadSession retrieves an archived conversation by session ID.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*Conversation, error) {
	var transcript string
	err := s.db.QueryRowContext(ctx,
		`SELECT transcript FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&transcript)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal([]byte(transcript), &conv); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return &conv, nil
}

// ListSessions returns the most recent archived sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, language, completed, turns, final_stage, total_tokens, created_at
		FROM sessions
		ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var completed int
		var finalStage, created string
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.UserID, &rec.Language,
			&completed, &rec.Turns, &finalStage, &rec.TotalTokens, &created,
		); err != nil {
			return nil, err
		}
		rec.Completed = completed != 0
		rec.FinalStage = Stage(finalStage)
		rec.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
		results = append(results, rec)
	}
	return results, rows.Err()
}

// --- Run index ---

// RunRecord is one indexed experiment run.
type RunRecord struct {
	ID           int64
	Dir          string
	Model        string
	Vignette     string
	Mode         EvalMode
	Trials       int
	Temperature  float64
	ValidityRate float64
	JaccardValid float64
	CreatedAt    time.Time
}

// RecordRun indexes a finished experiment run.
func (s *Store) RecordRun(ctx context.Context, dir string, cfg ExperimentConfig, m StabilityMetrics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (dir, model, vignette, mode, trials, temperature, validity_rate, jaccard_valid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dir) DO UPDATE SET
			validity_rate = excluded.validity_rate,
			jaccard_valid = excluded.jaccard_valid`,
		dir, cfg.Model, cfg.Vignette, string(cfg.Mode), cfg.Trials, cfg.Temperature,
		m.ValidityRate, m.JaccardValid,
	)
	return err
}

// ListRuns returns indexed runs, optionally filtered by model, newest first.
func (s *Store) ListRuns(ctx context.Context, model string, limit int) ([]RunRecord, error) {
	query := `SELECT id, dir, model, vignette, mode, trials, temperature, validity_rate, jaccard_valid, created_at FROM runs`
	args := []any{}
	if model != "" {
		query += ` WHERE model = ?`
		args = append(args, model)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		var rec RunRecord
		var mode, created string
		if err := rows.Scan(
			&rec.ID, &rec.Dir, &rec.Model, &rec.Vignette, &mode,
			&rec.Trials, &rec.Temperature, &rec.ValidityRate, &rec.JaccardValid, &created,
		); err != nil {
			return nil, err
		}
		rec.Mode = EvalMode(mode)
		rec.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
		results = append(results, rec)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close shuts down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
