// Package history persists completed dictations in a local SQLite database
// and serves the dashboard statistics derived from them.
//
// Only completed sessions with non-empty text are stored. Cancelled and
// failed sessions leave no trace, which keeps the stats honest and the
// history free of noise.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voicekey/voicekey/internal/session"
)

// dbFileName is the database file inside the data directory.
const dbFileName = "voicekey.db"

// typingWPM is the assumed typing speed used to estimate saved time. Forty
// words per minute is a conservative average for non-professional typists.
const typingWPM = 40

// Entry is one stored dictation.
type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	ModeID     string    `json:"mode_id"`
	Provider   string    `json:"provider,omitempty"`
	RawText    string    `json:"raw_text"`
	FinalText  string    `json:"final_text"`
	WordCount  int       `json:"word_count"`
	DurationMs int64     `json:"duration_ms"`
}

// Stats is the dashboard summary across the whole history.
type Stats struct {
	TotalDictations int `json:"total_dictations"`
	TotalWords      int `json:"total_words"`
	WordsThisWeek   int `json:"words_this_week"`

	// ModeCounts is the number of dictations per mode id.
	ModeCounts map[string]int `json:"mode_counts"`

	// AverageWPM is dictated words per minute of recorded speaking time.
	AverageWPM float64 `json:"average_wpm"`

	// SavedMinutes estimates typing time avoided, assuming 40 words per
	// minute at the keyboard.
	SavedMinutes float64 `json:"saved_minutes"`
}

// Store wraps the SQLite database. Safe for concurrent use; database/sql
// pools connections internally.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database under dataDir.
func Open(dataDir string) (*Store, error) {
	return openPath(filepath.Join(dataDir, dbFileName))
}

// OpenPath opens the database at an explicit path. Used by tests.
func OpenPath(path string) (*Store, error) {
	return openPath(path)
}

func openPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	// WAL lets the control surface read history while a session writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dictations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		mode_id TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		raw_text TEXT NOT NULL,
		final_text TEXT NOT NULL,
		word_count INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dictations_timestamp ON dictations(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts one entry and fills in its ID.
func (s *Store) Save(ctx context.Context, e *Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dictations (
			session_id, timestamp, mode_id, provider,
			raw_text, final_text, word_count, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Timestamp, e.ModeID, e.Provider,
		e.RawText, e.FinalText, e.WordCount, e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("history: last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// List returns entries newest first, with pagination.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp, mode_id, provider,
		       raw_text, final_text, word_count, duration_ms
		FROM dictations
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.ModeID, &e.Provider,
			&e.RawText, &e.FinalText, &e.WordCount, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes one entry by ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dictations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("history: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("history: entry %d not found", id)
	}
	return nil
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dictations`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Stats computes the dashboard summary.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var totalDurationMs sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(word_count), 0), COALESCE(SUM(duration_ms), 0)
		FROM dictations`).
		Scan(&st.TotalDictations, &st.TotalWords, &totalDurationMs)
	if err != nil {
		return Stats{}, fmt.Errorf("history: stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(word_count), 0)
		FROM dictations
		WHERE timestamp >= datetime('now', '-7 days')`).
		Scan(&st.WordsThisWeek)
	if err != nil {
		return Stats{}, fmt.Errorf("history: weekly stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT mode_id, COUNT(*)
		FROM dictations
		GROUP BY mode_id`)
	if err != nil {
		return Stats{}, fmt.Errorf("history: mode stats: %w", err)
	}
	defer rows.Close()
	st.ModeCounts = make(map[string]int)
	for rows.Next() {
		var modeID string
		var n int
		if err := rows.Scan(&modeID, &n); err != nil {
			return Stats{}, fmt.Errorf("history: scan mode stats: %w", err)
		}
		st.ModeCounts[modeID] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("history: mode stats: %w", err)
	}

	if totalDurationMs.Valid && totalDurationMs.Int64 > 0 {
		minutes := float64(totalDurationMs.Int64) / 60000.0
		st.AverageWPM = float64(st.TotalWords) / minutes
	}
	st.SavedMinutes = float64(st.TotalWords) / typingWPM

	return st, nil
}

// Recorder adapts the store to the session layer's history contract.
type Recorder struct {
	store *Store
}

// NewRecorder wraps store for use as a [session.Recorder].
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Record implements session.Recorder.
func (r *Recorder) Record(ctx context.Context, res session.Result) error {
	return r.store.Save(ctx, &Entry{
		SessionID:  res.ID,
		ModeID:     res.ModeID,
		Provider:   res.Provider,
		RawText:    res.RawTranscript,
		FinalText:  res.FinalText,
		WordCount:  res.WordCount,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// Compile-time interface assertion.
var _ session.Recorder = (*Recorder)(nil)
