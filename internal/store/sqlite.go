package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/interview-funnel/internal/domain"
	"github.com/ashureev/interview-funnel/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS quiz_artifacts (
		session_id TEXT PRIMARY KEY,
		quiz_answers_json TEXT,
		quiz_results_json TEXT,
		quiz_completed INTEGER NOT NULL DEFAULT 0,
		email TEXT,
		company_profile_json TEXT,
		research_findings_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_quiz_artifacts_updated ON quiz_artifacts(updated_at);

	CREATE TABLE IF NOT EXISTS interview_transcripts (
		session_id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL,
		phase TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		topics_json TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		question_count INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interview_transcripts_updated ON interview_transcripts(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetArtifacts retrieves quiz artifacts for a funnel session.
func (s *SQLiteStore) GetArtifacts(ctx context.Context, sessionID string) (*domain.QuizArtifacts, error) {
	query := `
		SELECT session_id, quiz_answers_json, quiz_results_json, quiz_completed,
		       email, company_profile_json, research_findings_json, created_at, updated_at
		FROM quiz_artifacts WHERE session_id = ?`

	var a domain.QuizArtifacts
	var answersJSON, resultsJSON, email, profileJSON, findingsJSON sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&a.SessionID, &answersJSON, &resultsJSON, &a.QuizCompleted,
		&email, &profileJSON, &findingsJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan quiz artifacts: %w", err)
	}

	if err := unmarshalNullable(answersJSON, &a.QuizAnswers); err != nil {
		return nil, fmt.Errorf("decode quiz answers: %w", err)
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		a.QuizResults = json.RawMessage(resultsJSON.String)
	}
	if err := unmarshalNullable(profileJSON, &a.CompanyProfile); err != nil {
		return nil, fmt.Errorf("decode company profile: %w", err)
	}
	if err := unmarshalNullable(findingsJSON, &a.ResearchFindings); err != nil {
		return nil, fmt.Errorf("decode research findings: %w", err)
	}
	a.Email = email.String
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}

// UpsertArtifacts creates or replaces quiz artifacts for a funnel session.
func (s *SQLiteStore) UpsertArtifacts(ctx context.Context, a *domain.QuizArtifacts) error {
	if a == nil || a.SessionID == "" {
		return fmt.Errorf("upsert quiz artifacts: session id is required")
	}

	answersJSON, err := marshalNullable(a.QuizAnswers, len(a.QuizAnswers) == 0)
	if err != nil {
		return fmt.Errorf("encode quiz answers: %w", err)
	}
	var resultsJSON interface{}
	if len(a.QuizResults) > 0 {
		resultsJSON = string(a.QuizResults)
	}
	profileJSON, err := marshalNullable(a.CompanyProfile, len(a.CompanyProfile) == 0)
	if err != nil {
		return fmt.Errorf("encode company profile: %w", err)
	}
	findingsJSON, err := marshalNullable(a.ResearchFindings, len(a.ResearchFindings) == 0)
	if err != nil {
		return fmt.Errorf("encode research findings: %w", err)
	}
	var email interface{}
	if a.Email != "" {
		email = a.Email
	}

	now := time.Now()
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
	INSERT INTO quiz_artifacts (
		session_id, quiz_answers_json, quiz_results_json, quiz_completed,
		email, company_profile_json, research_findings_json, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		quiz_answers_json = excluded.quiz_answers_json,
		quiz_results_json = excluded.quiz_results_json,
		quiz_completed = excluded.quiz_completed,
		email = excluded.email,
		company_profile_json = excluded.company_profile_json,
		research_findings_json = excluded.research_findings_json,
		updated_at = excluded.updated_at`

	return s.write(ctx, "upsert quiz artifacts", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			a.SessionID, answersJSON, resultsJSON, a.QuizCompleted,
			email, profileJSON, findingsJSON, createdAt.Unix(), now.Unix(),
		)
		return err
	})
}

// SaveTranscript creates or replaces an interview transcript.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, t *domain.Transcript) error {
	if t == nil || t.SessionID == "" {
		return fmt.Errorf("save transcript: session id is required")
	}

	messagesJSON, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	topicsJSON, err := json.Marshal(t.Topics)
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	var completedAt interface{}
	if !t.CompletedAt.IsZero() {
		completedAt = t.CompletedAt.Unix()
	}

	query := `
	INSERT INTO interview_transcripts (
		session_id, company_name, phase, messages_json, topics_json,
		progress, question_count, completed_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		company_name = excluded.company_name,
		phase = excluded.phase,
		messages_json = excluded.messages_json,
		topics_json = excluded.topics_json,
		progress = excluded.progress,
		question_count = excluded.question_count,
		completed_at = COALESCE(excluded.completed_at, interview_transcripts.completed_at),
		updated_at = excluded.updated_at`

	return s.write(ctx, "save transcript", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			t.SessionID, t.CompanyName, string(t.Phase), string(messagesJSON), string(topicsJSON),
			t.Progress, t.QuestionCount, completedAt, time.Now().Unix(),
		)
		return err
	})
}

// GetTranscript retrieves a saved interview transcript.
func (s *SQLiteStore) GetTranscript(ctx context.Context, sessionID string) (*domain.Transcript, error) {
	query := `
		SELECT session_id, company_name, phase, messages_json, topics_json,
		       progress, question_count, completed_at, updated_at
		FROM interview_transcripts WHERE session_id = ?`

	var t domain.Transcript
	var phase, messagesJSON, topicsJSON string
	var completedAt sql.NullInt64
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&t.SessionID, &t.CompanyName, &phase, &messagesJSON, &topicsJSON,
		&t.Progress, &t.QuestionCount, &completedAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &t.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if err := json.Unmarshal([]byte(topicsJSON), &t.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	t.Phase = domain.Phase(phase)
	if completedAt.Valid {
		t.CompletedAt = time.Unix(completedAt.Int64, 0)
	}
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

// CleanupExpired removes artifacts and transcripts older than ttl.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var artifacts, transcripts int64
	err := s.write(ctx, "cleanup expired", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM quiz_artifacts WHERE updated_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("delete expired artifacts: %w", err)
		}
		if artifacts, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("artifacts rows affected: %w", err)
		}

		res, err = s.db.ExecContext(ctx, `DELETE FROM interview_transcripts WHERE updated_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("delete expired transcripts: %w", err)
		}
		if transcripts, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("transcripts rows affected: %w", err)
		}
		return nil
	})
	return artifacts, transcripts, err
}

func (s *SQLiteStore) write(ctx context.Context, name string, op func(context.Context) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return shared.WithRetry(ctx, shared.DefaultRetryPolicy, name, op)
}

func marshalNullable(v any, empty bool) (interface{}, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalNullable(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}
