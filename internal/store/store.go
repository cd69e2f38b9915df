// Package store keeps buddy's local state in SQLite: the history of flow
// runs, the audit log of supervision decisions and provider API keys.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"buddy/internal/domain"
)

// ErrNotFound is returned when a provider has no stored or exported API key.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements domain.RunStore, the audit logger of the
// supervision policy and the provider secret store.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	audit  bool
	getenv func(string) string
}

type Options struct {
	// AuditLog disables LogAudit when false.
	AuditLog bool
	Logger   *slog.Logger
}

func Open(dbPath string, opts Options) (*SQLiteStore, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db, opts.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: opts.Logger, audit: opts.AuditLog, getenv: os.Getenv}, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

func (s *SQLiteStore) StartRun(ctx context.Context, run domain.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("start run: empty id")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, variant, task, provider, model, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Variant, run.Task, run.Provider, run.Model, run.Status, run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records the final state of a run. A run that was never started
// is inserted.
func (s *SQLiteStore) FinishRun(ctx context.Context, run domain.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("finish run: empty id")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, variant, task, provider, model, status, iterations,
		                   prompt_tokens, completion_tokens, summary, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   iterations = excluded.iterations,
		   prompt_tokens = excluded.prompt_tokens,
		   completion_tokens = excluded.completion_tokens,
		   summary = excluded.summary,
		   error = excluded.error,
		   finished_at = excluded.finished_at`,
		run.ID, run.Variant, run.Task, run.Provider, run.Model, run.Status, run.Iterations,
		run.Usage.PromptTokens, run.Usage.CompletionTokens, run.Summary, run.Error,
		run.StartedAt.UTC(), finished,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, variant, task, provider, model, status, iterations,
		        prompt_tokens, completion_tokens, summary, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Variant, &r.Task, &r.Provider, &r.Model, &r.Status, &r.Iterations,
			&r.Usage.PromptTokens, &r.Usage.CompletionTokens, &r.Summary, &r.Error,
			&r.StartedAt, &finished); err != nil {
			return nil, err
		}
		r.Usage.TotalTokens = r.Usage.PromptTokens + r.Usage.CompletionTokens
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Audit log ---

func (s *SQLiteStore) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	if !s.audit {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (run_id, action, tool_name, command, result, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Action, entry.ToolName, entry.Command, entry.Result, entry.Details,
	)
	return err
}

// AuditEntries returns the audit entries of one run in the order they were
// written.
func (s *SQLiteStore) AuditEntries(ctx context.Context, runID string) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, action, COALESCE(tool_name, ''), COALESCE(command, ''), COALESCE(result, ''), COALESCE(details, '')
		 FROM audit_log WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.RunID, &e.Action, &e.ToolName, &e.Command, &e.Result, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- API keys ---

// EnvKey is the environment variable consulted when no key is stored for
// provider, e.g. OPENAI_API_KEY.
func EnvKey(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}

// APIKey returns the stored key of provider, falling back to its environment
// variable. It wraps ErrNotFound when neither is set.
func (s *SQLiteStore) APIKey(ctx context.Context, provider string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `SELECT api_key FROM api_keys WHERE provider = ?`, provider).Scan(&key)
	switch {
	case err == nil && key != "":
		return key, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("read api key: %w", err)
	}
	if key = strings.TrimSpace(s.getenv(EnvKey(provider))); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("api key for %s: %w (run `buddy use provider %s` or export %s)", provider, ErrNotFound, provider, EnvKey(provider))
}

func (s *SQLiteStore) SetAPIKey(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("api key for %s is empty", provider)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (provider, api_key, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET api_key = excluded.api_key, updated_at = excluded.updated_at`,
		provider, key, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored key of provider. Removing a missing key is
// not an error.
func (s *SQLiteStore) DeleteAPIKey(ctx context.Context, provider string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE provider = ?`, provider); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// KeyedProviders lists the providers with a stored key, sorted.
func (s *SQLiteStore) KeyedProviders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider FROM api_keys ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
