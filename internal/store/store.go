// Package store handles SQLite persistence of export history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/gazemap/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for sessions and exports.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			route TEXT NOT NULL,
			source TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS exports (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			page TEXT NOT NULL,
			filename TEXT NOT NULL,
			path TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_exports_created_at ON exports(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_exports_page ON exports(page);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// BeginSession stores a new session and returns its id.
func (s *Store) BeginSession(ctx context.Context, startedAt time.Time, route, source string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, route, source) VALUES (?, ?, ?, ?)`,
		id, startedAt.UTC().Format(timeLayout), route, source)
	if err != nil {
		return "", err
	}
	return id, nil
}

// EndSession records the session end time.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		endedAt.UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// InsertExport stores one export record.
func (s *Store) InsertExport(ctx context.Context, rec model.ExportRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (session_id, kind, page, filename, path, row_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		string(rec.Kind),
		rec.Page,
		rec.Filename,
		rec.Path,
		rec.Rows,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func historyFilter(cfg model.HistoryConfig) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Page != "" {
		clauses = append(clauses, "page = ?")
		args = append(args, cfg.Page)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, cfg.Since.UTC().Format(timeLayout))
	}
	return strings.Join(clauses, " AND "), args
}

// ListExports returns exports filtered by cfg, newest first.
func (s *Store) ListExports(ctx context.Context, cfg model.HistoryConfig) ([]model.ExportRecord, error) {
	where, args := historyFilter(cfg)
	query := fmt.Sprintf(`SELECT id, session_id, kind, page, filename, path, row_count, created_at
		FROM exports
		WHERE %s
		ORDER BY created_at DESC, id DESC`, where)
	if cfg.Last > 0 {
		query += " LIMIT ?"
		args = append(args, cfg.Last)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.ExportRecord
	for rows.Next() {
		var rec model.ExportRecord
		var kind, createdAt string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &kind, &rec.Page, &rec.Filename, &rec.Path, &rec.Rows, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, err
		}
		rec.Kind = model.ArtifactKind(kind)
		rec.CreatedAt = parsed
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PageAggregates summarizes exports per page, most recently exported first.
func (s *Store) PageAggregates(ctx context.Context, cfg model.HistoryConfig) ([]model.PageAggregate, error) {
	where, args := historyFilter(cfg)
	query := fmt.Sprintf(`SELECT page, COUNT(*) AS exports,
		SUM(CASE WHEN kind = ? THEN row_count ELSE 0 END) AS samples,
		MAX(created_at) AS last_export
		FROM exports
		WHERE %s
		GROUP BY page
		ORDER BY last_export DESC`, where)
	args = append([]any{string(model.ArtifactCSV)}, args...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.PageAggregate
	for rows.Next() {
		var agg model.PageAggregate
		var last string
		if err := rows.Scan(&agg.Page, &agg.Exports, &agg.Samples, &last); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, last)
		if err != nil {
			return nil, err
		}
		agg.LastExport = parsed
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListSessions returns the most recent sessions with their export counts.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]model.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT s.id, s.started_at, s.ended_at, s.route, s.source,
		(SELECT COUNT(*) FROM exports e WHERE e.session_id = s.id) AS exports
		FROM sessions s
		ORDER BY s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.SessionRecord
	for rows.Next() {
		var rec model.SessionRecord
		var started string
		var ended sql.NullString
		if err := rows.Scan(&rec.ID, &started, &ended, &rec.Route, &rec.Source, &rec.Exports); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, started)
		if err != nil {
			return nil, err
		}
		rec.StartedAt = parsed
		if ended.Valid {
			endedAt, err := time.Parse(timeLayout, ended.String)
			if err != nil {
				return nil, err
			}
			rec.EndedAt = &endedAt
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
