// Package manifest provides the persistent sub-request manifest backing
// resumable download batches. SQLite in WAL mode; the store is the only
// shared mutable state in the pipeline, and every status transition goes
// through a single synchronized update path.
package manifest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
)

// Store wraps the manifest database.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Counts summarizes a batch by sub-request status.
type Counts struct {
	Pending  int `json:"pending"`
	Running  int `json:"running"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
}

// Done reports whether the batch has no further work: nothing pending and
// nothing running. A batch with failures is done but partially failed.
func (c Counts) Done() bool { return c.Pending == 0 && c.Running == 0 }

// Open creates or opens the manifest database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping manifest: %w", err)
	}

	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate manifest: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the manifest database is reachable.
func (s *Store) Ping() error { return s.db.Ping() }

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id         TEXT PRIMARY KEY,
			spec_json  TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sub_requests (
			id          TEXT NOT NULL,
			batch_id    TEXT NOT NULL,
			variables   TEXT NOT NULL,
			year        INTEGER NOT NULL,
			start_month INTEGER NOT NULL,
			end_month   INTEGER NOT NULL,
			area_json   TEXT NOT NULL,
			format      TEXT NOT NULL,
			status      TEXT NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0,
			last_error  TEXT NOT NULL DEFAULT '',
			updated_at  INTEGER NOT NULL,
			file_path   TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (batch_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sub_requests_status ON sub_requests (batch_id, status)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// CreateBatch persists a batch and its sub-requests in one transaction.
func (s *Store) CreateBatch(batchID string, spec domain.RequestSpec, subs []domain.SubRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := domain.Clock().Now().Unix()
	if _, err := tx.Exec(
		`INSERT INTO batches (id, spec_json, created_at) VALUES (?, ?, ?)`,
		batchID, string(specJSON), now,
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for _, sub := range subs {
		area, err := json.Marshal(sub.Area)
		if err != nil {
			return fmt.Errorf("marshal area: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO sub_requests
			 (id, batch_id, variables, year, start_month, end_month, area_json, format, status, attempts, last_error, updated_at, file_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`,
			sub.ID, batchID, strings.Join(sub.Variables, ","), sub.Year,
			int(sub.StartMonth), int(sub.EndMonth), string(area), sub.Format,
			string(sub.Status), now, sub.FilePath,
		); err != nil {
			return fmt.Errorf("insert sub-request %s: %w", sub.ID, err)
		}
	}
	return tx.Commit()
}

// Transition records a status change for one sub-request. It is the single
// update path for statuses; concurrent workers serialize here.
func (s *Store) Transition(batchID, subID string, status domain.Status, attempts int, lastErr, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE sub_requests
		 SET status = ?, attempts = ?, last_error = ?, file_path = ?, updated_at = ?
		 WHERE batch_id = ? AND id = ?`,
		string(status), attempts, lastErr, filePath, domain.Clock().Now().Unix(), batchID, subID,
	)
	if err != nil {
		return fmt.Errorf("transition %s: %w", subID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sub-request %s not found in batch %s", subID, batchID)
	}
	return nil
}

// SubRequests returns the batch's sub-requests, optionally filtered by
// status. Results are ordered by year then id for deterministic dispatch.
func (s *Store) SubRequests(batchID string, statuses ...domain.Status) ([]domain.SubRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, batch_id, variables, year, start_month, end_month, area_json, format,
	                 status, attempts, last_error, updated_at, file_path
	          FROM sub_requests WHERE batch_id = ?`
	args := []any{batchID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY year, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.SubRequest
	for rows.Next() {
		sub, err := scanSubRequest(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// StatusCounts returns per-status counts for a batch.
func (s *Store) StatusCounts(batchID string) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT status, COUNT(*) FROM sub_requests WHERE batch_id = ? GROUP BY status`,
		batchID,
	)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	var c Counts
	found := false
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		found = true
		switch domain.Status(status) {
		case domain.StatusPending, domain.StatusSubmitted:
			c.Pending += n
		case domain.StatusRunning:
			c.Running += n
		case domain.StatusComplete:
			c.Complete += n
		case domain.StatusFailed:
			c.Failed += n
		}
	}
	if err := rows.Err(); err != nil {
		return Counts{}, err
	}
	if !found {
		return Counts{}, fmt.Errorf("batch %s not found", batchID)
	}
	return c, nil
}

// Spec returns the original request spec for a batch.
func (s *Store) Spec(batchID string) (domain.RequestSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var specJSON string
	err := s.db.QueryRow(`SELECT spec_json FROM batches WHERE id = ?`, batchID).Scan(&specJSON)
	if err == sql.ErrNoRows {
		return domain.RequestSpec{}, fmt.Errorf("batch %s not found", batchID)
	}
	if err != nil {
		return domain.RequestSpec{}, err
	}
	var spec domain.RequestSpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return domain.RequestSpec{}, fmt.Errorf("unmarshal spec: %w", err)
	}
	return spec, nil
}

// Batches lists all batch IDs, newest first.
func (s *Store) Batches() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id FROM batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubRequest(r rowScanner) (domain.SubRequest, error) {
	var sub domain.SubRequest
	var variables, areaJSON, status string
	var startMonth, endMonth int
	var updatedAt int64

	if err := r.Scan(&sub.ID, &sub.BatchID, &variables, &sub.Year, &startMonth, &endMonth,
		&areaJSON, &sub.Format, &status, &sub.Attempts, &sub.LastError, &updatedAt, &sub.FilePath); err != nil {
		return domain.SubRequest{}, err
	}

	sub.Variables = strings.Split(variables, ",")
	sub.StartMonth = time.Month(startMonth)
	sub.EndMonth = time.Month(endMonth)
	sub.Status = domain.Status(status)
	sub.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if err := json.Unmarshal([]byte(areaJSON), &sub.Area); err != nil {
		return domain.SubRequest{}, fmt.Errorf("unmarshal area: %w", err)
	}
	return sub, nil
}
