// Package store persists the postings a run has already scored so later runs
// skip them. It is backed by an embedded sqlite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/job-harvester/internal/posting"

	_ "modernc.org/sqlite"
)

const (
	// StatusScored marks a posting that went through the match scorer only.
	StatusScored = "analyzed"
	// StatusEscalated marks a posting that also received an escalation review.
	StatusEscalated = "escalated"
)

var now = time.Now

// Store is the dedup store. One process writes to it at a time.
type Store struct {
	db *sql.DB
}

// Record is one seen-posting row.
type Record struct {
	Key       string
	PostingID string
	Company   string
	Title     string
	URL       string
	Score     int
	Status    string
	RunID     string
	CreatedAt time.Time
}

// Open opens (creating if needed) the sqlite database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// sqlite wants a single writer.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// IsProcessed reports whether p was recorded before, either under the same
// source id or under the same normalized company and title.
func (s *Store) IsProcessed(ctx context.Context, p *posting.Posting) (bool, error) {
	company := posting.Normalize(p.Company)
	title := posting.Normalize(p.Title)

	query := `
SELECT 1 FROM seen_postings
WHERE posting_key = ?
   OR (posting_id <> '' AND posting_id = ?)`
	args := []any{p.Key(), p.ID}

	// Blank company or title carries no identity.
	if company != "" && title != "" {
		query += `
   OR (company_norm <> '' AND title_norm <> '' AND company_norm = ? AND title_norm = ?)`
		args = append(args, company, title)
	}

	var found int
	err := s.db.QueryRowContext(ctx, query+`
LIMIT 1`, args...).Scan(&found)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %q: %w", p.Key(), err)
	}
	return true, nil
}

// Record stores p with its score unless a row with the same key exists.
// It reports whether a new row was written; an existing row is never updated.
func (s *Store) Record(ctx context.Context, p *posting.Posting, score int, status, runID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO seen_postings
  (posting_key, posting_id, company_norm, title_norm, company, title, url, score, status, run_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Key(),
		p.ID,
		posting.Normalize(p.Company),
		posting.Normalize(p.Title),
		p.Company,
		p.Title,
		p.ApplyURL,
		score,
		status,
		runID,
		now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("record %q: %w", p.Key(), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record %q: %w", p.Key(), err)
	}
	return n > 0, nil
}

// Count returns the number of recorded postings.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_postings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Get returns the row stored under key, or nil when absent.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	var (
		r       Record
		created string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT posting_key, posting_id, company, title, url, score, status, run_id, created_at
FROM seen_postings WHERE posting_key = ?`, key,
	).Scan(&r.Key, &r.PostingID, &r.Company, &r.Title, &r.URL, &r.Score, &r.Status, &r.RunID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}

	if t, err := time.Parse(time.RFC3339, created); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}
