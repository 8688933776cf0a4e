package store

import (
	"context"
	"database/sql"
)

const schemaVersion = 1

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= schemaVersion {
		return tx.Commit()
	}

	stmts := []string{`
CREATE TABLE IF NOT EXISTS seen_postings (
  posting_key  TEXT PRIMARY KEY,
  posting_id   TEXT NOT NULL DEFAULT '',
  company_norm TEXT NOT NULL,
  title_norm   TEXT NOT NULL,
  company      TEXT NOT NULL DEFAULT '',
  title        TEXT NOT NULL DEFAULT '',
  url          TEXT NOT NULL DEFAULT '',
  score        INTEGER NOT NULL DEFAULT 0,
  status       TEXT NOT NULL,
  run_id       TEXT NOT NULL DEFAULT '',
  created_at   TEXT NOT NULL
);`, `
CREATE INDEX IF NOT EXISTS idx_seen_postings_id
ON seen_postings(posting_id);`, `
CREATE INDEX IF NOT EXISTS idx_seen_postings_company_title
ON seen_postings(company_norm, title_norm);`,
		`PRAGMA user_version = 1;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return tx.Commit()
}
