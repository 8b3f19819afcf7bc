package repository

import (
	"context"
	"database/sql"
)

// DDL is kept portable between Postgres (production) and SQLite (tests):
// TEXT ids, BIGINT counters, timestamps bound from the application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id      TEXT PRIMARY KEY,
		api_key TEXT NOT NULL UNIQUE,
		credits BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS endpoints (
		id            TEXT PRIMARY KEY,
		account_id    TEXT NOT NULL REFERENCES accounts(id),
		schema_json   TEXT NOT NULL,
		analysis_mode TEXT NOT NULL DEFAULT 'vision_first',
		callback_url  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		account_id  TEXT NOT NULL REFERENCES accounts(id),
		endpoint_id TEXT NOT NULL REFERENCES endpoints(id),
		status      TEXT NOT NULL DEFAULT 'processing',
		tokens_used BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS job_logs (
		id          TEXT PRIMARY KEY,
		job_id      TEXT NOT NULL REFERENCES jobs(id),
		payload_out TEXT NOT NULL,
		error       TEXT,
		credit_use  BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_account ON jobs(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_job_logs_job ON job_logs(job_id)`,
}

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
