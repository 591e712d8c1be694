package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS note_records (
  position        BIGSERIAL    PRIMARY KEY,
  id              VARCHAR(36)  NOT NULL,
  session_id      VARCHAR(64)  NOT NULL,
  filename        VARCHAR(255) NOT NULL DEFAULT '',
  media_type      VARCHAR(64)  NOT NULL,
  size            BIGINT       NOT NULL DEFAULT 0,
  image           TEXT         NOT NULL,
  notes           TEXT         NOT NULL,
  status          VARCHAR(16)  NOT NULL,
  failure_stage   VARCHAR(16),
  failure_message TEXT,
  created_at      TIMESTAMPTZ  NOT NULL,
  updated_at      TIMESTAMPTZ  NOT NULL,
  UNIQUE (session_id, id)
);`

// Migrate creates the note_records table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
