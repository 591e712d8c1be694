package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
  position        BIGINT       NOT NULL AUTO_INCREMENT,
  id              VARCHAR(36)  NOT NULL,
  session_id      VARCHAR(64)  NOT NULL,
  filename        VARCHAR(255) NOT NULL DEFAULT '',
  media_type      VARCHAR(64)  NOT NULL,
  size            BIGINT       NOT NULL DEFAULT 0,
  image           LONGTEXT     NOT NULL,
  notes           MEDIUMTEXT   NOT NULL,
  status          VARCHAR(16)  NOT NULL,
  failure_stage   VARCHAR(16)  NULL,
  failure_message TEXT         NULL,
  created_at      DATETIME(6)  NOT NULL,
  updated_at      DATETIME(6)  NOT NULL,
  PRIMARY KEY (position),
  UNIQUE KEY uq_note_records_session_id (session_id, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

// Migrate creates the note_records table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
