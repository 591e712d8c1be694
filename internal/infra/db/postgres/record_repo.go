package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

type RecordRepository struct { db *sql.DB }

func NewRecordRepository(db *sql.DB) *RecordRepository { return &RecordRepository{db: db} }

const selectColumns = `
SELECT position, id, session_id, filename, media_type, size, image, notes, status,
       failure_stage, failure_message, created_at, updated_at
FROM note_records`

// Append inserts a record; position comes from the BIGSERIAL column
func (r *RecordRepository) Append(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO note_records
(id, session_id, filename, media_type, size, image, notes, status,
 failure_stage, failure_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING position;`

	stage, msg := failureColumns(rec.Failure)
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() { rec.CreatedAt = now }
	if rec.UpdatedAt.IsZero() { rec.UpdatedAt = now }

	return r.db.QueryRowContext(ctx, q,
		rec.ID, rec.SessionID, rec.Filename, rec.MediaType, rec.Size, rec.Image, rec.Notes, rec.Status,
		stage, msg, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.Position)
}

// Get by session + id
func (r *RecordRepository) Get(ctx context.Context, session string, id domain.RecordID) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE session_id=$1 AND id=$2 LIMIT 1;`, session, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) { return nil, domain.ErrNotFound }
	return rec, err
}

// List records of a session in insertion order
func (r *RecordRepository) List(ctx context.Context, session string) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE session_id=$1 ORDER BY position ASC;`, session)
	if err != nil { return nil, err }
	defer rows.Close()

	out := []*domain.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil { return nil, err }
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *RecordRepository) UpdateResult(ctx context.Context, session string, id domain.RecordID, res domain.Result) error {
	const q = `
UPDATE note_records
SET notes=$1, status=$2, failure_stage=$3, failure_message=$4, updated_at=$5
WHERE session_id=$6 AND id=$7;`
	stage, msg := failureColumns(res.Failure)
	return expectOne(r.db.ExecContext(ctx, q, res.Notes, res.Status, stage, msg, time.Now().UTC(), session, id))
}

func (r *RecordRepository) UpdateStatus(ctx context.Context, session string, id domain.RecordID, status domain.Status) error {
	const q = `UPDATE note_records SET status=$1, updated_at=$2 WHERE session_id=$3 AND id=$4;`
	return expectOne(r.db.ExecContext(ctx, q, status, time.Now().UTC(), session, id))
}

func (r *RecordRepository) Delete(ctx context.Context, session string, id domain.RecordID) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM note_records WHERE session_id=$1 AND id=$2;`, session, id))
}

func (r *RecordRepository) Clear(ctx context.Context, session string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM note_records WHERE session_id=$1;`, session)
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(s rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var stage, msg sql.NullString
	if err := s.Scan(
		&rec.Position, &rec.ID, &rec.SessionID, &rec.Filename, &rec.MediaType, &rec.Size,
		&rec.Image, &rec.Notes, &rec.Status, &stage, &msg, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if stage.Valid {
		rec.Failure = &domain.Failure{Stage: domain.Stage(stage.String), Message: msg.String}
	}
	return &rec, nil
}

func failureColumns(f *domain.Failure) (sql.NullString, sql.NullString) {
	if f == nil { return sql.NullString{}, sql.NullString{} }
	return sql.NullString{String: string(f.Stage), Valid: true}, sql.NullString{String: f.Message, Valid: true}
}

func expectOne(res sql.Result, err error) error {
	if err != nil { return err }
	n, err := res.RowsAffected()
	if err != nil { return err }
	if n == 0 { return domain.ErrNotFound }
	return nil
}
