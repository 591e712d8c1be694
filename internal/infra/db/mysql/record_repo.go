package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const selectColumns = `
SELECT position, id, session_id, filename, media_type, size, image, notes, status,
       failure_stage, failure_message, created_at, updated_at
FROM note_records`

// Append inserts a record; position comes from AUTO_INCREMENT
func (r *RecordRepository) Append(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO note_records
  (id, session_id, filename, media_type, size, image, notes, status,
   failure_stage, failure_message, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?);`

	stage, msg := failureColumns(rec.Failure)
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	res, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.SessionID, rec.Filename, rec.MediaType, rec.Size, rec.Image, rec.Notes, rec.Status,
		stage, msg, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	pos, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.Position = pos
	return nil
}

// Get by session + id
func (r *RecordRepository) Get(ctx context.Context, session string, id domain.RecordID) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE session_id=? AND id=? LIMIT 1;`, session, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// List records of a session in insertion order
func (r *RecordRepository) List(ctx context.Context, session string) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE session_id=? ORDER BY position ASC;`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *RecordRepository) UpdateResult(ctx context.Context, session string, id domain.RecordID, res domain.Result) error {
	const q = `
UPDATE note_records
SET notes=?, status=?, failure_stage=?, failure_message=?, updated_at=?
WHERE session_id=? AND id=?;`
	stage, msg := failureColumns(res.Failure)
	return expectOne(r.db.ExecContext(ctx, q, res.Notes, res.Status, stage, msg, time.Now().UTC(), session, id))
}

func (r *RecordRepository) UpdateStatus(ctx context.Context, session string, id domain.RecordID, status domain.Status) error {
	const q = `UPDATE note_records SET status=?, updated_at=? WHERE session_id=? AND id=?;`
	return expectOne(r.db.ExecContext(ctx, q, status, time.Now().UTC(), session, id))
}

func (r *RecordRepository) Delete(ctx context.Context, session string, id domain.RecordID) error {
	const q = `DELETE FROM note_records WHERE session_id=? AND id=?;`
	return expectOne(r.db.ExecContext(ctx, q, session, id))
}

func (r *RecordRepository) Clear(ctx context.Context, session string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM note_records WHERE session_id=?;`, session)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var stage, msg sql.NullString
	if err := s.Scan(
		&rec.Position, &rec.ID, &rec.SessionID, &rec.Filename, &rec.MediaType, &rec.Size,
		&rec.Image, &rec.Notes, &rec.Status, &stage, &msg, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Failure = failureFromColumns(stage, msg)
	return &rec, nil
}

// expectOne maps "no row affected" to ErrNotFound.
// MySQL reports 0 affected rows when an UPDATE writes identical values, but
// updated_at always changes so a matched row is always counted.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
