package postgres

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

type fakeResult struct {
	affected int64
	err      error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, r.err }

type fakeRow []any

func (row fakeRow) Scan(dest ...any) error {
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *domain.RecordID:
			*d = domain.RecordID(v.(string))
		case *string:
			*d = v.(string)
		case *domain.Status:
			*d = domain.Status(v.(string))
		case *sql.NullString:
			*d = v.(sql.NullString)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unexpected destination type")
		}
	}
	return nil
}


func TestScanRecord(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := fakeRow{
		int64(7), "0190f5c2-7c1a-7b3e-8e3f-1a2b3c4d5e6f", "tab1", "a.png", "image/png", int64(3),
		"data:image/png;base64,YWJj", domain.FailedNotes, "failed",
		sql.NullString{String: "ocr", Valid: true}, sql.NullString{String: "boom", Valid: true},
		now, now,
	}
	rec, err := scanRecord(row)
	if err != nil {
		t.Fatalf("scanRecord error: %v", err)
	}
	if rec.Position != 7 || rec.Status != domain.StatusFailed || rec.Failure == nil || rec.Failure.Stage != domain.StageOCR {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestExpectOne(t *testing.T) {
	if err := expectOne(fakeResult{affected: 1}, nil); err != nil {
		t.Errorf("one row: %v", err)
	}
	if err := expectOne(fakeResult{affected: 0}, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("zero rows: %v", err)
	}
	boom := errors.New("boom")
	if err := expectOne(nil, boom); !errors.Is(err, boom) {
		t.Errorf("exec error: %v", err)
	}
}

func TestFailureColumns(t *testing.T) {
	stage, msg := failureColumns(nil)
	if stage.Valid || msg.Valid {
		t.Fatal("nil failure should map to NULL columns")
	}
	stage, msg = failureColumns(&domain.Failure{Stage: domain.StageOCR, Message: "x"})
	if stage.String != "ocr" || msg.String != "x" || !stage.Valid || !msg.Valid {
		t.Fatalf("unexpected columns: %+v %+v", stage, msg)
	}
}
