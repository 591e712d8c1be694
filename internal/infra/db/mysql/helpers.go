package mysql

import (
	"database/sql"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

// failureColumns splits a failure into nullable columns
func failureColumns(f *domain.Failure) (sql.NullString, sql.NullString) {
	if f == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: string(f.Stage), Valid: true},
		sql.NullString{String: f.Message, Valid: true}
}

// failureFromColumns is the inverse of failureColumns
func failureFromColumns(stage, message sql.NullString) *domain.Failure {
	if !stage.Valid {
		return nil
	}
	return &domain.Failure{Stage: domain.Stage(stage.String), Message: message.String}
}
