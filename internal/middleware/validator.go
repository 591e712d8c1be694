package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Input validation and sanitization utilities

var sessionPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateSessionID validates session ID format
func ValidateSessionID(session string) error {
	if session == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if !sessionPattern.MatchString(session) {
		return fmt.Errorf("invalid session ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateRecordID validates record ID format (UUID)
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid record ID format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

const maxFilenameBytes = 255

// SanitizeFilename keeps the base name of an uploaded file, without path or control characters.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(SanitizeString(name), "\n", "")
	if len(name) > maxFilenameBytes {
		// cut on a rune boundary so the name stays valid UTF-8
		cut := maxFilenameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return name
}

// RequireValidSession rejects requests whose {session} URL param is malformed.
// Mount it inside the route that declares the param.
func RequireValidSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ValidateSessionID(chi.URLParam(r, "session")); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}
