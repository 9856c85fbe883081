package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a persisted per-file analysis record.
type Document struct {
	ID         uuid.UUID `db:"id"`
	SessionID  string    `db:"session_id"`
	FileName   string    `db:"file_name"`
	ModelID    string    `db:"model_id"`
	PageCount  int       `db:"page_count"`
	Fields     string    `db:"fields"` // JSON-encoded field map
	UploadMS   int64     `db:"upload_ms"`
	AnalysisMS int64     `db:"analysis_ms"`
	CreatedAt  time.Time `db:"created_at"`
}
