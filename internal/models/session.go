package models

import "time"

type SessionStatus string

const (
	StatusProcessing SessionStatus = "processing"
	StatusSuccess    SessionStatus = "success"
	StatusError      SessionStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// ExtractedField is one recognized field from the analysis engine.
type ExtractedField struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"`
}

// FileResult is the outcome of analyzing one file in a batch.
type FileResult struct {
	FileName   string                    `json:"file_name"`
	ModelID    string                    `json:"model_id"`
	PageCount  int                       `json:"page_count,omitempty"`
	Fields     map[string]ExtractedField `json:"fields"`
	UploadMS   int64                     `json:"upload_ms"`
	AnalysisMS int64                     `json:"analysis_ms"`
}

// Session is the lifetime state of one batch submission.
type Session struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	Progress  int           `json:"progress"`
	Error     string        `json:"error,omitempty"`
	Results   []FileResult  `json:"results"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
