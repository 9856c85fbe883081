package dto

import "lumifax/internal/models"

type SubmitBatchResponse struct {
	SessionID string `json:"session_id"`
}

// ProgressEvent is the snapshot pushed to the browser over the event stream.
type ProgressEvent struct {
	Status   string              `json:"status"`
	Progress int                 `json:"progress"`
	Error    string              `json:"error,omitempty"`
	Results  []models.FileResult `json:"results,omitempty"`
}

// Terminal reports whether this is the last event of a session's push lifecycle.
func (e ProgressEvent) Terminal() bool {
	return models.SessionStatus(e.Status).Terminal()
}

type ResultsResponse struct {
	Results []models.FileResult `json:"results"`
}

type ProcessingResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

type DocumentResponse struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	FileName   string `json:"file_name"`
	ModelID    string `json:"model_id"`
	PageCount  int    `json:"page_count"`
	Fields     string `json:"fields"`
	UploadMS   int64  `json:"upload_ms"`
	AnalysisMS int64  `json:"analysis_ms"`
	CreatedAt  string `json:"created_at"`
}
