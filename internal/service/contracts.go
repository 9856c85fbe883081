package service

import (
	"context"
	"errors"

	"lumifax/internal/models"
)

var (
	ErrNoFiles       = errors.New("at least one file is required")
	ErrNoModel       = errors.New("model selection is required")
	ErrTooManyFiles  = errors.New("batch exceeds the maximum file count")
	ErrChannelClosed = errors.New("delivery channel is closed")
	ErrChannelFull   = errors.New("delivery channel buffer is full")
)

// OperationState is the engine-side status of one analysis operation.
type OperationState string

const (
	OperationRunning   OperationState = "running"
	OperationSucceeded OperationState = "succeeded"
	OperationFailed    OperationState = "failed"
)

// OperationStatus is one poll observation of a running analysis.
type OperationStatus struct {
	State  OperationState
	Fields map[string]models.ExtractedField
	Error  string
}

// AnalysisOperation is a pollable handle returned by the engine for one file.
type AnalysisOperation interface {
	Poll(ctx context.Context) (*OperationStatus, error)
}

// AnalysisEngine is the external document-understanding service.
type AnalysisEngine interface {
	BeginAnalysis(ctx context.Context, modelID, fileName string, content []byte) (AnalysisOperation, error)
}

// Channel is a live delivery path for one session's serialized progress
// events. The transport owns its lifetime; the emitter only holds a
// reference and closes it once the terminal event has been delivered.
type Channel interface {
	Send(payload string) error
	Close()
}

// DocumentStore persists completed per-file results.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	ListBySessionID(ctx context.Context, sessionID string) ([]*models.Document, error)
}
