package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"lumifax/internal/dto"
	"lumifax/internal/models"
	"lumifax/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadedFile is one document blob from a batch submission, read off the
// multipart body before the request returns.
type UploadedFile struct {
	Name    string
	Content []byte
}

// BatchService is the dispatcher: it allocates a session, kicks off the
// detached analysis driver and returns immediately. The driver then owns all
// mutation of that session.
type BatchService struct {
	store   *SessionStore
	emitter *ProgressEmitter
	engine  AnalysisEngine
	docs    DocumentStore
	cfg     config.Config
	logger  *zap.Logger
}

func NewBatchService(
	store *SessionStore,
	emitter *ProgressEmitter,
	engine AnalysisEngine,
	docs DocumentStore,
	cfg config.Config,
	logger *zap.Logger,
) *BatchService {
	return &BatchService{
		store:   store,
		emitter: emitter,
		engine:  engine,
		docs:    docs,
		cfg:     cfg,
		logger:  logger,
	}
}

// Submit validates the batch, creates the session and schedules background
// processing. It does not wait for any file to be analyzed.
func (s *BatchService) Submit(files []UploadedFile, modelID string) (string, error) {
	if len(files) == 0 {
		return "", ErrNoFiles
	}
	if modelID == "" {
		return "", ErrNoModel
	}
	if len(files) > s.cfg.Batch.MaxFiles {
		return "", ErrTooManyFiles
	}

	sessionID := uuid.New().String()
	s.store.Create(sessionID)

	s.logger.Info("Batch accepted",
		zap.String("session_id", sessionID),
		zap.String("model_id", modelID),
		zap.Int("files", len(files)),
	)

	// The originating request returns before this completes; the driver
	// gets its own context.
	go s.processBatch(context.Background(), sessionID, files, modelID)

	return sessionID, nil
}

// processBatch is the per-session analysis driver. Files are processed one
// at a time in submission order; a single file's failure is logged and
// skipped, never aborting the batch.
func (s *BatchService) processBatch(ctx context.Context, sessionID string, files []UploadedFile, modelID string) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("batch processing failed: %v", r)
			s.logger.Error("Batch driver panicked",
				zap.String("session_id", sessionID),
				zap.Any("panic", r),
			)
			s.terminate(sessionID, models.StatusError, msg, nil)
		}
	}()

	total := len(files)
	var results []models.FileResult

	for i, file := range files {
		progress := int(math.Round(float64(i) / float64(total) * 100))
		s.store.Update(sessionID, SessionUpdate{Progress: &progress})
		s.publishSnapshot(sessionID)

		result, err := s.processFile(ctx, sessionID, modelID, file)
		if err != nil {
			s.logger.Warn("File analysis failed, skipping",
				zap.String("session_id", sessionID),
				zap.String("file", file.Name),
				zap.Error(err),
			)
			continue
		}

		results = append(results, *result)
		s.store.Update(sessionID, SessionUpdate{Results: results})
		s.persist(ctx, sessionID, result)
		s.publishSnapshot(sessionID)
	}

	s.terminate(sessionID, models.StatusSuccess, "", results)
}

// processFile runs one file through the engine: begin, then poll at the
// configured interval until the operation reaches a terminal state or the
// poll deadline passes. Elapsed time is recorded per phase.
func (s *BatchService) processFile(ctx context.Context, sessionID, modelID string, file UploadedFile) (*models.FileResult, error) {
	uploadStart := time.Now()
	op, err := s.engine.BeginAnalysis(ctx, modelID, file.Name, file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to start analysis: %w", err)
	}
	uploadMS := time.Since(uploadStart).Milliseconds()

	analysisStart := time.Now()
	deadline := analysisStart.Add(s.cfg.Analysis.PollTimeout)
	var fields map[string]models.ExtractedField
	for {
		status, err := op.Poll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to poll analysis: %w", err)
		}
		if status.State == OperationSucceeded {
			fields = status.Fields
			break
		}
		if status.State == OperationFailed {
			return nil, fmt.Errorf("analysis failed: %s", status.Error)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("analysis timed out after %s", s.cfg.Analysis.PollTimeout)
		}
		time.Sleep(s.cfg.Analysis.PollInterval)
	}
	analysisMS := time.Since(analysisStart).Milliseconds()

	s.logger.Info("File analyzed",
		zap.String("session_id", sessionID),
		zap.String("file", file.Name),
		zap.Int("fields", len(fields)),
		zap.Int64("upload_ms", uploadMS),
		zap.Int64("analysis_ms", analysisMS),
	)

	return &models.FileResult{
		FileName:   file.Name,
		ModelID:    modelID,
		PageCount:  pageCount(file.Name, file.Content, s.logger),
		Fields:     fields,
		UploadMS:   uploadMS,
		AnalysisMS: analysisMS,
	}, nil
}

// terminate records the terminal state and publishes the terminal event.
func (s *BatchService) terminate(sessionID string, status models.SessionStatus, errMsg string, results []models.FileResult) {
	progress := 100
	upd := SessionUpdate{Status: &status, Progress: &progress, Results: results}
	if errMsg != "" {
		upd.Error = &errMsg
	}
	s.store.Update(sessionID, upd)
	s.publishSnapshot(sessionID)
}

// publishSnapshot reads the current session state and hands it to the
// emitter. Delivery problems stay inside the emitter; processing continues
// whether or not anyone is listening.
func (s *BatchService) publishSnapshot(sessionID string) {
	sess, ok := s.store.Get(sessionID)
	if !ok {
		return
	}
	s.emitter.Publish(sessionID, dto.ProgressEvent{
		Status:   string(sess.Status),
		Progress: sess.Progress,
		Error:    sess.Error,
		Results:  sess.Results,
	})
}

// persist writes one completed result to the document store. The session
// store remains authoritative, so persistence failures only warn.
func (s *BatchService) persist(ctx context.Context, sessionID string, result *models.FileResult) {
	if s.docs == nil {
		return
	}

	fieldsJSON, err := json.Marshal(result.Fields)
	if err != nil {
		s.logger.Warn("Failed to encode result fields", zap.Error(err))
		return
	}

	doc := &models.Document{
		ID:         uuid.New(),
		SessionID:  sessionID,
		FileName:   result.FileName,
		ModelID:    result.ModelID,
		PageCount:  result.PageCount,
		Fields:     string(fieldsJSON),
		UploadMS:   result.UploadMS,
		AnalysisMS: result.AnalysisMS,
		CreatedAt:  time.Now(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.logger.Warn("Failed to persist analyzed document",
			zap.String("session_id", sessionID),
			zap.String("file", result.FileName),
			zap.Error(err),
		)
	}
}
