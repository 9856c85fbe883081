package handlers

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"lumifax/internal/dto"
	"lumifax/internal/models"
	"lumifax/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type BatchHandler struct {
	batchService *service.BatchService
	store        *service.SessionStore
	emitter      *service.ProgressEmitter
	logger       *zap.Logger
}

func NewBatchHandler(
	batchService *service.BatchService,
	store *service.SessionStore,
	emitter *service.ProgressEmitter,
	logger *zap.Logger,
) *BatchHandler {
	return &BatchHandler{
		batchService: batchService,
		store:        store,
		emitter:      emitter,
		logger:       logger,
	}
}

// SubmitBatch godoc
// @Summary Submit a batch of documents for analysis
// @Description Accepts invoice/utility-bill files and returns a session id immediately; processing runs in the background
// @Tags batch
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Document files (PDF or image)"
// @Param model formData string true "Analysis model identifier"
// @Success 202 {object} dto.SubmitBatchResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/batch [post]
func (h *BatchHandler) SubmitBatch(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Multipart form is required",
		})
	}

	modelID := c.FormValue("model")

	var files []service.UploadedFile
	for _, header := range form.File["files"] {
		src, err := header.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Failed to open file %q", header.Filename),
			})
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Failed to read file %q", header.Filename),
			})
		}
		files = append(files, service.UploadedFile{
			Name:    header.Filename,
			Content: content,
		})
	}

	sessionID, err := h.batchService.Submit(files, modelID)
	if err != nil {
		if errors.Is(err, service.ErrNoFiles) || errors.Is(err, service.ErrNoModel) || errors.Is(err, service.ErrTooManyFiles) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("Failed to submit batch", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start batch processing",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.SubmitBatchResponse{SessionID: sessionID})
}

// StreamProgress godoc
// @Summary Stream batch progress
// @Description Server-sent event stream of progress snapshots for a session
// @Tags batch
// @Produce text/event-stream
// @Param session query string true "Session ID"
// @Success 200
// @Failure 400 {object} map[string]string
// @Router /api/v1/batch/progress [get]
func (h *BatchHandler) StreamProgress(c *fiber.Ctx) error {
	sessionID := c.Query("session")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session id is required",
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	ch := newStreamChannel(64)
	h.emitter.Attach(sessionID, ch)

	logger := h.logger
	emitter := h.emitter
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// Comment-only heartbeat confirms the connection before any event.
		if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
			emitter.DetachChannel(sessionID, ch)
			return
		}
		if err := w.Flush(); err != nil {
			emitter.DetachChannel(sessionID, ch)
			return
		}

		for payload := range ch.C() {
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				emitter.DetachChannel(sessionID, ch)
				return
			}
			if err := w.Flush(); err != nil {
				// Client is gone; the driver keeps running and queuing.
				logger.Debug("Progress stream closed by client",
					zap.String("session_id", sessionID),
				)
				emitter.DetachChannel(sessionID, ch)
				return
			}
		}
		// Channel closed by the emitter after the terminal event; the
		// registration is already gone.
	}))

	return nil
}

// FetchResults godoc
// @Summary Fetch batch results
// @Description Returns terminal session results; the polling fallback for a dropped stream
// @Tags batch
// @Produce json
// @Param session query string true "Session ID"
// @Success 200 {object} dto.ResultsResponse
// @Success 202 {object} dto.ProcessingResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/batch/results [get]
func (h *BatchHandler) FetchResults(c *fiber.Ctx) error {
	sessionID := c.Query("session")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session id is required",
		})
	}

	sess, ok := h.store.Get(sessionID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	switch sess.Status {
	case models.StatusProcessing:
		return c.Status(fiber.StatusAccepted).JSON(dto.ProcessingResponse{
			Status:   string(sess.Status),
			Progress: sess.Progress,
		})
	case models.StatusError:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": sess.Error,
		})
	default:
		if len(sess.Results) == 0 {
			// Success with nothing produced is an error, not a silent OK.
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No results produced",
			})
		}
		return c.JSON(dto.ResultsResponse{Results: sess.Results})
	}
}
