package handlers

import (
	"time"

	"lumifax/internal/dto"
	"lumifax/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type DocumentHandler struct {
	docs   service.DocumentStore
	logger *zap.Logger
}

func NewDocumentHandler(docs service.DocumentStore, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		docs:   docs,
		logger: logger,
	}
}

// ListDocuments godoc
// @Summary List persisted documents for a session
// @Description Returns the durable per-file analysis records for a batch
// @Tags documents
// @Produce json
// @Param session query string true "Session ID"
// @Success 200 {array} dto.DocumentResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/documents [get]
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	sessionID := c.Query("session")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session id is required",
		})
	}

	docs, err := h.docs.ListBySessionID(c.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	responses := make([]dto.DocumentResponse, len(docs))
	for i, doc := range docs {
		responses[i] = dto.DocumentResponse{
			ID:         doc.ID.String(),
			SessionID:  doc.SessionID,
			FileName:   doc.FileName,
			ModelID:    doc.ModelID,
			PageCount:  doc.PageCount,
			Fields:     doc.Fields,
			UploadMS:   doc.UploadMS,
			AnalysisMS: doc.AnalysisMS,
			CreatedAt:  doc.CreatedAt.Format(time.RFC3339),
		}
	}

	return c.JSON(responses)
}
