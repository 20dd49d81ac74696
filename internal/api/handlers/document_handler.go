package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/ingestion"
	"github.com/askdesk/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
}

func NewDocumentHandler(processor *ingestion.Processor) *DocumentHandler {
	return &DocumentHandler{processor: processor}
}

// HandleUpload accepts a document and queues it for background
// processing. The response carries the id to poll for status.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	var req ingestion.Request
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	docID, err := h.processor.Submit(c.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to submit document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit document",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"document_id": docID,
		"status":      "queued",
	})
}

// HandleBatchUpload ingests several documents synchronously. Partial
// failures return the successes alongside the per-file errors.
func (h *DocumentHandler) HandleBatchUpload(c *fiber.Ctx) error {
	var req struct {
		Documents []ingestion.Request `json:"documents"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Documents) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "documents must not be empty",
		})
	}

	ids, err := h.processor.IngestBatch(c.Context(), req.Documents)
	if err != nil {
		var partial *domain.PartialIngestionError
		if errors.As(err, &partial) {
			failures := make(map[string]string, len(partial.Failures))
			for name, ferr := range partial.Failures {
				failures[name] = ferr.Error()
			}
			return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
				"document_ids": ids,
				"failures":     failures,
			})
		}
		logger.Error("Failed to ingest batch", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest batch",
		})
	}

	return c.JSON(fiber.Map{
		"document_ids": ids,
	})
}

func (h *DocumentHandler) GetStatus(c *fiber.Ctx) error {
	docID := c.Params("id")

	rec, err := h.processor.Status(c.Context(), docID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to get document status", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get document status",
		})
	}

	return c.JSON(rec)
}

func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	docID := c.Params("id")

	if err := h.processor.DeleteDocument(c.Context(), docID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to delete document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": docID,
		"deleted":     true,
	})
}
