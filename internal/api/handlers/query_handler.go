package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/query"
	"github.com/askdesk/backend/internal/retriever"
	"github.com/askdesk/backend/pkg/logger"
)

type QueryHandler struct {
	engine *query.Engine
}

func NewQueryHandler(engine *query.Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query      string `json:"query"`
		Collection string `json:"collection"`
		TopK       int    `json:"top_k"`
		Mode       string `json:"mode"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.engine.Process(c.Context(), query.Request{
		Query:      req.Query,
		Collection: req.Collection,
		TopK:       req.TopK,
		Mode:       retriever.Mode(req.Mode),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(resp)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	records, err := h.engine.History(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}
