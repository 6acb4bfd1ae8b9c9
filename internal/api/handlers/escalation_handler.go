package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/conversation"
	"github.com/starteams/coaching-backend/internal/metrics"
	"github.com/starteams/coaching-backend/internal/storage/sqlite"
	"github.com/starteams/coaching-backend/pkg/logger"
)

type EscalationHandler struct {
	escalations *conversation.Escalations
}

func NewEscalationHandler(escalations *conversation.Escalations) *EscalationHandler {
	return &EscalationHandler{
		escalations: escalations,
	}
}

func (h *EscalationHandler) HandleCreate(c *fiber.Ctx) error {
	var req struct {
		RequestingPersona     string `json:"requesting_persona"`
		EscalationType        string `json:"escalation_type"`
		Priority              string `json:"priority"`
		Question              string `json:"question"`
		ContextData           string `json:"context_data"`
		UserMessage           string `json:"user_message"`
		AttemptedResponse     string `json:"attempted_response"`
		RelatedConversationID string `json:"related_conversation_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	id, err := h.escalations.CreateEscalation(c.Context(), conversation.EscalationData{
		RequestingPersona:     req.RequestingPersona,
		EscalationType:        req.EscalationType,
		Priority:              req.Priority,
		Question:              req.Question,
		ContextData:           req.ContextData,
		UserMessage:           req.UserMessage,
		AttemptedResponse:     req.AttemptedResponse,
		RelatedConversationID: req.RelatedConversationID,
	})
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidEscalationType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to create escalation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create escalation",
		})
	}

	metrics.EscalationsRaised.WithLabelValues(req.EscalationType).Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"escalation_id": id,
	})
}

func (h *EscalationHandler) HandlePending(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	escalations, err := h.escalations.Pending(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to list escalations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list escalations",
		})
	}

	return c.JSON(fiber.Map{
		"escalations": escalations,
		"count":       len(escalations),
	})
}

func (h *EscalationHandler) HandleResolve(c *fiber.Ctx) error {
	escalationID := c.Params("id")
	if escalationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Escalation id is required",
		})
	}

	var req struct {
		AdminResponse string `json:"admin_response"`
		ResolvedBy    string `json:"resolved_by"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.AdminResponse == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "admin_response is required",
		})
	}

	err := h.escalations.Resolve(c.Context(), escalationID, req.AdminResponse, req.ResolvedBy)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotPending) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Escalation is not pending",
			})
		}
		logger.Error("Failed to resolve escalation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve escalation",
		})
	}

	return c.JSON(fiber.Map{
		"status": "resolved",
	})
}
