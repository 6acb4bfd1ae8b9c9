package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/coach"
	"github.com/starteams/coaching-backend/internal/conversation"
	"github.com/starteams/coaching-backend/internal/metrics"
	"github.com/starteams/coaching-backend/pkg/logger"
)

type ChatHandler struct {
	engine  *coach.Engine
	convLog *conversation.Logger
}

func NewChatHandler(engine *coach.Engine, convLog *conversation.Logger) *ChatHandler {
	return &ChatHandler{
		engine:  engine,
		convLog: convLog,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		Message   string `json:"message"`
		UserID    string `json:"user_id"`
		SessionID string `json:"session_id"`
		Persona   string `json:"persona"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	persona := coach.ParsePersona(req.Persona)
	started := time.Now()

	resp, err := h.engine.Chat(c.Context(), coach.ChatRequest{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Persona:   persona,
	})

	metrics.ChatDuration.WithLabelValues(persona.String()).Observe(time.Since(started).Seconds())

	if err != nil {
		if errors.Is(err, coach.ErrUsageDenied) {
			metrics.UsageDenied.WithLabelValues(persona.String() + "_chat").Inc()
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to process chat turn", zap.Error(err))
		metrics.ChatTotal.WithLabelValues(persona.String(), "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	status := "ok"
	if resp.Degraded {
		status = "degraded"
	}
	metrics.ChatTotal.WithLabelValues(persona.String(), status).Inc()
	metrics.ConfidenceScore.Observe(resp.Confidence)

	return c.JSON(resp)
}

func (h *ChatHandler) HandleFeedback(c *fiber.Ctx) error {
	var req struct {
		ConversationID     string `json:"conversation_id"`
		Rating             int    `json:"rating"`
		Helpful            *bool  `json:"helpful"`
		FollowUpQuestion   string `json:"follow_up_question"`
		AdditionalFeedback string `json:"additional_feedback"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.ConversationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "conversation_id is required",
		})
	}

	err := h.convLog.AttachFeedback(c.Context(), conversation.FeedbackData{
		ConversationID:     req.ConversationID,
		Rating:             req.Rating,
		Helpful:            req.Helpful,
		FollowUpQuestion:   req.FollowUpQuestion,
		AdditionalFeedback: req.AdditionalFeedback,
	})
	if err != nil {
		logger.Error("Failed to attach feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save feedback",
		})
	}

	return c.JSON(fiber.Map{
		"status": "saved",
	})
}
