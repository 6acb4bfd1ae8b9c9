package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/coach"
	"github.com/starteams/coaching-backend/pkg/logger"
)

// ChatEngine runs one coaching turn. Satisfied by *coach.Engine.
type ChatEngine interface {
	Chat(ctx context.Context, req coach.ChatRequest) (*coach.ChatResponse, error)
}

// jsonWriter is the slice of *websocket.Conn the streaming path needs.
type jsonWriter interface {
	WriteJSON(v interface{}) error
}

type WebSocketHandler struct {
	engine ChatEngine
}

func NewWebSocketHandler(engine ChatEngine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			Message   string `json:"message"`
			UserID    string `json:"user_id"`
			SessionID string `json:"session_id"`
			Persona   string `json:"persona"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chat" || msg.Message == "" {
			continue
		}

		err = h.streamTurn(c, coach.ChatRequest{
			UserID:    msg.UserID,
			SessionID: msg.SessionID,
			Message:   msg.Message,
			Persona:   coach.ParsePersona(msg.Persona),
		})
		if err != nil {
			logger.Error("Failed to stream chat turn", zap.Error(err))
			h.sendError(c, "Failed to process message")
		}
	}
}

func (h *WebSocketHandler) streamTurn(c jsonWriter, req coach.ChatRequest) error {
	ctx := context.Background()

	if err := h.sendChunk(c, "status", "Thinking..."); err != nil {
		return err
	}

	resp, err := h.engine.Chat(ctx, req)
	if err != nil {
		if errors.Is(err, coach.ErrUsageDenied) {
			h.sendError(c, err.Error())
			return nil
		}
		return err
	}

	words := splitIntoWords(resp.Response)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":            "complete",
		"conversation_id": resp.ConversationID,
		"persona":         resp.Persona,
		"confidence":      resp.Confidence,
		"source":          resp.Source,
		"degraded":        resp.Degraded,
	})
}

func (h *WebSocketHandler) sendChunk(c jsonWriter, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c jsonWriter, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
