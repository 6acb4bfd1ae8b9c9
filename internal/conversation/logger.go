// Package conversation records persona conversations and the escalation
// queue that personas raise when they cannot answer confidently.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/pkg/logger"
)

// Store is the persistence contract for conversations and escalations.
type Store interface {
	InsertConversation(ctx context.Context, rec *models.ConversationRecord) error
	UpdateConversationFeedback(ctx context.Context, conversationID, feedbackJSON string) error
	InsertConversationTopic(ctx context.Context, topic *models.ConversationTopic) error
	InsertEscalation(ctx context.Context, rec *models.EscalationRecord) error
	PendingEscalations(ctx context.Context, limit int) ([]models.EscalationRecord, error)
	ResolveEscalation(ctx context.Context, escalationID, adminResponse, resolvedBy string) error
}

type LogData struct {
	PersonaType  string
	UserID       string
	SessionID    string
	UserMessage  string
	Response     string
	ContextData  string
	Confidence   float64
	Source       string
	TokensUsed   int
	CostEstimate float64
	ResponseMs   int
	Outcome      string
}

type FeedbackData struct {
	ConversationID     string `json:"conversation_id"`
	Rating             int    `json:"rating,omitempty"`
	Helpful            *bool  `json:"helpful,omitempty"`
	FollowUpQuestion   string `json:"follow_up_question,omitempty"`
	AdditionalFeedback string `json:"additional_feedback,omitempty"`
	SubmittedAt        string `json:"submitted_at"`
}

type Logger struct {
	store Store

	// tagAsync is disabled in tests so tagging runs inline.
	tagAsync bool
}

func NewLogger(store Store) *Logger {
	return &Logger{store: store, tagAsync: true}
}

// LogConversation durably appends one persona turn and returns its id.
// Topic/sentiment tagging runs best-effort after the primary write; its
// failure never fails the log.
func (l *Logger) LogConversation(ctx context.Context, data LogData) (string, error) {
	if data.Outcome == "" {
		data.Outcome = "completed"
	}

	rec := &models.ConversationRecord{
		ID:           uuid.New().String(),
		PersonaType:  data.PersonaType,
		UserID:       data.UserID,
		SessionID:    data.SessionID,
		UserMessage:  data.UserMessage,
		Response:     data.Response,
		ContextData:  data.ContextData,
		Confidence:   data.Confidence,
		Source:       data.Source,
		TokensUsed:   data.TokensUsed,
		CostEstimate: data.CostEstimate,
		ResponseMs:   data.ResponseMs,
		Outcome:      data.Outcome,
		CreatedAt:    time.Now(),
	}

	if err := l.store.InsertConversation(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to log conversation: %w", err)
	}

	if l.tagAsync {
		go l.tagConversation(rec.ID, data.UserMessage, data.Response)
	} else {
		l.tagConversation(rec.ID, data.UserMessage, data.Response)
	}

	return rec.ID, nil
}

// tagConversation attaches topic and sentiment rows. Runs detached from
// the request; every failure path ends in a log line, not an error.
func (l *Logger) tagConversation(conversationID, userMessage, response string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Conversation tagging panicked",
				zap.String("conversation_id", conversationID),
				zap.Any("panic", r),
			)
		}
	}()

	tags, err := analyzeTopics(userMessage, response)
	if err != nil {
		logger.Warn("Topic analysis failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}

	sentiment := analyzeSentiment(userMessage)

	for _, tag := range tags {
		topic := &models.ConversationTopic{
			ConversationID: conversationID,
			Topic:          tag.Topic,
			Confidence:     tag.Confidence,
			Keywords:       tag.Keywords,
			Sentiment:      sentiment,
		}
		if err := l.store.InsertConversationTopic(context.Background(), topic); err != nil {
			logger.Warn("Failed to store conversation topic",
				zap.String("conversation_id", conversationID),
				zap.String("topic", tag.Topic),
				zap.Error(err),
			)
		}
	}
}

// AttachFeedback updates a logged conversation with user feedback. The
// only mutation a conversation row ever receives.
func (l *Logger) AttachFeedback(ctx context.Context, data FeedbackData) error {
	if data.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}

	data.SubmittedAt = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	if err := l.store.UpdateConversationFeedback(ctx, data.ConversationID, string(payload)); err != nil {
		return err
	}

	logger.Info("User feedback attached", zap.String("conversation_id", data.ConversationID))
	return nil
}
