package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starteams/coaching-backend/internal/storage/models"
)

// ErrInvalidEscalationType rejects escalation types outside the known
// set before anything is written.
var ErrInvalidEscalationType = errors.New("invalid escalation type")

var validEscalationTypes = map[string]struct{}{
	"clarification":           {},
	"instruction_improvement": {},
	"error_report":            {},
}

var validPriorities = map[string]struct{}{
	"low": {}, "medium": {}, "high": {}, "urgent": {},
}

type EscalationData struct {
	RequestingPersona     string
	EscalationType        string
	Priority              string
	Question              string
	ContextData           string
	UserMessage           string
	AttemptedResponse     string
	RelatedConversationID string
}

type Escalations struct {
	store Store
}

func NewEscalations(store Store) *Escalations {
	return &Escalations{store: store}
}

// CreateEscalation appends a pending escalation. The type must be one of
// clarification, instruction_improvement or error_report; priority
// defaults to medium.
func (e *Escalations) CreateEscalation(ctx context.Context, data EscalationData) (string, error) {
	if _, ok := validEscalationTypes[data.EscalationType]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidEscalationType, data.EscalationType)
	}
	if data.Question == "" {
		return "", fmt.Errorf("escalation question is required")
	}

	priority := data.Priority
	if priority == "" {
		priority = "medium"
	}
	if _, ok := validPriorities[priority]; !ok {
		return "", fmt.Errorf("invalid escalation priority: %q", priority)
	}

	rec := &models.EscalationRecord{
		ID:                    uuid.New().String(),
		RequestingPersona:     data.RequestingPersona,
		EscalationType:        data.EscalationType,
		Priority:              priority,
		Question:              data.Question,
		ContextData:           data.ContextData,
		UserMessage:           data.UserMessage,
		AttemptedResponse:     data.AttemptedResponse,
		RelatedConversationID: data.RelatedConversationID,
		Status:                "pending",
		CreatedAt:             time.Now(),
	}

	if err := e.store.InsertEscalation(ctx, rec); err != nil {
		return "", err
	}

	return rec.ID, nil
}

// Pending returns open escalations in priority order (urgent first),
// FIFO within the same priority.
func (e *Escalations) Pending(ctx context.Context, limit int) ([]models.EscalationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.PendingEscalations(ctx, limit)
}

// Resolve performs the single pending -> resolved transition. Resolving
// an already-resolved escalation is rejected by the store.
func (e *Escalations) Resolve(ctx context.Context, escalationID, adminResponse, resolvedBy string) error {
	if adminResponse == "" {
		return fmt.Errorf("admin response is required")
	}
	return e.store.ResolveEscalation(ctx, escalationID, adminResponse, resolvedBy)
}
