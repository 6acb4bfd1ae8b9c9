package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/internal/storage/sqlite"
)

type memStore struct {
	conversations []*models.ConversationRecord
	topics        []*models.ConversationTopic
	escalations   []*models.EscalationRecord
	feedback      map[string]string

	insertConvErr  error
	insertTopicErr error
}

func newMemStore() *memStore {
	return &memStore{feedback: make(map[string]string)}
}

func (m *memStore) InsertConversation(_ context.Context, rec *models.ConversationRecord) error {
	if m.insertConvErr != nil {
		return m.insertConvErr
	}
	m.conversations = append(m.conversations, rec)
	return nil
}

func (m *memStore) UpdateConversationFeedback(_ context.Context, id, feedbackJSON string) error {
	m.feedback[id] = feedbackJSON
	return nil
}

func (m *memStore) InsertConversationTopic(_ context.Context, topic *models.ConversationTopic) error {
	if m.insertTopicErr != nil {
		return m.insertTopicErr
	}
	m.topics = append(m.topics, topic)
	return nil
}

func (m *memStore) InsertEscalation(_ context.Context, rec *models.EscalationRecord) error {
	m.escalations = append(m.escalations, rec)
	return nil
}

func (m *memStore) PendingEscalations(_ context.Context, limit int) ([]models.EscalationRecord, error) {
	var out []models.EscalationRecord
	for _, e := range m.escalations {
		if e.Status == "pending" {
			out = append(out, *e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) ResolveEscalation(_ context.Context, id, adminResponse, resolvedBy string) error {
	for _, e := range m.escalations {
		if e.ID == id && e.Status == "pending" {
			e.Status = "resolved"
			e.AdminResponse = adminResponse
			e.ResolvedBy = resolvedBy
			return nil
		}
	}
	return sqlite.ErrNotPending
}

func syncLogger(store Store) *Logger {
	l := NewLogger(store)
	l.tagAsync = false
	return l
}

func TestLogConversationReturnsID(t *testing.T) {
	store := newMemStore()
	l := syncLogger(store)

	id, err := l.LogConversation(context.Background(), LogData{
		PersonaType: "coach",
		UserID:      "u1",
		UserMessage: "How do I build on my strengths at work?",
		Response:    "Lean into your thinking strength when planning your week.",
	})
	if err != nil {
		t.Fatalf("LogConversation: %v", err)
	}
	if id == "" {
		t.Fatal("expected a conversation id")
	}

	if len(store.conversations) != 1 {
		t.Fatalf("expected 1 stored conversation, got %d", len(store.conversations))
	}
	if store.conversations[0].Outcome != "completed" {
		t.Errorf("default outcome = %q, want completed", store.conversations[0].Outcome)
	}
}

func TestTaggingFailureDoesNotFailPrimaryWrite(t *testing.T) {
	store := newMemStore()
	store.insertTopicErr = errors.New("topics table locked")
	l := syncLogger(store)

	id, err := l.LogConversation(context.Background(), LogData{
		PersonaType: "coach",
		UserMessage: "I feel stuck with my flow and strengths",
		Response:    "Let's look at your flow triggers.",
	})
	if err != nil {
		t.Fatalf("primary write must survive tagging failure: %v", err)
	}
	if id == "" {
		t.Fatal("expected a conversation id despite tagging failure")
	}
}

func TestAttachFeedback(t *testing.T) {
	store := newMemStore()
	l := syncLogger(store)

	helpful := true
	err := l.AttachFeedback(context.Background(), FeedbackData{
		ConversationID: "c-123",
		Rating:         5,
		Helpful:        &helpful,
	})
	if err != nil {
		t.Fatalf("AttachFeedback: %v", err)
	}
	if store.feedback["c-123"] == "" {
		t.Error("feedback was not persisted")
	}

	if err := l.AttachFeedback(context.Background(), FeedbackData{}); err == nil {
		t.Error("missing conversation id should be rejected")
	}
}

func TestCreateEscalationValidatesType(t *testing.T) {
	esc := NewEscalations(newMemStore())

	_, err := esc.CreateEscalation(context.Background(), EscalationData{
		RequestingPersona: "coach",
		EscalationType:    "shout_for_help",
		Question:          "what now?",
	})
	if !errors.Is(err, ErrInvalidEscalationType) {
		t.Errorf("expected ErrInvalidEscalationType, got %v", err)
	}
}

func TestCreateEscalationDefaultsPriority(t *testing.T) {
	store := newMemStore()
	esc := NewEscalations(store)

	id, err := esc.CreateEscalation(context.Background(), EscalationData{
		RequestingPersona: "coach",
		EscalationType:    "clarification",
		Question:          "User asked about a workshop step I have no instructions for.",
	})
	if err != nil {
		t.Fatalf("CreateEscalation: %v", err)
	}
	if id == "" {
		t.Fatal("expected an escalation id")
	}
	if store.escalations[0].Priority != "medium" {
		t.Errorf("priority = %q, want medium default", store.escalations[0].Priority)
	}
	if store.escalations[0].Status != "pending" {
		t.Errorf("status = %q, want pending", store.escalations[0].Status)
	}
}

func TestResolveTwiceRejected(t *testing.T) {
	store := newMemStore()
	esc := NewEscalations(store)
	ctx := context.Background()

	id, err := esc.CreateEscalation(ctx, EscalationData{
		RequestingPersona: "coach",
		EscalationType:    "error_report",
		Question:          "Report generation returned empty content.",
	})
	if err != nil {
		t.Fatalf("CreateEscalation: %v", err)
	}

	if err := esc.Resolve(ctx, id, "Fixed the template.", "admin-1"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := esc.Resolve(ctx, id, "Fixing again.", "admin-2"); !errors.Is(err, sqlite.ErrNotPending) {
		t.Errorf("second resolve should be rejected, got %v", err)
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"This was great, thank you!", "positive"},
		{"I'm stuck and frustrated.", "negative"},
		{"Tell me about step four.", "neutral"},
	}
	for _, tt := range tests {
		if got := analyzeSentiment(tt.in); got != tt.want {
			t.Errorf("analyzeSentiment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
