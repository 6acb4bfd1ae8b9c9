package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starteams/coaching-backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return client
}

func TestActiveChunksJoinsActiveDocumentsOnly(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	docs := []*models.TrainingDocument{
		{ID: "d1", Title: "Strengths Guide", DocType: "coaching_guide", Status: "active", CreatedAt: now, UpdatedAt: now},
		{ID: "d2", Title: "Old Draft", DocType: "coaching_guide", Status: "archived", CreatedAt: now, UpdatedAt: now},
	}
	for _, d := range docs {
		if err := client.InsertDocument(ctx, d); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}

	chunks := []*models.DocumentChunk{
		{ID: "d1_chunk_0", DocumentID: "d1", ChunkIndex: 0, Content: "thinking strength", CreatedAt: now},
		{ID: "d1_chunk_1", DocumentID: "d1", ChunkIndex: 1, Content: "acting strength", CreatedAt: now},
		{ID: "d2_chunk_0", DocumentID: "d2", ChunkIndex: 0, Content: "draft text", CreatedAt: now},
	}
	for _, c := range chunks {
		if err := client.InsertChunk(ctx, c); err != nil {
			t.Fatalf("InsertChunk: %v", err)
		}
	}

	active, err := client.ActiveChunks(ctx)
	if err != nil {
		t.Fatalf("ActiveChunks: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d chunks, want 2", len(active))
	}
	for _, c := range active {
		if c.DocumentID != "d1" {
			t.Errorf("archived document leaked into corpus: %+v", c)
		}
		if c.DocumentTitle != "Strengths Guide" || c.DocumentType != "coaching_guide" {
			t.Errorf("join did not fill title/type: %+v", c)
		}
	}
}

func TestDeleteChunksForDocument(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	doc := &models.TrainingDocument{ID: "d1", Title: "T", DocType: "workshop_content", Status: "active", CreatedAt: now, UpdatedAt: now}
	if err := client.InsertDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := client.InsertChunk(ctx, &models.DocumentChunk{ID: "c0", DocumentID: "d1", Content: "x", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	if err := client.DeleteChunksForDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteChunksForDocument: %v", err)
	}

	active, err := client.ActiveChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("chunks remain after delete: %d", len(active))
	}
}

func TestFeatureConfigRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	missing, err := client.GetFeatureConfig(ctx, "nope")
	if err != nil {
		t.Fatalf("GetFeatureConfig: %v", err)
	}
	if missing != nil {
		t.Error("missing feature must return nil without error")
	}

	cfg := &models.FeatureConfig{
		FeatureName:      "coach_chat",
		Enabled:          true,
		RateLimitPerHour: 10,
		RateLimitPerDay:  100,
		MaxTokens:        2048,
		TimeoutMs:        30000,
	}
	if err := client.UpsertFeatureConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertFeatureConfig: %v", err)
	}

	got, err := client.GetFeatureConfig(ctx, "coach_chat")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Enabled || got.RateLimitPerHour != 10 || got.RateLimitPerDay != 100 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	cfg.Enabled = false
	if err := client.UpsertFeatureConfig(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	got, _ = client.GetFeatureConfig(ctx, "coach_chat")
	if got.Enabled {
		t.Error("upsert did not overwrite enabled flag")
	}
}

func TestCountUsageSinceWindow(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	records := []*models.UsageRecord{
		{ID: "r1", UserID: "u1", FeatureName: "coach_chat", CreatedAt: now.Add(-30 * time.Minute)},
		{ID: "r2", UserID: "u1", FeatureName: "coach_chat", CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "r3", UserID: "u2", FeatureName: "coach_chat", CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "r4", UserID: "u1", FeatureName: "report_chat", CreatedAt: now.Add(-10 * time.Minute)},
	}
	for _, r := range records {
		if err := client.InsertUsageRecord(ctx, r); err != nil {
			t.Fatalf("InsertUsageRecord: %v", err)
		}
	}

	hourly, err := client.CountUsageSince(ctx, "u1", "coach_chat", now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if hourly != 1 {
		t.Errorf("hourly count = %d, want 1", hourly)
	}

	daily, err := client.CountUsageSince(ctx, "u1", "coach_chat", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if daily != 2 {
		t.Errorf("daily count = %d, want 2", daily)
	}
}

func TestEscalationLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	escalations := []*models.EscalationRecord{
		{ID: "e1", RequestingPersona: "coach", EscalationType: "clarification", Priority: "medium", Question: "q1", Status: "pending", CreatedAt: base},
		{ID: "e2", RequestingPersona: "coach", EscalationType: "error_report", Priority: "urgent", Question: "q2", Status: "pending", CreatedAt: base.Add(time.Minute)},
		{ID: "e3", RequestingPersona: "report", EscalationType: "clarification", Priority: "medium", Question: "q3", Status: "pending", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "e4", RequestingPersona: "coach", EscalationType: "instruction_improvement", Priority: "low", Question: "q4", Status: "pending", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range escalations {
		if err := client.InsertEscalation(ctx, e); err != nil {
			t.Fatalf("InsertEscalation: %v", err)
		}
	}

	pending, err := client.PendingEscalations(ctx, 10)
	if err != nil {
		t.Fatalf("PendingEscalations: %v", err)
	}
	if len(pending) != 4 {
		t.Fatalf("got %d pending, want 4", len(pending))
	}

	// urgent first, then FIFO within the same priority.
	wantOrder := []string{"e2", "e1", "e3", "e4"}
	for i, want := range wantOrder {
		if pending[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, pending[i].ID, want)
		}
	}

	if err := client.ResolveEscalation(ctx, "e1", "answered", "admin-1"); err != nil {
		t.Fatalf("ResolveEscalation: %v", err)
	}

	err = client.ResolveEscalation(ctx, "e1", "answered again", "admin-2")
	if !errors.Is(err, ErrNotPending) {
		t.Errorf("second resolve: got %v, want ErrNotPending", err)
	}

	err = client.ResolveEscalation(ctx, "missing", "x", "admin-1")
	if !errors.Is(err, ErrNotPending) {
		t.Errorf("unknown id: got %v, want ErrNotPending", err)
	}

	pending, _ = client.PendingEscalations(ctx, 10)
	if len(pending) != 3 {
		t.Errorf("pending after resolve = %d, want 3", len(pending))
	}
}

func TestConversationFeedbackUpdate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	rec := &models.ConversationRecord{
		ID:          "c1",
		PersonaType: "coach",
		UserMessage: "hello",
		Response:    "hi",
		Outcome:     "completed",
		CreatedAt:   time.Now(),
	}
	if err := client.InsertConversation(ctx, rec); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}

	if err := client.UpdateConversationFeedback(ctx, "c1", `{"rating":5}`); err != nil {
		t.Fatalf("UpdateConversationFeedback: %v", err)
	}
}
