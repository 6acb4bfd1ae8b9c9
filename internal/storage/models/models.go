package models

import "time"

type TrainingDocument struct {
	ID        string
	Title     string
	DocType   string
	Status    string
	RawLength int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentChunk is the retrieval unit loaded into the in-memory index.
type DocumentChunk struct {
	ID            string
	DocumentID    string
	ChunkIndex    int
	Content       string
	DocumentTitle string
	DocumentType  string
	CreatedAt     time.Time
}

type UsageRecord struct {
	ID             string
	UserID         string
	FeatureName    string
	TokensUsed     int
	ResponseTimeMs int
	Success        bool
	ErrorMessage   string
	CostEstimate   float64
	Provider       string
	Model          string
	SessionID      string
	CreatedAt      time.Time
}

type FeatureConfig struct {
	FeatureName      string
	Enabled          bool
	RateLimitPerHour int
	RateLimitPerDay  int
	MaxTokens        int
	TimeoutMs        int
}

type ConversationRecord struct {
	ID           string
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
	UserFeedback string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ConversationTopic struct {
	ID             int
	ConversationID string
	Topic          string
	Confidence     float64
	Keywords       string
	Sentiment      string
	CreatedAt      time.Time
}

type EscalationRecord struct {
	ID                    string
	RequestingPersona     string
	EscalationType        string
	Priority              string
	Question              string
	ContextData           string
	UserMessage           string
	AttemptedResponse     string
	RelatedConversationID string
	Status                string
	AdminResponse         string
	ResolvedBy            string
	ResolvedAt            *time.Time
	CreatedAt             time.Time
}

type UserProfile struct {
	ID        string
	Username  string
	Name      string
	CreatedAt time.Time
}

// UserAssessment holds one assessment row; Results is a JSON-encoded
// payload whose shape depends on AssessmentType.
type UserAssessment struct {
	ID             string
	UserID         string
	AssessmentType string
	Results        string
	CreatedAt      time.Time
}

type ReflectionStep struct {
	ID        string
	UserID    string
	StepID    string
	Content   string
	CreatedAt time.Time
}
