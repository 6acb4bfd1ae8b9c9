package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/contextopt"
	"github.com/starteams/coaching-backend/internal/conversation"
	"github.com/starteams/coaching-backend/internal/llm"
	"github.com/starteams/coaching-backend/internal/metrics"
	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/internal/usage"
	"github.com/starteams/coaching-backend/internal/vector/tfidf"
	"github.com/starteams/coaching-backend/pkg/logger"
	"github.com/starteams/coaching-backend/pkg/utils"
)

// ErrUsageDenied is returned when the usage gate refuses the turn. The
// gate's reason is attached via fmt wrapping.
var ErrUsageDenied = errors.New("ai usage denied")

const fallbackResponse = "I'm having trouble reaching my coaching knowledge right now. " +
	"Your message has been saved; please try again in a few minutes."

// UserStore loads the per-user data fed into the context optimizer.
type UserStore interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	GetUserAssessments(ctx context.Context, userID string) ([]models.UserAssessment, error)
	GetReflectionSteps(ctx context.Context, userID string) ([]models.ReflectionStep, error)
}

// Retriever assembles token-budgeted training content for a query.
type Retriever interface {
	GenerateTrainingContext(query string, opts tfidf.SearchOptions) string
}

// Completer is the LLM surface the engine needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	Model() string
}

// ContextCache caches assembled training contexts between turns. A nil
// cache disables caching.
type ContextCache interface {
	GetTrainingContext(ctx context.Context, queryHash string) (string, bool, error)
	SetTrainingContext(ctx context.Context, queryHash, trainingContext string, ttl time.Duration) error
}

type Options struct {
	Retrieval            tfidf.SearchOptions
	EscalationConfidence float64
	CacheTTL             time.Duration
}

type Engine struct {
	users       UserStore
	retriever   Retriever
	completer   Completer
	gate        *usage.Gate
	convLog     *conversation.Logger
	escalations *conversation.Escalations
	cache       ContextCache
	opts        Options
}

func NewEngine(
	users UserStore,
	retriever Retriever,
	completer Completer,
	gate *usage.Gate,
	convLog *conversation.Logger,
	escalations *conversation.Escalations,
	cache ContextCache,
	opts Options,
) *Engine {
	if opts.EscalationConfidence <= 0 {
		opts.EscalationConfidence = 0.4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &Engine{
		users:       users,
		retriever:   retriever,
		completer:   completer,
		gate:        gate,
		convLog:     convLog,
		escalations: escalations,
		cache:       cache,
		opts:        opts,
	}
}

type ChatRequest struct {
	UserID    string
	SessionID string
	Message   string
	Persona   Persona
}

type ChatResponse struct {
	ConversationID string  `json:"conversation_id"`
	Response       string  `json:"response"`
	Persona        string  `json:"persona"`
	Source         string  `json:"source"`
	Confidence     float64 `json:"confidence"`
	TokensUsed     int     `json:"tokens_used"`
	CostEstimate   float64 `json:"cost_estimate"`
	Degraded       bool    `json:"degraded,omitempty"`
}

// Chat runs one coaching turn end to end. An LLM transport failure
// degrades to a canned response logged with outcome "error" instead of
// failing the request; only gate denial and logging failures surface
// as errors.
func (e *Engine) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}

	persona := req.Persona
	personaCfg := persona.Config()
	feature := persona.String() + "_chat"

	decision := e.gate.CanUseAI(ctx, req.UserID, feature)
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrUsageDenied, decision.Reason)
	}

	started := time.Now()

	userContext := e.buildUserContext(ctx, req.UserID, persona)
	trainingContext := e.trainingContext(ctx, persona, personaCfg, req.Message)

	hasTraining := trainingContext != "" && trainingContext != "No relevant training content found."

	resp, err := e.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: personaCfg.SystemPrompt,
		UserPrompt:   buildUserPrompt(userContext, trainingContext, req.Message),
		Temperature:  personaCfg.Temperature,
		MaxTokens:    personaCfg.MaxTokens,
	})

	elapsed := int(time.Since(started).Milliseconds())

	if err != nil {
		logger.Error("LLM completion failed, serving fallback",
			zap.String("persona", persona.String()),
			zap.Error(err),
		)
		return e.degradedTurn(ctx, req, feature, elapsed, err)
	}

	confidence := estimateConfidence(hasTraining, resp.Content)
	cost := usage.CalculateCost(resp.Usage.TotalTokens, e.completer.Model())

	metrics.LLMTokensUsed.WithLabelValues(e.completer.Model()).Add(float64(resp.Usage.TotalTokens))
	metrics.LLMCost.WithLabelValues(e.completer.Model()).Add(cost)

	e.gate.LogUsage(ctx, &models.UsageRecord{
		UserID:         req.UserID,
		FeatureName:    feature,
		TokensUsed:     resp.Usage.TotalTokens,
		ResponseTimeMs: elapsed,
		Success:        true,
		CostEstimate:   cost,
		Provider:       "openai",
		Model:          e.completer.Model(),
		SessionID:      req.SessionID,
	})

	convID, logErr := e.convLog.LogConversation(ctx, conversation.LogData{
		PersonaType:  persona.String(),
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		UserMessage:  req.Message,
		Response:     resp.Content,
		ContextData:  trainingContext,
		Confidence:   confidence,
		Source:       "llm",
		TokensUsed:   resp.Usage.TotalTokens,
		CostEstimate: cost,
		ResponseMs:   elapsed,
	})
	if logErr != nil {
		logger.Error("Failed to log conversation", zap.Error(logErr))
	}

	if confidence < e.opts.EscalationConfidence {
		e.raiseLowConfidenceEscalation(ctx, req, persona, resp.Content, convID)
	}

	return &ChatResponse{
		ConversationID: convID,
		Response:       resp.Content,
		Persona:        persona.String(),
		Source:         "llm",
		Confidence:     confidence,
		TokensUsed:     resp.Usage.TotalTokens,
		CostEstimate:   cost,
	}, nil
}

// degradedTurn records the failed turn and hands the user a fallback
// answer instead of an error page.
func (e *Engine) degradedTurn(ctx context.Context, req ChatRequest, feature string, elapsed int, cause error) (*ChatResponse, error) {
	e.gate.LogUsage(ctx, &models.UsageRecord{
		UserID:         req.UserID,
		FeatureName:    feature,
		ResponseTimeMs: elapsed,
		Success:        false,
		ErrorMessage:   cause.Error(),
		Provider:       "openai",
		Model:          e.completer.Model(),
		SessionID:      req.SessionID,
	})

	convID, logErr := e.convLog.LogConversation(ctx, conversation.LogData{
		PersonaType: req.Persona.String(),
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		UserMessage: req.Message,
		Response:    fallbackResponse,
		Source:      "fallback",
		ResponseMs:  elapsed,
		Outcome:     "error",
	})
	if logErr != nil {
		logger.Error("Failed to log degraded conversation", zap.Error(logErr))
	}

	return &ChatResponse{
		ConversationID: convID,
		Response:       fallbackResponse,
		Persona:        req.Persona.String(),
		Source:         "fallback",
		Degraded:       true,
	}, nil
}

// buildUserContext loads and optimizes the user's assessment data. Any
// failure here degrades to an empty context, never a failed turn.
func (e *Engine) buildUserContext(ctx context.Context, userID string, persona Persona) string {
	if userID == "" || e.users == nil {
		return ""
	}

	profile, err := e.users.GetUserProfile(ctx, userID)
	if err != nil {
		logger.Warn("Failed to load user profile", zap.String("user_id", userID), zap.Error(err))
		return ""
	}

	assessments, err := e.users.GetUserAssessments(ctx, userID)
	if err != nil {
		logger.Warn("Failed to load assessments", zap.String("user_id", userID), zap.Error(err))
		assessments = nil
	}

	reflections, err := e.users.GetReflectionSteps(ctx, userID)
	if err != nil {
		logger.Warn("Failed to load reflections", zap.String("user_id", userID), zap.Error(err))
		reflections = nil
	}

	optimized, err := contextopt.OptimizedReportContext(profile, assessments, reflections, persona.String())
	if err != nil {
		logger.Warn("Context optimization failed", zap.String("user_id", userID), zap.Error(err))
		return ""
	}
	if optimized == nil {
		return ""
	}

	payload, err := json.Marshal(optimized)
	if err != nil {
		return ""
	}
	return string(payload)
}

func (e *Engine) trainingContext(ctx context.Context, persona Persona, cfg PersonaConfig, message string) string {
	opts := e.opts.Retrieval
	opts.DocumentTypes = cfg.DocumentTypes

	queryHash := utils.HashString(persona.String() + ":" + message)

	if e.cache != nil {
		if cached, ok, err := e.cache.GetTrainingContext(ctx, queryHash); err == nil && ok {
			metrics.CacheHits.WithLabelValues("training_context").Inc()
			return cached
		}
		metrics.CacheMisses.WithLabelValues("training_context").Inc()
	}

	trainingContext := e.retriever.GenerateTrainingContext(message, opts)

	if e.cache != nil {
		if err := e.cache.SetTrainingContext(ctx, queryHash, trainingContext, e.opts.CacheTTL); err != nil {
			logger.Warn("Failed to cache training context", zap.Error(err))
		}
	}

	return trainingContext
}

func (e *Engine) raiseLowConfidenceEscalation(ctx context.Context, req ChatRequest, persona Persona, attempted, convID string) {
	_, err := e.escalations.CreateEscalation(ctx, conversation.EscalationData{
		RequestingPersona:     persona.String(),
		EscalationType:        "clarification",
		Question:              fmt.Sprintf("Low-confidence answer for: %s", req.Message),
		UserMessage:           req.Message,
		AttemptedResponse:     attempted,
		RelatedConversationID: convID,
	})
	if err != nil {
		logger.Warn("Failed to raise low-confidence escalation", zap.Error(err))
	}
}

func buildUserPrompt(userContext, trainingContext, message string) string {
	prompt := ""
	if userContext != "" {
		prompt += fmt.Sprintf("User profile and assessment data:\n%s\n\n", userContext)
	}
	prompt += fmt.Sprintf("Workshop training content:\n%s\n\n", trainingContext)
	prompt += fmt.Sprintf("User message: %s", message)
	return prompt
}

// estimateConfidence is a coarse signal used only to decide whether a
// turn should raise an escalation for human review.
func estimateConfidence(hasTraining bool, response string) float64 {
	confidence := 0.85
	if !hasTraining {
		confidence = 0.3
	}
	if len(response) < 40 {
		confidence -= 0.2
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}
