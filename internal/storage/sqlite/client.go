package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/pkg/logger"
)

// ErrNotPending is returned when resolving an escalation that is not in
// the pending state (already resolved or unknown id).
var ErrNotPending = errors.New("escalation is not pending")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS training_documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		doc_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		raw_length INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON training_documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON training_documents(doc_type);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES training_documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id);

	CREATE TABLE IF NOT EXISTS ai_usage_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		feature_name TEXT NOT NULL,
		tokens_used INTEGER DEFAULT 0,
		response_time_ms INTEGER DEFAULT 0,
		success INTEGER NOT NULL,
		error_message TEXT,
		cost_estimate REAL DEFAULT 0,
		provider TEXT,
		model TEXT,
		session_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_user_feature ON ai_usage_logs(user_id, feature_name, created_at);

	CREATE TABLE IF NOT EXISTS ai_configuration (
		feature_name TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1,
		rate_limit_per_hour INTEGER NOT NULL,
		rate_limit_per_day INTEGER NOT NULL,
		max_tokens INTEGER NOT NULL,
		timeout_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		persona_type TEXT NOT NULL,
		user_id TEXT,
		session_id TEXT,
		user_message TEXT NOT NULL,
		response TEXT NOT NULL,
		context_data TEXT,
		confidence REAL,
		source TEXT,
		tokens_used INTEGER,
		cost_estimate REAL,
		response_time_ms INTEGER,
		outcome TEXT NOT NULL DEFAULT 'completed',
		user_feedback TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_persona ON conversations(persona_type, created_at);

	CREATE TABLE IF NOT EXISTS conversation_topics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		confidence REAL,
		keywords TEXT,
		sentiment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_topics_conversation ON conversation_topics(conversation_id);

	CREATE TABLE IF NOT EXISTS escalations (
		id TEXT PRIMARY KEY,
		requesting_persona TEXT NOT NULL,
		escalation_type TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		question TEXT NOT NULL,
		context_data TEXT,
		user_message TEXT,
		attempted_response TEXT,
		related_conversation_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		admin_response TEXT,
		resolved_by TEXT,
		resolved_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_status ON escalations(status, priority, created_at);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_assessments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		assessment_type TEXT NOT NULL,
		results TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_user ON user_assessments(user_id, created_at);

	CREATE TABLE IF NOT EXISTS workshop_step_data (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		step_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_step_data_user ON workshop_step_data(user_id, step_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.TrainingDocument) error {
	query := `
		INSERT INTO training_documents (id, title, doc_type, status, raw_length, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			raw_length = excluded.raw_length,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query,
		doc.ID,
		doc.Title,
		doc.DocType,
		doc.Status,
		doc.RawLength,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Training document inserted", zap.String("doc_id", doc.ID), zap.String("title", doc.Title))
	return nil
}

func (c *Client) DeleteChunksForDocument(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (c *Client) InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error {
	query := `INSERT INTO document_chunks (id, document_id, chunk_index, content, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		chunk.ID,
		chunk.DocumentID,
		chunk.ChunkIndex,
		chunk.Content,
		chunk.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

// ActiveChunks returns every chunk of every active training document,
// joined with the document title and type. This is the index corpus.
func (c *Client) ActiveChunks(ctx context.Context) ([]models.DocumentChunk, error) {
	query := `
		SELECT dc.id, dc.document_id, dc.chunk_index, dc.content, td.title, td.doc_type
		FROM document_chunks dc
		JOIN training_documents td ON dc.document_id = td.id
		WHERE td.status = 'active'
		ORDER BY td.title, dc.chunk_index
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load active chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Content, &ch.DocumentTitle, &ch.DocumentType)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, ch)
	}

	return chunks, rows.Err()
}

func (c *Client) InsertUsageRecord(ctx context.Context, rec *models.UsageRecord) error {
	query := `
		INSERT INTO ai_usage_logs (id, user_id, feature_name, tokens_used, response_time_ms,
			success, error_message, cost_estimate, provider, model, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	success := 0
	if rec.Success {
		success = 1
	}

	_, err := c.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.FeatureName,
		rec.TokensUsed,
		rec.ResponseTimeMs,
		success,
		rec.ErrorMessage,
		rec.CostEstimate,
		rec.Provider,
		rec.Model,
		rec.SessionID,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	return nil
}

// CountUsageSince counts usage-log rows for a user/feature pair in the
// window [since, now]. Drives hourly and daily rate limiting.
func (c *Client) CountUsageSince(ctx context.Context, userID, featureName string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM ai_usage_logs
		WHERE user_id = ? AND feature_name = ? AND created_at >= ?
	`

	var count int
	err := c.db.QueryRowContext(ctx, query, userID, featureName, since.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}

	return count, nil
}

func (c *Client) GetFeatureConfig(ctx context.Context, featureName string) (*models.FeatureConfig, error) {
	query := `
		SELECT feature_name, enabled, rate_limit_per_hour, rate_limit_per_day, max_tokens, timeout_ms
		FROM ai_configuration WHERE feature_name = ?
	`

	var cfg models.FeatureConfig
	var enabled int
	err := c.db.QueryRowContext(ctx, query, featureName).Scan(
		&cfg.FeatureName,
		&enabled,
		&cfg.RateLimitPerHour,
		&cfg.RateLimitPerDay,
		&cfg.MaxTokens,
		&cfg.TimeoutMs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feature config: %w", err)
	}

	cfg.Enabled = enabled != 0
	return &cfg, nil
}

func (c *Client) UpsertFeatureConfig(ctx context.Context, cfg *models.FeatureConfig) error {
	query := `
		INSERT INTO ai_configuration (feature_name, enabled, rate_limit_per_hour, rate_limit_per_day, max_tokens, timeout_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(feature_name) DO UPDATE SET
			enabled = excluded.enabled,
			rate_limit_per_hour = excluded.rate_limit_per_hour,
			rate_limit_per_day = excluded.rate_limit_per_day,
			max_tokens = excluded.max_tokens,
			timeout_ms = excluded.timeout_ms
	`

	enabled := 0
	if cfg.Enabled {
		enabled = 1
	}

	_, err := c.db.ExecContext(ctx, query,
		cfg.FeatureName,
		enabled,
		cfg.RateLimitPerHour,
		cfg.RateLimitPerDay,
		cfg.MaxTokens,
		cfg.TimeoutMs,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert feature config: %w", err)
	}

	return nil
}

func (c *Client) InsertConversation(ctx context.Context, rec *models.ConversationRecord) error {
	query := `
		INSERT INTO conversations (id, persona_type, user_id, session_id, user_message, response,
			context_data, confidence, source, tokens_used, cost_estimate, response_time_ms,
			outcome, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := rec.CreatedAt.Unix()
	_, err := c.db.ExecContext(ctx, query,
		rec.ID,
		rec.PersonaType,
		rec.UserID,
		rec.SessionID,
		rec.UserMessage,
		rec.Response,
		rec.ContextData,
		rec.Confidence,
		rec.Source,
		rec.TokensUsed,
		rec.CostEstimate,
		rec.ResponseMs,
		rec.Outcome,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	logger.Info("Conversation logged",
		zap.String("conversation_id", rec.ID),
		zap.String("persona", rec.PersonaType),
		zap.String("outcome", rec.Outcome),
	)

	return nil
}

func (c *Client) UpdateConversationFeedback(ctx context.Context, conversationID, feedbackJSON string) error {
	query := `UPDATE conversations SET user_feedback = ?, updated_at = ? WHERE id = ?`

	res, err := c.db.ExecContext(ctx, query, feedbackJSON, time.Now().Unix(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	return nil
}

func (c *Client) InsertConversationTopic(ctx context.Context, topic *models.ConversationTopic) error {
	query := `
		INSERT INTO conversation_topics (conversation_id, topic, confidence, keywords, sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		topic.ConversationID,
		topic.Topic,
		topic.Confidence,
		topic.Keywords,
		topic.Sentiment,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation topic: %w", err)
	}

	return nil
}

func (c *Client) InsertEscalation(ctx context.Context, rec *models.EscalationRecord) error {
	query := `
		INSERT INTO escalations (id, requesting_persona, escalation_type, priority, question,
			context_data, user_message, attempted_response, related_conversation_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		rec.ID,
		rec.RequestingPersona,
		rec.EscalationType,
		rec.Priority,
		rec.Question,
		rec.ContextData,
		rec.UserMessage,
		rec.AttemptedResponse,
		rec.RelatedConversationID,
		rec.Status,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert escalation: %w", err)
	}

	logger.Info("Escalation created",
		zap.String("escalation_id", rec.ID),
		zap.String("persona", rec.RequestingPersona),
		zap.String("type", rec.EscalationType),
		zap.String("priority", rec.Priority),
	)

	return nil
}

// PendingEscalations returns pending escalations ordered urgent > high >
// medium > low, FIFO within the same priority.
func (c *Client) PendingEscalations(ctx context.Context, limit int) ([]models.EscalationRecord, error) {
	query := `
		SELECT id, requesting_persona, escalation_type, priority, question,
			context_data, user_message, attempted_response, related_conversation_id, status, created_at
		FROM escalations
		WHERE status = 'pending'
		ORDER BY
			CASE priority
				WHEN 'urgent' THEN 1
				WHEN 'high' THEN 2
				WHEN 'medium' THEN 3
				WHEN 'low' THEN 4
			END,
			created_at ASC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending escalations: %w", err)
	}
	defer rows.Close()

	var records []models.EscalationRecord
	for rows.Next() {
		var r models.EscalationRecord
		var createdAt int64
		err := rows.Scan(&r.ID, &r.RequestingPersona, &r.EscalationType, &r.Priority, &r.Question,
			&r.ContextData, &r.UserMessage, &r.AttemptedResponse, &r.RelatedConversationID, &r.Status, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation row: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

// ResolveEscalation flips a pending escalation to resolved. Returns
// ErrNotPending when the row is missing or already resolved, so a second
// resolve attempt is rejected rather than silently rewritten.
func (c *Client) ResolveEscalation(ctx context.Context, escalationID, adminResponse, resolvedBy string) error {
	query := `
		UPDATE escalations
		SET status = 'resolved', admin_response = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'
	`

	res, err := c.db.ExecContext(ctx, query, adminResponse, resolvedBy, time.Now().Unix(), escalationID)
	if err != nil {
		return fmt.Errorf("failed to resolve escalation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve escalation: %w", err)
	}
	if affected == 0 {
		return ErrNotPending
	}

	logger.Info("Escalation resolved",
		zap.String("escalation_id", escalationID),
		zap.String("resolved_by", resolvedBy),
	)

	return nil
}

func (c *Client) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `SELECT id, username, name, created_at FROM users WHERE id = ?`

	var u models.UserProfile
	var createdAt int64
	err := c.db.QueryRowContext(ctx, query, userID).Scan(&u.ID, &u.Username, &u.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

func (c *Client) GetUserAssessments(ctx context.Context, userID string) ([]models.UserAssessment, error) {
	query := `
		SELECT id, user_id, assessment_type, results, created_at
		FROM user_assessments WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user assessments: %w", err)
	}
	defer rows.Close()

	var records []models.UserAssessment
	for rows.Next() {
		var a models.UserAssessment
		var createdAt int64
		err := rows.Scan(&a.ID, &a.UserID, &a.AssessmentType, &a.Results, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment row: %w", err)
		}
		a.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, a)
	}

	return records, rows.Err()
}

func (c *Client) GetReflectionSteps(ctx context.Context, userID string) ([]models.ReflectionStep, error) {
	query := `
		SELECT id, user_id, step_id, content, created_at
		FROM workshop_step_data WHERE user_id = ?
		ORDER BY step_id, created_at DESC
	`

	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reflection steps: %w", err)
	}
	defer rows.Close()

	var records []models.ReflectionStep
	for rows.Next() {
		var s models.ReflectionStep
		var createdAt int64
		err := rows.Scan(&s.ID, &s.UserID, &s.StepID, &s.Content, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reflection row: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, s)
	}

	return records, rows.Err()
}
