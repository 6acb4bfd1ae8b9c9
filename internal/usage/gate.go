// Package usage enforces per-user, per-feature rate limits and cost
// accounting. The gate runs before every LLM call and can short-circuit
// the whole pipeline.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/pkg/logger"
)

// GlobalFeature is the kill switch checked ahead of any feature flag.
const GlobalFeature = "global"

// Store is the usage-log and feature-config persistence contract.
type Store interface {
	InsertUsageRecord(ctx context.Context, rec *models.UsageRecord) error
	CountUsageSince(ctx context.Context, userID, featureName string, since time.Time) (int, error)
	GetFeatureConfig(ctx context.Context, featureName string) (*models.FeatureConfig, error)
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// configCell is an explicit {value, fetchedAt} pair so expiry stays a
// pure function of time rather than a timer.
type configCell struct {
	cfg       *models.FeatureConfig
	fetchedAt time.Time
}

func (c configCell) isStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.fetchedAt) >= ttl
}

type Gate struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]configCell
}

func NewGate(store Store, cacheTTL time.Duration) *Gate {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Gate{
		store: store,
		ttl:   cacheTTL,
		now:   time.Now,
		cache: make(map[string]configCell),
	}
}

// getConfig returns the feature config through the TTL cache. On a
// lookup failure it falls back to the last-known cached value, even an
// expired one; with no cache at all it returns the error and the caller
// fails closed.
func (g *Gate) getConfig(ctx context.Context, featureName string) (*models.FeatureConfig, error) {
	now := g.now()

	g.mu.Lock()
	cell, ok := g.cache[featureName]
	g.mu.Unlock()

	if ok && !cell.isStale(now, g.ttl) {
		return cell.cfg, nil
	}

	cfg, err := g.store.GetFeatureConfig(ctx, featureName)
	if err != nil {
		if ok {
			logger.Warn("Feature config lookup failed, using cached value",
				zap.String("feature", featureName),
				zap.Error(err),
			)
			return cell.cfg, nil
		}
		return nil, fmt.Errorf("failed to load feature config: %w", err)
	}

	g.mu.Lock()
	g.cache[featureName] = configCell{cfg: cfg, fetchedAt: now}
	g.mu.Unlock()

	return cfg, nil
}

// ClearCache drops all cached feature configs. Called when an admin
// updates configuration.
func (g *Gate) ClearCache() {
	g.mu.Lock()
	g.cache = make(map[string]configCell)
	g.mu.Unlock()
}

// CanUseAI checks the global toggle, the feature toggle, then hourly and
// daily usage counts against configured limits. The first failing check
// wins. A denial is a structured result, never an error.
func (g *Gate) CanUseAI(ctx context.Context, userID, featureName string) Decision {
	globalCfg, err := g.getConfig(ctx, GlobalFeature)
	if err != nil {
		logger.Error("Unable to verify usage limits", zap.Error(err))
		return Decision{Allowed: false, Reason: "unable to verify rate limits"}
	}
	if globalCfg == nil || !globalCfg.Enabled {
		return Decision{Allowed: false, Reason: "AI features are globally disabled"}
	}

	featureCfg, err := g.getConfig(ctx, featureName)
	if err != nil {
		logger.Error("Unable to verify usage limits",
			zap.String("feature", featureName),
			zap.Error(err),
		)
		return Decision{Allowed: false, Reason: "unable to verify rate limits"}
	}
	if featureCfg == nil || !featureCfg.Enabled {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s AI feature is disabled", featureName)}
	}

	now := g.now()

	hourly, err := g.store.CountUsageSince(ctx, userID, featureName, now.Add(-time.Hour))
	if err != nil {
		logger.Error("Hourly usage count failed", zap.Error(err))
		return Decision{Allowed: false, Reason: "unable to verify rate limits"}
	}
	if hourly >= featureCfg.RateLimitPerHour {
		return Decision{Allowed: false, Reason: "hourly rate limit exceeded"}
	}

	daily, err := g.store.CountUsageSince(ctx, userID, featureName, now.Add(-24*time.Hour))
	if err != nil {
		logger.Error("Daily usage count failed", zap.Error(err))
		return Decision{Allowed: false, Reason: "unable to verify rate limits"}
	}
	if daily >= featureCfg.RateLimitPerDay {
		return Decision{Allowed: false, Reason: "daily rate limit exceeded"}
	}

	return Decision{Allowed: true}
}

// LogUsage appends one usage record. Logging failures are reported but
// must never break the caller's main flow.
func (g *Gate) LogUsage(ctx context.Context, rec *models.UsageRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = g.now()
	}

	if err := g.store.InsertUsageRecord(ctx, rec); err != nil {
		logger.Error("Failed to log AI usage",
			zap.String("user_id", rec.UserID),
			zap.String("feature", rec.FeatureName),
			zap.Error(err),
		)
		return
	}

	logger.Debug("AI usage logged",
		zap.String("user_id", rec.UserID),
		zap.String("feature", rec.FeatureName),
		zap.Bool("success", rec.Success),
		zap.Int("tokens", rec.TokensUsed),
	)
}
