package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetTrainingContext caches an assembled training context under the
// query hash so repeated questions skip the similarity search.
func (c *Client) SetTrainingContext(ctx context.Context, queryHash, trainingContext string, ttl time.Duration) error {
	err := c.client.Set(ctx, fmt.Sprintf("context:%s", queryHash), trainingContext, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set context cache: %w", err)
	}

	logger.Debug("Training context cached", zap.String("query_hash", queryHash), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetTrainingContext(ctx context.Context, queryHash string) (string, bool, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("context:%s", queryHash)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get context cache: %w", err)
	}

	logger.Debug("Training context cache hit", zap.String("query_hash", queryHash))
	return val, true, nil
}

// SetSearchResults caches ranked similarity results for the stats and
// admin-preview endpoints.
func (c *Client) SetSearchResults(ctx context.Context, queryHash string, results interface{}, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal search results: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("search:%s", queryHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set search cache: %w", err)
	}

	return nil
}

func (c *Client) GetSearchResults(ctx context.Context, queryHash string, results interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("search:%s", queryHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get search cache: %w", err)
	}

	if err := json.Unmarshal(data, results); err != nil {
		return false, fmt.Errorf("failed to unmarshal search results: %w", err)
	}

	return true, nil
}

// InvalidateRetrievalCache drops every cached context and search entry.
// Called after the vector index is rebuilt.
func (c *Client) InvalidateRetrievalCache(ctx context.Context) error {
	for _, pattern := range []string{"context:*", "search:*"} {
		iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				logger.Warn("Failed to delete cache key", zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to iterate cache keys: %w", err)
		}
	}

	logger.Info("Retrieval cache invalidated")
	return nil
}
