package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stepwells-backend/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	settingsKey     = "settings:general"
	settingsTTL     = 5 * time.Minute
	webhookDedupTTL = 24 * time.Hour
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetCachedSettings returns the cached settings snapshot, or nil on a
// cache miss.
func (c *Client) GetCachedSettings(ctx context.Context) (*models.Settings, error) {
	raw, err := c.rdb.Get(ctx, settingsKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var settings models.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// CacheSettings stores a settings snapshot with a TTL.
func (c *Client) CacheSettings(ctx context.Context, settings *models.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, settingsKey, raw, settingsTTL).Err()
}

// InvalidateSettings drops the cached settings snapshot. Called after
// an admin settings update.
func (c *Client) InvalidateSettings(ctx context.Context) error {
	return c.rdb.Del(ctx, settingsKey).Err()
}

// MarkWebhookEvent records a webhook event id and reports whether this
// delivery is the first one. Fast-path dedupe only; the conditional
// donation update stays the source of truth for idempotency.
func (c *Client) MarkWebhookEvent(ctx context.Context, eventID string) (first bool, err error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("webhook:%s", eventID), "1", webhookDedupTTL).Result()
}

// UnmarkWebhookEvent releases a webhook event id after its handling
// failed, so the gateway's redelivery reaches the reconciler again.
func (c *Client) UnmarkWebhookEvent(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("webhook:%s", eventID)).Err()
}
