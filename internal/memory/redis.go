// Package memory provides the Redis-backed durable stores for conversation
// context, cart snapshots, and single-use approval tokens.
//
// Context is keyed per conversation thread with read-modify-write merge
// semantics; TTLs expire idle threads and are housekeeping, not a correctness
// mechanism.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	contextKeyPrefix  = "agent:context:"
	cartKeyPrefix     = "agent:cart:"
	approvalKeyPrefix = "agent:approval:"
)

// Config holds Redis connection and TTL settings.
type Config struct {
	URL string

	ContextTTL  time.Duration
	CartTTL     time.Duration
	ApprovalTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = "redis://localhost:6379/0"
	}
	if c.ContextTTL <= 0 {
		c.ContextTTL = time.Hour
	}
	if c.CartTTL <= 0 {
		c.CartTTL = 2 * time.Hour
	}
	if c.ApprovalTTL <= 0 {
		c.ApprovalTTL = 5 * time.Minute
	}
}

// Store is a Redis-backed store for conversation context and approval tokens.
type Store struct {
	rdb    *redis.Client
	cfg    Config
	logger *zap.Logger
}

// NewStore connects to Redis and verifies the connection with a ping.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", opts.Addr))

	return &Store{rdb: rdb, cfg: cfg, logger: logger}, nil
}

// NewStoreWithClient wraps an existing Redis client. Used by tests.
func NewStoreWithClient(rdb *redis.Client, cfg Config, logger *zap.Logger) *Store {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{rdb: rdb, cfg: cfg, logger: logger}
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// GetContext loads the conversation context for a thread. A missing thread
// yields a nil map and no error.
func (s *Store) GetContext(ctx context.Context, threadID string) (map[string]any, error) {
	data, err := s.rdb.Get(ctx, contextKeyPrefix+threadID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return out, nil
}

// SetContext stores the full conversation context for a thread.
func (s *Store) SetContext(ctx context.Context, threadID string, value map[string]any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := s.rdb.Set(ctx, contextKeyPrefix+threadID, data, s.cfg.ContextTTL).Err(); err != nil {
		return fmt.Errorf("set context: %w", err)
	}
	return nil
}

// MergeContext overlays updates onto the stored context, later keys winning,
// and refreshes the TTL.
func (s *Store) MergeContext(ctx context.Context, threadID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	current, err := s.GetContext(ctx, threadID)
	if err != nil {
		return err
	}
	if current == nil {
		current = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		current[k] = v
	}

	return s.SetContext(ctx, threadID, current)
}

// SaveCart stores a cart snapshot for a user.
func (s *Store) SaveCart(ctx context.Context, userID string, cart map[string]any) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.rdb.Set(ctx, cartKeyPrefix+userID, data, s.cfg.CartTTL).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// GetCart loads a cart snapshot for a user, nil when absent.
func (s *Store) GetCart(ctx context.Context, userID string) (map[string]any, error) {
	data, err := s.rdb.Get(ctx, cartKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return out, nil
}

// SaveApproval stores a pending approval payload under a token.
func (s *Store) SaveApproval(ctx context.Context, token string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode approval payload: %w", err)
	}
	if err := s.rdb.Set(ctx, approvalKeyPrefix+token, data, s.cfg.ApprovalTTL).Err(); err != nil {
		return fmt.Errorf("save approval token: %w", err)
	}
	return nil
}

// ConsumeApproval atomically reads and deletes an approval token, so each
// token applies at most once. A missing or already-consumed token yields nil.
func (s *Store) ConsumeApproval(ctx context.Context, token string) (map[string]any, error) {
	data, err := s.rdb.GetDel(ctx, approvalKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume approval token: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode approval payload: %w", err)
	}
	return out, nil
}
