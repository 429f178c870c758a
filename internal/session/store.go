package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-insight/internal/models"
)

// ErrSessionNotFound 会话不存在（或已过 TTL）
var ErrSessionNotFound = errors.New("session not found")

// Store 会话状态存储
// 状态以 JSON 存入 Redis，TTL 限定会话生命周期；每次写入刷新 TTL。
// in-flight 互斥标志是进程内状态，不在这里持久化。
type Store struct {
	kv        KVStore
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewStore 创建会话存储
func NewStore(kv KVStore, keyPrefix string, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		kv:        kv,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (s *Store) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Create 创建新会话
func (s *Store) Create(ctx context.Context, tenantID string, cfg models.SessionConfig) (*models.SessionState, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Forward.Enabled && cfg.Forward.Method == "" {
		cfg.Forward.Method = "POST"
	}

	now := time.Now().UnixMilli()
	state := &models.SessionState{
		SessionID: uuid.New().String(),
		TenantID:  tenantID,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Save(ctx, state); err != nil {
		return nil, err
	}

	s.logger.Info("Created insight session",
		zap.String("session_id", state.SessionID),
		zap.String("tenant_id", tenantID),
		zap.String("provider", cfg.Provider),
	)

	return state, nil
}

// Get 读取会话状态
func (s *Store) Get(ctx context.Context, sessionID string) (*models.SessionState, error) {
	val, err := s.kv.Get(ctx, s.key(sessionID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	var state models.SessionState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}

	return &state, nil
}

// Save 写回会话状态并刷新 TTL
func (s *Store) Save(ctx context.Context, state *models.SessionState) error {
	if state.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	state.UpdatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", state.SessionID, err)
	}

	if err := s.kv.Set(ctx, s.key(state.SessionID), string(data), s.ttl); err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}

	return nil
}

// Reset 重置会话：清空 transcript、水位线、排队提问和错误槽，配置保留
// 重置后下一次自动 tick 会被"水位线非空"守卫拦下，直到再次手动建立基线
func (s *Store) Reset(ctx context.Context, sessionID string) (*models.SessionState, error) {
	state, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state.Transcript = nil
	state.Watermark = nil
	state.PendingPrompt = ""
	state.LastError = ""

	if err := s.Save(ctx, state); err != nil {
		return nil, err
	}

	s.logger.Info("Reset insight session", zap.String("session_id", sessionID))
	return state, nil
}

// Delete 删除会话
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.kv.Delete(ctx, s.key(sessionID)); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	s.logger.Info("Deleted insight session", zap.String("session_id", sessionID))
	return nil
}
