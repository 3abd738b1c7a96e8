// Package session persists per-session conversation state in Redis with
// TTL expiry and optimistic concurrency.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/apperrors"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

const keyPrefix = "servicelens:session:"

// Store abstracts conversation-state persistence.
type Store interface {
	Get(ctx context.Context, sessionID string) (*models.ConversationState, error)
	Put(ctx context.Context, state *models.ConversationState) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisStore keeps each session under its own key with a sliding TTL.
// Writes are guarded by WATCH so concurrent turns on one session fail
// with ErrStateConflict instead of interleaving.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger.Named("session-store")}
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	payload, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", sessionID, err)
	}

	var state models.ConversationState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Put writes the state only if the stored version still matches the
// version the state was loaded with, then bumps the version. Every write
// refreshes the TTL.
func (s *RedisStore) Put(ctx context.Context, state *models.ConversationState) error {
	key := sessionKey(state.SessionID)
	expected := state.Version

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expected != 0 {
				return apperrors.ErrStateConflict
			}
		case err != nil:
			return err
		default:
			var stored models.ConversationState
			if err := json.Unmarshal(current, &stored); err != nil {
				return fmt.Errorf("decoding stored session: %w", err)
			}
			if stored.Version != expected {
				return apperrors.ErrStateConflict
			}
		}

		state.Version = expected + 1
		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if err != nil {
		state.Version = expected
		if errors.Is(err, redis.TxFailedErr) {
			return apperrors.ErrStateConflict
		}
		return err
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}
