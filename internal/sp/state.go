package sp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openidx/samlgate/internal/common/database"
)

// StateStore stashes the caller's post-login return URL in Redis for the
// duration of the IdP round-trip, keyed by an opaque token carried as
// RelayState. Redis being down degrades the feature rather than the login:
// the ACS response falls back to a JSON body when the stash cannot be read.
type StateStore struct {
	redis *database.RedisClient
	ttl   time.Duration
}

// NewStateStore creates a state store with the given entry lifetime
func NewStateStore(redisClient *database.RedisClient, ttl time.Duration) *StateStore {
	return &StateStore{redis: redisClient, ttl: ttl}
}

func stateKey(token string) string {
	return "samlgate:login_state:" + token
}

// Stash stores a return URL and returns the RelayState token for it. Returns
// an empty token when there is nothing to stash or Redis is unavailable.
func (s *StateStore) Stash(ctx context.Context, redirectTo string) string {
	if s == nil || s.redis == nil || redirectTo == "" {
		return ""
	}

	token := uuid.New().String()
	if err := s.redis.Client.Set(ctx, stateKey(token), redirectTo, s.ttl).Err(); err != nil {
		return ""
	}
	return token
}

// Pop retrieves and deletes a stashed return URL. A token that was never
// stashed, already consumed or expired yields an empty string; RelayState is
// attacker-controlled input and an unknown token is not an error.
func (s *StateStore) Pop(ctx context.Context, token string) string {
	if s == nil || s.redis == nil || token == "" {
		return ""
	}

	redirectTo, err := s.redis.Client.GetDel(ctx, stateKey(token)).Result()
	if err != nil {
		return ""
	}
	return redirectTo
}
