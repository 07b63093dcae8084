package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sustainabilityhub/sustainabilityhub/internal/cache"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

const sessionCacheKeyPrefix = "auth:sessions:refresh:"

var errSessionCacheMiss = errors.New("session cache miss")

// SessionCache caches sessions keyed by refresh token digest.
type SessionCache interface {
	Get(ctx context.Context, digest string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, digests ...string) error
}

// NewSessionCache wraps a cache store (Redis or database) as a SessionCache.
func NewSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &sessionStoreCache{store: store}
}

type sessionStoreCache struct {
	store cache.Store
}

func (c *sessionStoreCache) Get(ctx context.Context, digest string) (*models.Session, error) {
	key := cacheKey(digest)
	if key == "" {
		return nil, errSessionCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionCacheMiss
	}

	var entry cachedSession
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	return entry.model(), nil
}

func (c *sessionStoreCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if session == nil {
		return errors.New("session cache: session is nil")
	}
	key := cacheKey(session.RefreshToken)
	if key == "" {
		return errors.New("session cache: refresh token missing")
	}

	payload, err := json.Marshal(newCachedSession(session))
	if err != nil {
		return fmt.Errorf("session cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.store.Set(ctx, key, payload, ttl)
}

func (c *sessionStoreCache) Delete(ctx context.Context, digests ...string) error {
	keys := make([]string, 0, len(digests))
	for _, digest := range digests {
		if key := cacheKey(digest); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

// cachedSession carries the fields the refresh path needs; models.Session
// hides the token digest from JSON.
type cachedSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Digest    string     `json:"digest"`
	Method    string     `json:"method"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func newCachedSession(s *models.Session) cachedSession {
	return cachedSession{
		ID:        s.ID,
		UserID:    s.UserID,
		Digest:    s.RefreshToken,
		Method:    s.Method,
		ExpiresAt: s.ExpiresAt,
		RevokedAt: s.RevokedAt,
	}
}

func (c cachedSession) model() *models.Session {
	session := &models.Session{
		UserID:       c.UserID,
		RefreshToken: c.Digest,
		Method:       c.Method,
		ExpiresAt:    c.ExpiresAt,
		RevokedAt:    c.RevokedAt,
	}
	session.ID = c.ID
	return session
}

func cacheKey(digest string) string {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return ""
	}
	return sessionCacheKeyPrefix + digest
}
