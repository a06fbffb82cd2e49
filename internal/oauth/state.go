package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateTTL bounds how long an issued CSRF state stays valid.
const StateTTL = 10 * time.Minute

// StateRecord binds an authorization request to the login attempt that
// initiated it. It is single-use: Take removes it on every outcome.
type StateRecord struct {
	State     string    `json:"state"`
	OrgSlug   string    `json:"org_slug"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StateStore holds pending CSRF state keyed by the caller's login key.
type StateStore interface {
	Put(ctx context.Context, loginKey string, rec StateRecord) error

	// Take returns and removes the record for loginKey, or nil when
	// no state is pending.
	Take(ctx context.Context, loginKey string) (*StateRecord, error)
}

// NewStateToken generates a hex-encoded state token with 256 bits of
// entropy.
func NewStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oauth: failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type RedisStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		prefix: "oauth_state:",
	}
}

func (r *RedisStateStore) key(loginKey string) string {
	return r.prefix + loginKey
}

func (r *RedisStateStore) Put(ctx context.Context, loginKey string, rec StateRecord) error {
	if loginKey == "" || rec.State == "" {
		return fmt.Errorf("oauth: missing login key or state")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("oauth: failed to marshal state: %w", err)
	}

	// Redis expiry mirrors the record's own ExpiresAt so abandoned
	// logins clean themselves up.
	return r.client.Set(ctx, r.key(loginKey), data, StateTTL).Err()
}

func (r *RedisStateStore) Take(ctx context.Context, loginKey string) (*StateRecord, error) {
	val, err := r.client.GetDel(ctx, r.key(loginKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec StateRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("oauth: failed to unmarshal state: %w", err)
	}

	return &rec, nil
}
