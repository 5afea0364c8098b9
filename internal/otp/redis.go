package otp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegister stores the current code per scope in Redis. Each write is
// a plain SET on the scope key, so a reissue atomically replaces the old
// cell. Keys carry a TTL slightly past the validity window purely so
// Redis reclaims dead codes; expiry correctness always comes from the
// Code.ExpiresAt comparison in the service.
type RedisRegister struct {
	client *redis.Client
	slack  time.Duration
}

// NewRedisRegister wraps a redis client.
func NewRedisRegister(client *redis.Client) *RedisRegister {
	return &RedisRegister{client: client, slack: 30 * time.Second}
}

func valueKey(v string) string   { return "otp:by-value:" + v }
func issuerKey(id string) string { return "otp:by-issuer:" + id }

// Put upserts the scope cell plus two lookup cells: class codes are also
// findable by submitted value, and every code by its issuing faculty.
func (r *RedisRegister) Put(ctx context.Context, code Code) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return err
	}
	ttl := time.Until(code.ExpiresAt) + r.slack
	if err := r.client.Set(ctx, code.Scope.Key(), payload, ttl).Err(); err != nil {
		return err
	}
	if code.Scope.Kind == KindClass {
		if err := r.client.Set(ctx, valueKey(code.Value), payload, ttl).Err(); err != nil {
			return err
		}
	}
	return r.client.Set(ctx, issuerKey(code.IssuerID), payload, ttl).Err()
}

// Get returns the current code for a scope.
func (r *RedisRegister) Get(ctx context.Context, scope Scope) (Code, bool, error) {
	return r.fetch(ctx, scope.Key())
}

// FindClassByValue resolves a class code by submitted value.
func (r *RedisRegister) FindClassByValue(ctx context.Context, value string) (Code, bool, error) {
	code, ok, err := r.fetch(ctx, valueKey(value))
	if err != nil || !ok {
		return Code{}, false, err
	}
	// The value cell can be stale when a newer code replaced this scope.
	current, ok, err := r.fetch(ctx, code.Scope.Key())
	if err != nil || !ok {
		return Code{}, false, err
	}
	if current.Value != value {
		return Code{}, false, nil
	}
	return current, true, nil
}

// FindByIssuer returns the last code a faculty member issued.
func (r *RedisRegister) FindByIssuer(ctx context.Context, issuerID string) (Code, bool, error) {
	return r.fetch(ctx, issuerKey(issuerID))
}

func (r *RedisRegister) fetch(ctx context.Context, key string) (Code, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Code{}, false, nil
		}
		return Code{}, false, err
	}
	var code Code
	if err := json.Unmarshal(raw, &code); err != nil {
		return Code{}, false, err
	}
	return code, true, nil
}
