package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore 保存已登出令牌的 jti 和一次性验证码，两者都依赖 key 的过期时间自动清理
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, timeout: timeout}
}

func revokedKey(jti string) string {
	return fmt.Sprintf("revoked_token_%s", jti)
}

func otpKey(purpose, email string) string {
	return fmt.Sprintf("otp_%s_%s", email, purpose)
}

// Revoke 让令牌在自然过期前失效
func (s *RedisStore) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) SaveOTP(ctx context.Context, purpose, email, otp string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Set(ctx, otpKey(purpose, email), otp, ttl).Err()
}

// VerifyOTP 在验证码不存在或已过期时返回 false
func (s *RedisStore) VerifyOTP(ctx context.Context, purpose, email, otp string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stored, err := s.client.Get(ctx, otpKey(purpose, email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return stored == otp, nil
}

func (s *RedisStore) DeleteOTP(ctx context.Context, purpose, email string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Del(ctx, otpKey(purpose, email)).Err()
}
