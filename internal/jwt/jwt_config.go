package jwt

import (
	"sync"
	"time"

	"repairshop-backend/internal/env"

	"github.com/go-redis/redis/v8"
)

const RefreshTokenTTL = 24 * 30 * time.Hour

const (
	RoleCustomer Role = iota
	RoleAdmin
)

// roleSecret reads the signing secret at call time so tests and tooling that
// set the environment late still pick it up.
func roleSecret(role Role) (string, bool) {
	switch role {
	case RoleCustomer:
		return env.Get(env.CustomerSecret), true
	case RoleAdmin:
		return env.Get(env.AdminSecret), true
	}
	return "", false
}

var (
	redisOnce   sync.Once
	redisClient *redis.Client
)

// authRedis holds refresh tokens. Constructed lazily; nothing connects until
// the first refresh-token operation.
func authRedis() *redis.Client {
	redisOnce.Do(func() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     env.Get(env.AuthRedisURL),
			Password: env.Get(env.AuthRedisPass),
			DB:       0,
		})
	})
	return redisClient
}
