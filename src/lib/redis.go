package lib

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

// ClaimOnce sets a marker key if it does not exist yet. Returns true when
// this caller won the claim. Used to keep reminder sends at-most-once
// across overlapping sweep runs.
func ClaimOnce(ctx context.Context, key string, ttl time.Duration) bool {
	rdb := GetRedisClient()
	if rdb == nil {
		// No marker store available; callers fall back to sending.
		return true
	}
	ok, err := rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		log.Printf("[redis] Error claiming %s: %s\n", key, err.Error())
		return true
	}
	return ok
}

// ReleaseClaim drops a marker so the guarded work can be retried.
func ReleaseClaim(ctx context.Context, key string) {
	rdb := GetRedisClient()
	if rdb == nil {
		return
	}
	if err := rdb.Del(ctx, key).Err(); err != nil {
		log.Printf("[redis] Error releasing %s: %s\n", key, err.Error())
	}
}
