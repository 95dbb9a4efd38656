package quota

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/redis"
)

// RedisStore tracks distinct instruments per (user, window) in a Redis set.
// ⭐ SSOT: 쿼터 집합 연산은 Lua로 원자적으로 수행
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a quota store backed by Redis
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// recordScript adds the instrument only when it is already in the set or the
// set is below limit. Returns {counted, alreadyPresent, used}.
var recordScript = goredis.NewScript(`
local key = KEYS[1]
local member = ARGV[1]
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

if redis.call('SISMEMBER', key, member) == 1 then
  return {0, 1, redis.call('SCARD', key)}
end

local used = redis.call('SCARD', key)
if used >= limit then
  return {0, 0, used}
end

redis.call('SADD', key, member)
if ttl > 0 then
  redis.call('EXPIRE', key, ttl)
end
return {1, 0, used + 1}
`)

func (s *RedisStore) key(userID, windowKey string) string {
	return fmt.Sprintf("%s:quota:%s:%s", s.prefix, userID, windowKey)
}

// Record atomically counts the instrument against the window set
func (s *RedisStore) Record(ctx context.Context, userID, windowKey, instrumentKey string, limit int, ttl time.Duration) (contracts.QuotaUsage, error) {
	if !s.client.Enabled() {
		return contracts.QuotaUsage{}, fmt.Errorf("quota store requires redis")
	}

	ttlSec := int64(ttl / time.Second)
	res, err := recordScript.Run(ctx, s.client.Redis(),
		[]string{s.key(userID, windowKey)},
		instrumentKey, limit, ttlSec,
	).Int64Slice()
	if err != nil {
		return contracts.QuotaUsage{}, fmt.Errorf("quota record failed: %w", err)
	}
	if len(res) != 3 {
		return contracts.QuotaUsage{}, fmt.Errorf("quota script returned %d values", len(res))
	}

	return contracts.QuotaUsage{
		Counted:        res[0] == 1,
		AlreadyPresent: res[1] == 1,
		Used:           int(res[2]),
	}, nil
}

// Peek returns current usage without modifying the set
func (s *RedisStore) Peek(ctx context.Context, userID, windowKey, instrumentKey string) (contracts.QuotaUsage, error) {
	if !s.client.Enabled() {
		return contracts.QuotaUsage{}, fmt.Errorf("quota store requires redis")
	}

	key := s.key(userID, windowKey)
	pipe := s.client.Redis().Pipeline()
	memberCmd := pipe.SIsMember(ctx, key, instrumentKey)
	cardCmd := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return contracts.QuotaUsage{}, fmt.Errorf("quota peek failed: %w", err)
	}

	return contracts.QuotaUsage{
		AlreadyPresent: memberCmd.Val(),
		Used:           int(cardCmd.Val()),
	}, nil
}
