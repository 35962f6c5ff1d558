// Package lock 基于 Redis 的短租约分布式锁
// 锁是建议性的：持有者崩溃后租约到期自动释放，
// 资金正确性最终由事务内的流水幂等检查保证。
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

const keyPrefix = "wallet:lock:"

// 比较后删除：仅当值与持有者令牌一致时才删除，绝不盲删
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

type redisLockManager struct {
	client redis.UniversalClient
}

// NewRedisLockManager 创建并返回一个新的 redisLockManager 实例。
func NewRedisLockManager(client redis.UniversalClient) domain.LockManager {
	return &redisLockManager{client: client}
}

// Acquire SET NX + TTL 获取租约，返回持有者令牌
func (m *redisLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrLockHeld
	}
	return token, nil
}

// Release 令牌匹配时删除租约；令牌不匹配（租约已过期并被他人持有）时为无操作
func (m *redisLockManager) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, m.client, []string{keyPrefix + key}, token).Err()
}
