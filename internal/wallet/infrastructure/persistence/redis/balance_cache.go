package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
)

// balanceCache 余额读缓存实现
// 短 TTL + 变更后同步失效；缓存只服务查询，
// 扣款决策永远在事务内重读权威余额。
type balanceCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewBalanceCache 创建并返回一个新的 balanceCache 实例。
func NewBalanceCache(client redis.UniversalClient) domain.BalanceCache {
	return &balanceCache{
		client: client,
		prefix: "wallet:balance:",
		ttl:    30 * time.Second,
	}
}

func (c *balanceCache) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	data, err := c.client.Get(ctx, c.key(accountID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var account domain.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *balanceCache) Set(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return nil
	}
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(account.AccountID), data, c.ttl).Err()
}

func (c *balanceCache) Invalidate(ctx context.Context, accountIDs ...string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = c.key(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *balanceCache) key(accountID string) string {
	return c.prefix + accountID
}
