package domain

import (
	"context"
	"time"
)

// AccountRepository 钱包账户仓储接口
// 余额字段只允许在事务上下文内、经由引擎变更。
type AccountRepository interface {
	// Get 根据账户 ID 获取账户，不存在时返回 (nil, nil)
	Get(ctx context.Context, accountID string) (*Account, error)
	// GetOrCreate 获取账户，不存在时惰性创建
	GetOrCreate(ctx context.Context, accountID, userID, currency string) (*Account, error)
	// Save 保存账户（带乐观锁），版本冲突时返回 ErrVersionConflict
	Save(ctx context.Context, account *Account) error
}

// JournalRepository 资金流水仓储接口，只追加
type JournalRepository interface {
	// Create 写入流水，Reference 唯一索引冲突时返回错误
	Create(ctx context.Context, entry *JournalEntry) error
	// GetByReference 根据幂等引用查询流水，不存在时返回 (nil, nil)
	GetByReference(ctx context.Context, reference string) (*JournalEntry, error)
	// ListByAccount 获取账户最近流水分页列表
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*JournalEntry, int64, error)
}

// EscrowOrderRepository 托管订单仓储接口
type EscrowOrderRepository interface {
	// Create 创建托管订单，OrderID 唯一索引冲突时返回错误
	Create(ctx context.Context, order *EscrowOrder) error
	// Get 根据订单 ID 获取托管订单，不存在时返回 (nil, nil)
	Get(ctx context.Context, orderID string) (*EscrowOrder, error)
	// Transition 条件状态翻转（WHERE status = from），返回是否赢得翻转。
	// 竞争的放款/退款只有一方返回 true，另一方在自己的事务内
	// 读到终态并返回幂等结果。
	Transition(ctx context.Context, order *EscrowOrder, from EscrowStatus) (bool, error)
}

// TxManager 事务管理接口：fn 内的读写处于同一原子作用域
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LockManager 分布式锁接口
// 锁是建议性的：正确性最终依赖事务内的流水幂等检查，
// 锁只用来在流水存在之前减少无谓的竞争。
type LockManager interface {
	// Acquire 获取锁，返回持有者令牌；已被持有时返回 ErrLockHeld
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Release 释放锁，仅当令牌匹配时删除（比较后删除，绝不盲删）
	Release(ctx context.Context, key, token string) error
}

// BalanceCache 余额读缓存接口
// 缓存永远只是建议性的，扣款决策必须在事务内重读权威余额。
type BalanceCache interface {
	Get(ctx context.Context, accountID string) (*Account, error)
	Set(ctx context.Context, account *Account) error
	Invalidate(ctx context.Context, accountIDs ...string) error
}

// EventPublisher 集成事件发布接口（Outbox 模式）
// 出站消息与余额变更写入同一事务；下游投递异步进行，
// 投递失败绝不回滚已提交的资金变更。
type EventPublisher interface {
	PublishInTx(ctx context.Context, topic, key string, payload map[string]any) error
}
