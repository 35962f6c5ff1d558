package messaging

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
	"gorm.io/gorm"
)

// outboxPublisher 基于 Outbox 模式的事件发布者实现
// 出站消息写入与资金变更同一事务；Processor 异步投递到 Kafka，
// 投递失败只影响重试，绝不回滚已提交的资金变更。
type outboxPublisher struct {
	manager *outbox.Manager
}

// NewOutboxPublisher 创建一个新的 OutboxPublisher 实例
func NewOutboxPublisher(manager *outbox.Manager) domain.EventPublisher {
	return &outboxPublisher{manager: manager}
}

// PublishInTx 在当前事务上下文中发布事件
func (p *outboxPublisher) PublishInTx(ctx context.Context, topic, key string, payload map[string]any) error {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return p.manager.PublishInTx(ctx, tx, topic, key, payload)
	}
	return p.manager.PublishInTx(ctx, p.manager.DB(), topic, key, payload)
}
